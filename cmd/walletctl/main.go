package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/dfigueira/walletctl/internal/app"
)

func main() {
	// A .env in the working directory can hold key material and endpoints;
	// absence is fine.
	_ = godotenv.Load()

	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
