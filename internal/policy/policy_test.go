package policy

import (
	"testing"

	clierr "github.com/dfigueira/walletctl/internal/errors"
)

func TestEmptyAllowlistPermitsEverything(t *testing.T) {
	if err := CheckCommandAllowed(nil, "send"); err != nil {
		t.Fatalf("unexpected block: %v", err)
	}
}

func TestAllowlistMatchesNormalized(t *testing.T) {
	allow := []string{" Opportunities  List ", "status"}
	if err := CheckCommandAllowed(allow, "opportunities list"); err != nil {
		t.Fatalf("unexpected block: %v", err)
	}
	if err := CheckCommandAllowed(allow, "STATUS"); err != nil {
		t.Fatalf("unexpected block: %v", err)
	}
}

func TestAllowlistBlocksOtherCommands(t *testing.T) {
	err := CheckCommandAllowed([]string{"status"}, "send")
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeDisabled {
		t.Fatalf("error = %v, want disabled code", err)
	}
}
