// Package policy gates which CLI commands a wrapping agent may run.
package policy

import (
	"strings"

	clierr "github.com/dfigueira/walletctl/internal/errors"
)

// CheckCommandAllowed rejects the command path when an allow-list is set and
// the path is not on it. An empty allow-list permits everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if normalize(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeDisabled, "command blocked by --enable-commands policy")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
