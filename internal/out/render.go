package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dfigueira/walletctl/internal/model"
)

// Render writes the envelope to w in the selected output mode. "json" is the
// machine surface; "plain" flattens each item to key=value lines.
func Render(w io.Writer, env model.Envelope, mode string) error {
	if mode == "" || mode == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
	return renderPlain(w, env)
}

func renderPlain(w io.Writer, env model.Envelope) error {
	if env.Error != nil {
		if _, err := fmt.Fprintf(w, "error: %s (%s)\n", env.Error.Message, env.Error.Type); err != nil {
			return err
		}
	}
	for _, warning := range env.Warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warning); err != nil {
			return err
		}
	}
	if env.Data == nil {
		return nil
	}

	// Round-trip through JSON so plain output matches the json field names.
	buf, err := json.Marshal(env.Data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(buf, &generic); err != nil {
		return err
	}

	switch v := generic.(type) {
	case []any:
		for _, item := range v {
			if _, err := fmt.Fprintln(w, toLine(item)); err != nil {
				return err
			}
		}
	default:
		if _, err := fmt.Fprintln(w, toLine(generic)); err != nil {
			return err
		}
	}
	return nil
}

func toLine(item any) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return fmt.Sprintf("%v", item)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, obj[k]))
	}
	return strings.Join(parts, " ")
}
