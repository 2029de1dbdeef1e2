package id

import "strings"

// NormalizeAsset canonicalizes a chain-native asset identifier for
// case-insensitive comparison (allow-lists, balance lookups).
func NormalizeAsset(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// SameAsset reports whether two asset identifiers name the same asset.
func SameAsset(a, b string) bool {
	return NormalizeAsset(a) == NormalizeAsset(b)
}
