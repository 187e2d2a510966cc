package util

import "strings"

// Truthy reports whether s spells an enabled switch, as env variables
// and loosely typed config values do.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
