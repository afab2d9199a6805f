package model

import "strings"

// ValidNPI reports whether s is exactly 10 ASCII digits.
func ValidNPI(s string) bool {
	if len(s) != 10 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeNPI trims whitespace and a trailing ".0" left behind when NPIs
// round-trip through floating point columns. LEIE's "0000000000" placeholder
// and anything that is not a valid NPI become "".
func NormalizeNPI(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	if s == "0000000000" || !ValidNPI(s) {
		return ""
	}
	return s
}
