// Package sanitize trims and bounds free-text input before it reaches a store.
package sanitize

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Text trims surrounding whitespace and cuts s to at most max runes.
func Text(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}

// HTTPSURL reports whether raw is an absolute https URL with a host.
func HTTPSURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "https") && u.Host != ""
}
