// Package email checks the optional contact addresses stored on persons,
// clients and dealer profiles.
package email

import (
	"net/mail"
	"strings"
)

// Normalize trims addr and lowercases its domain. An empty input is valid and
// stays empty. Display-name forms ("Asha <a@x.in>") are rejected.
func Normalize(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", true
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Name != "" || parsed.Address != addr {
		return "", false
	}
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || !strings.Contains(addr[at+1:], ".") {
		return "", false
	}
	return addr[:at] + "@" + strings.ToLower(addr[at+1:]), true
}
