// Package identity derives and normalises the natural keys that identify
// persons, clients and vehicles across dealers.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	dErrors "unionregistry/pkg/domain-errors"
)

// GovKeyPrefix starts every derived government client key.
const GovKeyPrefix = "GOV-"

const govKeyHexLen = 20

var (
	nationalIDPattern = regexp.MustCompile(`^[0-9]{12}$`)
	taxIDPattern      = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	registrationChars = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)
)

// DeriveGovClientKey derives the stable key for a government office.
//
// Each part is trimmed, runs of whitespace collapse to one space and letters are
// lower-cased. The parts are joined with "|", hashed with SHA-256, and the key
// is GovKeyPrefix plus the first 20 upper-case hex digits.
func DeriveGovClientKey(orgName, officeCode, referenceLetterOrEmail string) (string, error) {
	parts := [3]string{canonical(orgName), canonical(officeCode), canonical(referenceLetterOrEmail)}
	for i, label := range [3]string{"organization name", "office code", "reference letter or email"} {
		if parts[i] == "" {
			return "", dErrors.New(dErrors.CodeValidation, label+" is required")
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts[:], "|")))
	return GovKeyPrefix + strings.ToUpper(hex.EncodeToString(sum[:]))[:govKeyHexLen], nil
}

// IsGovClientKey reports whether s has the shape of a derived key.
func IsGovClientKey(s string) bool {
	rest, ok := strings.CutPrefix(s, GovKeyPrefix)
	if !ok || len(rest) != govKeyHexLen {
		return false
	}
	for _, c := range rest {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func canonical(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NormalizeNationalID strips spaces and hyphens and requires 12 digits.
func NormalizeNationalID(s string) (string, error) {
	n := strip(s)
	if n == "" {
		return "", dErrors.New(dErrors.CodeValidation, "national id is required")
	}
	if !nationalIDPattern.MatchString(n) {
		return "", dErrors.New(dErrors.CodeValidation, "national id must be 12 digits")
	}
	return n, nil
}

// NormalizeTaxID upper-cases a PAN and checks its AAAAA9999A shape.
func NormalizeTaxID(s string) (string, error) {
	n := strings.ToUpper(strings.TrimSpace(s))
	if n == "" {
		return "", dErrors.New(dErrors.CodeValidation, "tax id is required")
	}
	if !taxIDPattern.MatchString(n) {
		return "", dErrors.New(dErrors.CodeValidation, "tax id must look like AAAAA9999A")
	}
	return n, nil
}

// NormalizeRegistration upper-cases a vehicle registration and drops
// spaces and hyphens, so "ka-01 ab 1234" and "KA01AB1234" are one vehicle.
func NormalizeRegistration(s string) (string, error) {
	n := strings.ToUpper(strip(s))
	if n == "" {
		return "", dErrors.New(dErrors.CodeValidation, "vehicle registration is required")
	}
	if !registrationChars.MatchString(n) {
		return "", dErrors.New(dErrors.CodeValidation, "vehicle registration must be 4-12 letters or digits")
	}
	return n, nil
}

func strip(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
