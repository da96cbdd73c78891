// Package phone canonicalizes patient phone numbers into the set of
// spellings found in stored records, so lookups can run as exact matches.
package phone

import (
	"fmt"
	"strings"
)

const uzCountryCode = "998"

// localNumberLen is the national significant number length (e.g. 93 748 91 41).
const localNumberLen = 9

// Digits strips a raw phone string down to its digits.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Canonical returns the digits-only form with the country code prefixed.
// Returns "" when the input carries no digits.
func Canonical(raw string) string {
	digits := Digits(raw)
	if digits == "" {
		return ""
	}
	if len(digits) == localNumberLen {
		digits = uzCountryCode + digits
	}
	return digits
}

// Variants returns the ordered list of candidate spellings for an exact-match
// lookup: digits-only, "+"-prefixed, and for full national numbers the spaced
// grouping clinic staff enter by hand (+998 93 748 91 41).
func Variants(raw string) []string {
	canonical := Canonical(raw)
	if canonical == "" {
		return nil
	}
	variants := []string{canonical, "+" + canonical}
	if spaced := spacedNational(canonical); spaced != "" {
		variants = append(variants, spaced)
	}
	return variants
}

// spacedNational formats a 12-digit Uzbek number as "+998 XX XXX XX XX".
func spacedNational(digits string) string {
	if len(digits) != len(uzCountryCode)+localNumberLen || !strings.HasPrefix(digits, uzCountryCode) {
		return ""
	}
	local := digits[len(uzCountryCode):]
	return fmt.Sprintf("+%s %s %s %s %s", uzCountryCode, local[0:2], local[2:5], local[5:7], local[7:9])
}
