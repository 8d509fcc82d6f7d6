package patient

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhone is returned when a number cannot be canonicalized under the
// France / Réunion dialing rules.
var ErrInvalidPhone = errors.New("invalid phone number")

// canonicalRe accepts the two canonical forms: mainland France 33XXXXXXXXX and
// Réunion 262XXXXXXXXX, each with a leading non-zero subscriber digit.
var canonicalRe = regexp.MustCompile(`^(33[1-9]\d{8}|262[1-9]\d{8})$`)

var separatorReplacer = strings.NewReplacer(" ", "", ".", "", "-", "", "(", "", ")", "")

// NormalizePhone canonicalizes a French or Réunion phone number to
// 33XXXXXXXXX or 262XXXXXXXXX. Accepted inputs: 0X..., +33/0033 prefixes,
// 0262/+262/00262 for Réunion, with spaces, dots, dashes or parentheses as
// separators.
func NormalizePhone(raw string) (string, error) {
	cleaned := separatorReplacer.Replace(raw)

	// Réunion: 0262XXXXXXXX (12 digits) keeps the 262 area code.
	if strings.HasPrefix(cleaned, "0262") && len(cleaned) == 12 {
		cleaned = "262" + cleaned[4:]
		if canonicalRe.MatchString(cleaned) {
			return cleaned, nil
		}
		return "", ErrInvalidPhone
	}
	if strings.HasPrefix(cleaned, "00262") {
		cleaned = "262" + cleaned[5:]
		if canonicalRe.MatchString(cleaned) {
			return cleaned, nil
		}
		return "", ErrInvalidPhone
	}
	if strings.HasPrefix(cleaned, "+262") {
		cleaned = "262" + cleaned[4:]
		if canonicalRe.MatchString(cleaned) {
			return cleaned, nil
		}
		return "", ErrInvalidPhone
	}

	if strings.HasPrefix(cleaned, "0033") {
		cleaned = "+33" + cleaned[4:]
	}
	if strings.HasPrefix(cleaned, "0") && len(cleaned) == 10 {
		cleaned = "+33" + cleaned[1:]
	}
	if strings.HasPrefix(cleaned, "+33") {
		cleaned = "33" + cleaned[3:]
	}

	if canonicalRe.MatchString(cleaned) {
		return cleaned, nil
	}
	return "", ErrInvalidPhone
}

// FormatPhone renders a canonical mainland number for display as
// "0X XX XX XX XX". Other forms are returned unchanged.
func FormatPhone(canonical string) string {
	if !strings.HasPrefix(canonical, "33") || len(canonical) != 11 {
		return canonical
	}
	digits := "0" + canonical[2:]
	var b strings.Builder
	b.WriteString(digits[:2])
	for i := 2; i < len(digits); i += 2 {
		b.WriteByte(' ')
		b.WriteString(digits[i : i+2])
	}
	return b.String()
}
