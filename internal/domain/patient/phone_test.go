package patient

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0612345678", "33612345678"},
		{"06 12 34 56 78", "33612345678"},
		{"06.12.34.56.78", "33612345678"},
		{"06-12-34-56-78", "33612345678"},
		{"+33612345678", "33612345678"},
		{"+33 6 12 34 56 78", "33612345678"},
		{"0033612345678", "33612345678"},
		{"0692123456", "33692123456"},
		{"+262692123456", "262692123456"},
		{"+262 692 12 34 56", "262692123456"},
		{"00262692123456", "262692123456"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhoneInvalid(t *testing.T) {
	cases := []string{
		"",
		"12345",
		"0012345678901234",
		"0012345678",
		"0012 34",
		"abcdefghij",
		"0012345678901",
	}
	for _, in := range cases {
		if _, err := NormalizePhone(in); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("%q: expected ErrInvalidPhone, got %v", in, err)
		}
	}
}

func TestFormatPhone(t *testing.T) {
	if got := FormatPhone("33612345678"); got != "06 12 34 56 78" {
		t.Errorf("got %q", got)
	}
	// Réunion numbers are 12 digits and pass through unformatted.
	if got := FormatPhone("262692123456"); got != "262692123456" {
		t.Errorf("got %q", got)
	}
}

func TestAnonymize(t *testing.T) {
	p := Patient{
		ID:        "p1",
		LastName:  "DUPONT",
		FirstName: "Marie",
		Phone:     "33612345678",
		Consent:   true,
		Active:    true,
		Notes:     "prefers morning pickups",
	}
	p.Anonymize()

	if p.LastName != "ANONYMOUS" || p.FirstName != "ANONYMOUS" {
		t.Errorf("name not cleared: %s %s", p.LastName, p.FirstName)
	}
	if p.Phone != "00000000000" {
		t.Errorf("phone not cleared: %s", p.Phone)
	}
	if p.Consent || p.Active {
		t.Error("consent and active flags should be cleared")
	}
	if p.Notes != "" {
		t.Error("notes should be cleared")
	}
	if p.ID != "p1" {
		t.Error("ID must survive anonymization")
	}
}
