package privacy

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Redactor identifies one of the masking strategies a rule can reference.
type Redactor int

const (
	// MaskString keeps the first and last two characters and masks the rest.
	MaskString Redactor = iota + 1
	// MaskEmail masks the local part of an address and keeps the domain.
	MaskEmail
	// MaskNumeric masks the string form of a number.
	MaskNumeric
)

// FixedMask replaces values too short (or not textual) to partially reveal.
const FixedMask = "****"

const (
	maskChar       = "X"
	maskKeepChars  = 2
	maskMinRunes   = 5
	emailSeparator = "@"
)

var redactorNames = map[string]Redactor{
	"mask_string":  MaskString,
	"mask_email":   MaskEmail,
	"mask_numeric": MaskNumeric,
}

// ParseRedactor resolves a configured redactor name.
func ParseRedactor(name string) (Redactor, bool) {
	r, ok := redactorNames[name]
	return r, ok
}

// String returns the configuration name of the redactor.
func (r Redactor) String() string {
	switch r {
	case MaskString:
		return "mask_string"
	case MaskEmail:
		return "mask_email"
	case MaskNumeric:
		return "mask_numeric"
	default:
		return fmt.Sprintf("redactor(%d)", int(r))
	}
}

// Apply masks v. It never fails and always returns a string.
func (r Redactor) Apply(v any) string {
	switch r {
	case MaskEmail:
		return maskEmail(v)
	case MaskNumeric:
		return maskString(stringForm(v))
	default:
		return maskString(v)
	}
}

func maskString(v any) string {
	text, ok := v.(string)
	if !ok {
		return FixedMask
	}

	n := utf8.RuneCountInString(text)
	if n < maskMinRunes {
		return FixedMask
	}

	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	b.WriteString(string(runes[:maskKeepChars]))
	b.WriteString(strings.Repeat(maskChar, n-2*maskKeepChars))
	b.WriteString(string(runes[n-maskKeepChars:]))
	return b.String()
}

func maskEmail(v any) string {
	text, ok := v.(string)
	if !ok {
		return maskString(stringForm(v))
	}

	local, domain, found := strings.Cut(text, emailSeparator)
	if !found {
		return maskString(text)
	}
	return maskString(local) + emailSeparator + domain
}

// stringForm renders any decoded JSON value as text.
func stringForm(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case nil:
		return "null"
	case fmt.Stringer:
		return val.String()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
