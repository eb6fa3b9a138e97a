package privacy

import (
	"errors"
	"regexp"
)

// Record is a decoded structured record: field name to JSON value.
type Record map[string]any

// StandaloneRule flags a single field whose value alone identifies a person.
type StandaloneRule struct {
	Field     string
	Pattern   *regexp.Regexp // anchored to the whole value
	Source    string         // pattern as written in the rules file
	BaseScore float64
	Redactor  Redactor
}

// CombinatorialRule flags a set of fields that identify a person together.
type CombinatorialRule struct {
	Name      string
	Keys      []string
	BaseScore float64
}

// Placeholder is what a combinatorial match writes into a field: either the
// output of a redactor or a literal replacement.
type Placeholder struct {
	Redactor Redactor
	Literal  string
}

// IsRedactor reports whether the placeholder names a masking strategy.
func (p Placeholder) IsRedactor() bool {
	return p.Redactor != 0
}

// ScanResult is the outcome of scanning one record
type ScanResult struct {
	Sanitized  Record   `json:"sanitized"`
	IsPII      bool     `json:"is_pii"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	Rationale  string   `json:"rationale"`
}

// NoPIIRationale is reported when no rule matched.
const NoPIIRationale = "No PII detected"

// PIIThreshold is the confidence a record must exceed to be flagged.
const PIIThreshold = 0.5

var (
	ErrCatalogNotFound    = errors.New("rules file not found")
	ErrCatalogMalformed   = errors.New("rules file malformed")
	ErrInvalidPattern     = errors.New("invalid pattern")
	ErrUnknownRedactor    = errors.New("unknown redactor")
	ErrInvalidRule        = errors.New("invalid rule")
	ErrMissingPlaceholder = errors.New("missing redaction placeholder")
)
