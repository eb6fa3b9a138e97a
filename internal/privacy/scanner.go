package privacy

import (
	"maps"
	"math"
	"strconv"
	"strings"
)

// Scanner evaluates records against a catalog. It holds no per-call state,
// so a single Scanner may be shared by any number of goroutines.
type Scanner struct {
	catalog *Catalog
}

// NewScanner creates a scanner over an already compiled catalog.
func NewScanner(catalog *Catalog) *Scanner {
	return &Scanner{catalog: catalog}
}

// Catalog returns the rules the scanner evaluates.
func (s *Scanner) Catalog() *Catalog {
	return s.catalog
}

// Scan evaluates one record. The input is never modified; the returned
// result carries a sanitized copy.
func (s *Scanner) Scan(record Record) ScanResult {
	sanitized := maps.Clone(record)
	if sanitized == nil {
		sanitized = Record{}
	}

	var (
		score   float64
		reasons []string
	)

	for _, rule := range s.catalog.standalone {
		text, ok := record[rule.Field].(string)
		if !ok || !rule.Pattern.MatchString(text) {
			continue
		}
		score += rule.BaseScore
		reasons = append(reasons, "found solo pii ["+rule.Field+"]")
		sanitized[rule.Field] = rule.Redactor.Apply(text)
	}

	var pending []string
	queued := make(map[string]bool)
	for _, rule := range s.catalog.combinatorial {
		present := make([]string, 0, len(rule.Keys))
		for _, key := range rule.Keys {
			if _, ok := record[key]; ok {
				present = append(present, key)
			}
		}
		if len(present) < 2 {
			continue
		}

		score += rule.BaseScore * float64(len(present))
		reasons = append(reasons, "found combo pii ["+strings.Join(present, "+")+"]")
		for _, key := range present {
			if !queued[key] {
				queued[key] = true
				pending = append(pending, key)
			}
		}
	}

	// Combinatorial redaction runs last and wins over standalone masking.
	for _, key := range pending {
		placeholder, ok := s.catalog.placeholders[key]
		switch {
		case !ok:
			// no placeholder: value passes through, see WithStrictPlaceholders
		case placeholder.IsRedactor():
			sanitized[key] = placeholder.Redactor.Apply(record[key])
		default:
			sanitized[key] = placeholder.Literal
		}
	}

	clamped := math.Min(1.0, score)

	rationale := NoPIIRationale
	if len(reasons) > 0 {
		rationale = strings.Join(reasons, ", ")
	}

	return ScanResult{
		Sanitized:  sanitized,
		IsPII:      clamped > PIIThreshold,
		Confidence: roundScore(clamped),
		Reasons:    reasons,
		Rationale:  rationale,
	}
}

// roundScore rounds to two decimals on the exact binary value, halves to even.
func roundScore(v float64) float64 {
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return rounded
}
