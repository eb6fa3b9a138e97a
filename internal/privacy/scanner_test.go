package privacy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	catalog, err := LoadCatalog(filepath.Join("testdata", "rules.json"))
	require.NoError(t, err)
	return NewScanner(catalog)
}

func mustRecord(t *testing.T, payload string) Record {
	t.Helper()
	record, err := DecodeRecord([]byte(payload))
	require.NoError(t, err)
	return record
}

func TestScanStandalone(t *testing.T) {
	scanner := newTestScanner(t)

	result := scanner.Scan(mustRecord(t, `{"ssn": "123-45-6789", "note": "hello"}`))

	assert.True(t, result.IsPII)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, "found solo pii [ssn]", result.Rationale)
	assert.Equal(t, "12XXXXXXX89", result.Sanitized["ssn"])
	assert.Equal(t, "hello", result.Sanitized["note"])
}

func TestScanCombinatorial(t *testing.T) {
	scanner := newTestScanner(t)

	result := scanner.Scan(mustRecord(t, `{"first_name": "Jonathan", "last_name": "Smith", "age": 41}`))

	assert.True(t, result.IsPII)
	assert.Equal(t, 0.6, result.Confidence)
	assert.Equal(t, "found combo pii [first_name+last_name]", result.Rationale)
	assert.Equal(t, "JoXXXXan", result.Sanitized["first_name"])
	assert.Equal(t, "[REDACTED_NAME]", result.Sanitized["last_name"])
	assert.Equal(t, json.Number("41"), result.Sanitized["age"])
}

func TestScanCombinatorialScalesWithPresentKeys(t *testing.T) {
	scanner := newTestScanner(t)

	two := scanner.Scan(mustRecord(t, `{"street": "1 Main Street", "city": "Springfield"}`))
	three := scanner.Scan(mustRecord(t, `{"street": "1 Main Street", "city": "Springfield", "zip_code": 12345}`))

	assert.Equal(t, 0.2, two.Confidence)
	assert.False(t, two.IsPII)
	assert.Equal(t, 0.3, three.Confidence)
	assert.Equal(t, "found combo pii [street+city+zip_code]", three.Rationale)
	assert.Equal(t, "1 XXXXXXXXXet", three.Sanitized["street"])
	assert.Equal(t, "[REDACTED_CITY]", three.Sanitized["city"])
	assert.Equal(t, "12X45", three.Sanitized["zip_code"])
}

func TestScanCombinatorialNeedsTwoKeys(t *testing.T) {
	scanner := newTestScanner(t)

	result := scanner.Scan(mustRecord(t, `{"first_name": "Jonathan"}`))

	assert.False(t, result.IsPII)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, "Jonathan", result.Sanitized["first_name"])
}

func TestScanCombinatorialCountsNullValues(t *testing.T) {
	scanner := newTestScanner(t)

	result := scanner.Scan(mustRecord(t, `{"first_name": null, "last_name": "Smith"}`))

	assert.Equal(t, 0.6, result.Confidence)
	assert.Equal(t, FixedMask, result.Sanitized["first_name"])
}

func TestScanRequiresFullMatch(t *testing.T) {
	scanner := newTestScanner(t)

	tests := []string{
		`{"email": "contact jane@example.com today"}`,
		`{"ssn": "ssn: 123-45-6789"}`,
		`{"ssn": "123-45-67890"}`,
	}
	for _, payload := range tests {
		t.Run(payload, func(t *testing.T) {
			record := mustRecord(t, payload)
			result := scanner.Scan(record)

			assert.False(t, result.IsPII)
			assert.Equal(t, 0.0, result.Confidence)
			assert.Equal(t, record, result.Sanitized)
		})
	}
}

func TestScanSkipsNonTextStandaloneValues(t *testing.T) {
	scanner := newTestScanner(t)

	result := scanner.Scan(mustRecord(t, `{"phone": 15551234567, "ssn": {"value": "123-45-6789"}}`))

	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, NoPIIRationale, result.Rationale)
	assert.Equal(t, json.Number("15551234567"), result.Sanitized["phone"])
}

func TestScanClampsConfidence(t *testing.T) {
	scanner := newTestScanner(t)

	result := scanner.Scan(mustRecord(t, `{
		"ssn": "123-45-6789",
		"email": "jane.doe@example.com",
		"phone": "+1 555 123 4567",
		"first_name": "Jane",
		"last_name": "Doe"
	}`))

	assert.True(t, result.IsPII)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, []string{
		"found solo pii [ssn]",
		"found solo pii [email]",
		"found solo pii [phone]",
		"found combo pii [first_name+last_name]",
	}, result.Reasons)
	assert.Equal(t, "jaXXXXoe@example.com", result.Sanitized["email"])
	assert.Equal(t, "+1XXXXXXXXXXX67", result.Sanitized["phone"])
}

func TestScanVerdictUsesUnroundedScore(t *testing.T) {
	doc := `{"standalone_pii_patterns": {},
	         "combinatorial_pii_sets": {"pair": {"keys": ["a", "b"], "base_score": 0.2505}},
	         "redaction_placeholders": {"a": "[A]", "b": "[B]"}}`
	catalog, err := ParseCatalog([]byte(doc))
	require.NoError(t, err)

	result := NewScanner(catalog).Scan(mustRecord(t, `{"a": "x", "b": "y"}`))

	assert.True(t, result.IsPII, "0.501 is above the threshold")
	assert.Equal(t, 0.5, result.Confidence)
}

func TestRoundScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.125, 0.12},
		{0.375, 0.38},
		{0.285, 0.28},
		{0.501, 0.5},
		{0.30000000000000004, 0.3},
		{1, 1},
		{0, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, roundScore(tt.in))
		})
	}
}

func TestScanNoMatch(t *testing.T) {
	scanner := newTestScanner(t)

	record := mustRecord(t, `{"product": "widget", "qty": 3, "tags": ["a", "b"]}`)
	result := scanner.Scan(record)

	assert.False(t, result.IsPII)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, NoPIIRationale, result.Rationale)
	assert.Empty(t, result.Reasons)
	assert.Equal(t, record, result.Sanitized)
}

func TestScanDoesNotMutateInput(t *testing.T) {
	scanner := newTestScanner(t)

	record := mustRecord(t, `{"ssn": "123-45-6789", "first_name": "Jonathan", "last_name": "Smith"}`)
	result := scanner.Scan(record)

	assert.Equal(t, "123-45-6789", record["ssn"])
	assert.Equal(t, "Jonathan", record["first_name"])
	assert.Equal(t, "Smith", record["last_name"])
	assert.NotEqual(t, record["ssn"], result.Sanitized["ssn"])
}

func TestScanNilRecord(t *testing.T) {
	scanner := newTestScanner(t)

	result := scanner.Scan(nil)

	assert.NotNil(t, result.Sanitized)
	assert.False(t, result.IsPII)
	assert.Equal(t, NoPIIRationale, result.Rationale)
}

func TestScanCombinatorialOverridesStandalone(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`{
		"standalone_pii_patterns": {
			"email": {"regex": ".+@.+", "base_score": 0.4, "redactor": "mask_email"}
		},
		"combinatorial_pii_sets": {
			"contact": {"keys": ["email", "name"], "base_score": 0.1},
			"login": {"keys": ["email", "username"], "base_score": 0.1}
		},
		"redaction_placeholders": {"email": "[EMAIL]", "name": "mask_string"}
	}`))
	require.NoError(t, err)

	result := NewScanner(catalog).Scan(Record{
		"email":    "jane.doe@example.com",
		"name":     "Jane Doe",
		"username": "jdoe",
	})

	assert.Equal(t, 0.8, result.Confidence)
	assert.Equal(t, "[EMAIL]", result.Sanitized["email"])
	assert.Equal(t, "JaXXXXoe", result.Sanitized["name"])
	assert.Equal(t, "jdoe", result.Sanitized["username"], "no placeholder leaves the value as is")
	assert.Equal(t, "found solo pii [email], found combo pii [email+name], found combo pii [email+username]", result.Rationale)
}

func TestScanRedactorPlaceholderUsesOriginalValue(t *testing.T) {
	catalog, err := ParseCatalog([]byte(`{
		"standalone_pii_patterns": {
			"email": {"regex": ".+@.+", "base_score": 0.4, "redactor": "mask_string"}
		},
		"combinatorial_pii_sets": {"contact": {"keys": ["email", "name"], "base_score": 0.1}},
		"redaction_placeholders": {"email": "mask_email", "name": "mask_string"}
	}`))
	require.NoError(t, err)

	result := NewScanner(catalog).Scan(Record{"email": "jane.doe@example.com", "name": "Jane Doe"})

	assert.Equal(t, "jaXXXXoe@example.com", result.Sanitized["email"])
}

func TestRescanDoesNotRaiseConfidence(t *testing.T) {
	scanner := newTestScanner(t)

	payloads := []string{
		`{"ssn": "123-45-6789"}`,
		`{"email": "jane.doe@example.com", "phone": "555-123-4567"}`,
		`{"first_name": "Jonathan", "last_name": "Smith", "street": "1 Main Street"}`,
		`{"product": "widget"}`,
	}
	for _, payload := range payloads {
		first := scanner.Scan(mustRecord(t, payload))

		encoded, err := first.Sanitized.Encode()
		require.NoError(t, err)
		second := scanner.Scan(mustRecord(t, string(encoded)))

		assert.LessOrEqual(t, second.Confidence, first.Confidence, payload)
	}
}

func TestScanConcurrent(t *testing.T) {
	scanner := newTestScanner(t)

	var wg sync.WaitGroup
	results := make([]ScanResult, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = scanner.Scan(Record{
				"ssn":        fmt.Sprintf("123-45-%04d", i),
				"first_name": "Jane",
				"last_name":  "Doe",
			})
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 1.0, r.Confidence)
		assert.Equal(t, "12XXXXXXX"+r.Sanitized["ssn"].(string)[9:], r.Sanitized["ssn"])
	}
}

func TestDecodeRecord(t *testing.T) {
	record, err := DecodeRecord([]byte(`{"a": 1, "b": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1"), record["a"])

	_, err = DecodeRecord([]byte(`[1, 2]`))
	require.ErrorIs(t, err, ErrNotAnObject)

	_, err = DecodeRecord([]byte(`{"a": 1`))
	require.Error(t, err)

	_, err = DecodeRecord([]byte(`{"a": 1} {"b": 2}`))
	require.Error(t, err)
}
