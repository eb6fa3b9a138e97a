package privacy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raaihank/pii-sentinel/internal/logger"
)

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join("testdata", "rules.json"))
	require.NoError(t, err)

	standalone := catalog.Standalone()
	require.Len(t, standalone, 3)
	assert.Equal(t, "ssn", standalone[0].Field)
	assert.Equal(t, "email", standalone[1].Field)
	assert.Equal(t, "phone", standalone[2].Field)
	assert.Equal(t, 0.9, standalone[0].BaseScore)
	assert.Equal(t, MaskEmail, standalone[1].Redactor)
	assert.Equal(t, MaskNumeric, standalone[2].Redactor)

	combos := catalog.Combinatorial()
	require.Len(t, combos, 2)
	assert.Equal(t, "full_name", combos[0].Name)
	assert.Equal(t, []string{"first_name", "last_name"}, combos[0].Keys)
	assert.Equal(t, []string{"street", "city", "zip_code"}, combos[1].Keys)

	p, ok := catalog.Placeholder("first_name")
	require.True(t, ok)
	assert.True(t, p.IsRedactor())
	assert.Equal(t, MaskString, p.Redactor)

	p, ok = catalog.Placeholder("last_name")
	require.True(t, ok)
	assert.False(t, p.IsRedactor())
	assert.Equal(t, "[REDACTED_NAME]", p.Literal)

	_, ok = catalog.Placeholder("ssn")
	assert.False(t, ok)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	_, err := LoadCatalog(path)
	require.ErrorIs(t, err, ErrCatalogNotFound)
	assert.Contains(t, err.Error(), path)
}

func TestLoadCatalogMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"standalone_pii_patterns": {`), 0o644))

	_, err := LoadCatalog(path)
	require.ErrorIs(t, err, ErrCatalogMalformed)
	assert.Contains(t, err.Error(), path)
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "not a mapping",
			doc:  `[1, 2, 3]`,
			want: ErrCatalogMalformed,
		},
		{
			name: "missing section",
			doc:  `{"standalone_pii_patterns": {}, "combinatorial_pii_sets": {}}`,
			want: ErrCatalogMalformed,
		},
		{
			name: "invalid regex",
			doc: `{"standalone_pii_patterns": {"id": {"regex": "(?=lookahead)", "base_score": 0.5, "redactor": "mask_string"}},
			       "combinatorial_pii_sets": {}, "redaction_placeholders": {}}`,
			want: ErrInvalidPattern,
		},
		{
			name: "unknown redactor",
			doc: `{"standalone_pii_patterns": {"id": {"regex": "\\d+", "base_score": 0.5, "redactor": "shred"}},
			       "combinatorial_pii_sets": {}, "redaction_placeholders": {}}`,
			want: ErrUnknownRedactor,
		},
		{
			name: "missing base score",
			doc: `{"standalone_pii_patterns": {"id": {"regex": "\\d+", "redactor": "mask_string"}},
			       "combinatorial_pii_sets": {}, "redaction_placeholders": {}}`,
			want: ErrInvalidRule,
		},
		{
			name: "negative base score",
			doc: `{"standalone_pii_patterns": {},
			       "combinatorial_pii_sets": {"name": {"keys": ["a", "b"], "base_score": -0.1}},
			       "redaction_placeholders": {}}`,
			want: ErrInvalidRule,
		},
		{
			name: "empty keys",
			doc: `{"standalone_pii_patterns": {},
			       "combinatorial_pii_sets": {"name": {"keys": [], "base_score": 0.1}},
			       "redaction_placeholders": {}}`,
			want: ErrInvalidRule,
		},
		{
			name: "placeholder not a string",
			doc: `{"standalone_pii_patterns": {}, "combinatorial_pii_sets": {},
			       "redaction_placeholders": {"a": ["mask_string"]}}`,
			want: ErrCatalogMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseCatalogYAML(t *testing.T) {
	doc := `
standalone_pii_patterns:
  IBAN:
    regex: '[A-Z]{2}\d{2}[A-Z0-9]{11,30}'
    base_score: 0.8
    redactor: mask_string
combinatorial_pii_sets:
  birth:
    keys: [dob, birth_place, dob]
    base_score: 0.25
redaction_placeholders:
  dob: mask_numeric
  birth_place: ""
`
	catalog, err := ParseCatalog([]byte(doc))
	require.NoError(t, err)

	standalone := catalog.Standalone()
	require.Len(t, standalone, 1)
	assert.Equal(t, "IBAN", standalone[0].Field, "field names keep their case")

	combos := catalog.Combinatorial()
	require.Len(t, combos, 1)
	assert.Equal(t, []string{"dob", "birth_place"}, combos[0].Keys)

	_, ok := catalog.Placeholder("birth_place")
	assert.False(t, ok, "empty placeholder leaves the field untouched")
}

func TestParseCatalogFalsyPlaceholders(t *testing.T) {
	doc := `{"standalone_pii_patterns": {}, "combinatorial_pii_sets": {},
	         "redaction_placeholders": {"a": 0, "b": false, "c": null, "d": 0.0, "e": "0", "f": 7, "g": true}}`
	catalog, err := ParseCatalog([]byte(doc))
	require.NoError(t, err)

	for _, field := range []string{"a", "b", "c", "d"} {
		_, ok := catalog.Placeholder(field)
		assert.False(t, ok, field)
	}

	for field, want := range map[string]string{"e": "0", "f": "7", "g": "true"} {
		placeholder, ok := catalog.Placeholder(field)
		require.True(t, ok, field)
		assert.Equal(t, want, placeholder.Literal, field)
	}
}

func TestParseCatalogMissingPlaceholder(t *testing.T) {
	doc := `{"standalone_pii_patterns": {},
	         "combinatorial_pii_sets": {"full_name": {"keys": ["first_name", "last_name"], "base_score": 0.3}},
	         "redaction_placeholders": {"first_name": "mask_string"}}`

	t.Run("lenient logs a warning", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)

		_, err := ParseCatalog([]byte(doc), WithCatalogLogger(logger.Wrap(zap.New(core))))
		require.NoError(t, err)

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, []any{"last_name"}, entries[0].ContextMap()["fields"])
	})

	t.Run("strict rejects", func(t *testing.T) {
		_, err := ParseCatalog([]byte(doc), WithStrictPlaceholders())
		require.ErrorIs(t, err, ErrMissingPlaceholder)
		assert.Contains(t, err.Error(), "last_name")
	})
}

func TestCatalogAccessorsReturnCopies(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join("testdata", "rules.json"))
	require.NoError(t, err)

	combos := catalog.Combinatorial()
	combos[0].Keys[0] = "mutated"
	standalone := catalog.Standalone()
	standalone[0].BaseScore = 100

	assert.Equal(t, "first_name", catalog.Combinatorial()[0].Keys[0])
	assert.Equal(t, 0.9, catalog.Standalone()[0].BaseScore)
}

func TestCatalogSummary(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join("testdata", "rules.json"))
	require.NoError(t, err)

	summary := catalog.Summary()
	require.Len(t, summary.Standalone, 3)
	assert.Equal(t, `\d{3}-\d{2}-\d{4}`, summary.Standalone[0].Pattern)
	assert.Equal(t, "mask_string", summary.Standalone[0].Redactor)
	assert.Equal(t, "[REDACTED_CITY]", summary.Placeholders["city"])
	assert.Equal(t, "mask_numeric", summary.Placeholders["zip_code"])
}
