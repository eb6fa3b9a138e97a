package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rules = `{
	"standalone_pii_patterns": {
		"ssn": {"regex": "\\d{3}-\\d{2}-\\d{4}", "base_score": 0.9, "redactor": "mask_string"}
	},
	"combinatorial_pii_sets": {
		"full_name": {"keys": ["first_name", "last_name"], "base_score": 0.3}
	},
	"redaction_placeholders": {"first_name": "mask_string"}
}`

func setup(t *testing.T) (dir, rulesPath, inputPath string) {
	t.Helper()
	// keep config discovery away from the repository's configs/
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	dir = t.TempDir()
	rulesPath = filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0o644))

	inputPath = filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte(`record_id,data_json
1,"{""ssn"": ""123-45-6789""}"
2,"{""city"": ""Springfield""}"
3,"{broken"
`), 0o644))
	return dir, rulesPath, inputPath
}

func TestRunScansFile(t *testing.T) {
	dir, rulesPath, inputPath := setup(t)
	output := filepath.Join(dir, "out.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-rules", rulesPath, "-output", output, "-workers", "2", inputPath}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	assert.Contains(t, stdout.String(), "Records:         3")
	assert.Contains(t, stdout.String(), "Flagged as PII:  1")
	assert.Contains(t, stdout.String(), "Parse errors:    1")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"1", `{"ssn":"12XXXXXXX89"}`, "true", "0.9", "found solo pii [ssn]"}, rows[1])
	assert.Equal(t, "Data parsing error", rows[3][4])
}

func TestRunValidateOnly(t *testing.T) {
	_, rulesPath, _ := setup(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-validate-only", "-rules", rulesPath}, &stdout, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "1 standalone rules, 1 combinatorial sets")
}

func TestRunStrictRejectsMissingPlaceholder(t *testing.T) {
	_, rulesPath, inputPath := setup(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-strict", "-rules", rulesPath, inputPath}, &stdout, &stderr)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "last_name")
}

func TestRunBadRules(t *testing.T) {
	dir, _, inputPath := setup(t)
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"standalone_pii_patterns": {"x": {"regex": "a", "base_score": 1, "redactor": "shred"}}, "combinatorial_pii_sets": {}, "redaction_placeholders": {}}`), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-rules", bad, inputPath}, &stdout, &stderr)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "Failed to load rules")
	assert.Contains(t, stderr.String(), "shred")

	code = run(context.Background(), []string{"-rules", filepath.Join(dir, "nope.json"), inputPath}, &stdout, &stderr)
	assert.Equal(t, exitError, code)
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitUsage, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: scan")

	assert.Equal(t, exitUsage, run(context.Background(), []string{"-bogus"}, &stdout, &stderr))
}
