package etl

import (
	"path/filepath"
	"strings"
	"time"
)

// InputRecord is one row of the input dataset: an identifier plus the
// record serialized as JSON.
type InputRecord struct {
	RecordID string `csv:"record_id" parquet:"record_id" json:"record_id"`
	DataJSON string `csv:"data_json" parquet:"data_json" json:"data_json"`
}

// OutputRow is one row of the redacted output
type OutputRow struct {
	RecordID         string  `parquet:"record_id" json:"record_id"`
	RedactedDataJSON string  `parquet:"redacted_data_json" json:"redacted_data_json"`
	IsPII            bool    `parquet:"is_pii" json:"is_pii"`
	ConfidenceScore  float64 `parquet:"confidence_score" json:"confidence_score"`
	Reason           string  `parquet:"reason" json:"reason"`
}

// OutputColumns is the header written to tabular outputs
var OutputColumns = []string{"record_id", "redacted_data_json", "is_pii", "confidence_score", "reason"}

// ParseErrorReason is reported for records whose payload could not be decoded
const ParseErrorReason = "Data parsing error"

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords int64         `json:"total_records"`
	Scanned      int64         `json:"scanned"`
	Flagged      int64         `json:"flagged"`
	ParseErrors  int64         `json:"parse_errors"`
	Skipped      int64         `json:"skipped"`
	Duration     time.Duration `json:"duration"`
}

// Config contains pipeline configuration
type Config struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int `yaml:"worker_count" mapstructure:"worker_count"`
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}
