package etl

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// recordSource yields input records one at a time and returns io.EOF when
// the input is exhausted.
type recordSource interface {
	Next() (*InputRecord, error)
	Close() error
}

// errSkipRow marks a row that cannot be attributed to any record id.
var errSkipRow = errors.New("row skipped")

const maxJSONLine = 16 << 20

func openSource(path string, format FileFormat, logger *zap.Logger) (recordSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	var src recordSource
	switch format {
	case FormatCSV:
		src, err = newCSVSource(file, logger)
	case FormatJSON:
		src = newJSONSource(file, logger)
	case FormatParquet:
		src, err = newParquetSource(file)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return src, nil
}

// csvSource reads rows with a header naming record_id and, optionally,
// data_json. A missing data_json column means an empty record.
type csvSource struct {
	file    *os.File
	reader  *csv.Reader
	idCol   int
	dataCol int
	logger  *zap.Logger
}

func newCSVSource(file *os.File, logger *zap.Logger) (*csvSource, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	src := &csvSource{file: file, reader: reader, idCol: -1, dataCol: -1, logger: logger}
	for i, col := range header {
		switch strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")) {
		case "record_id":
			src.idCol = i
		case "data_json":
			src.dataCol = i
		}
	}
	if src.idCol < 0 {
		return nil, fmt.Errorf("CSV header has no record_id column: %v", header)
	}

	logger.Info("CSV header detected", zap.Strings("columns", header))
	return src, nil
}

func (s *csvSource) Next() (*InputRecord, error) {
	row, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		s.logger.Warn("Failed to read CSV record", zap.Error(err))
		return nil, errSkipRow
	}
	if s.idCol >= len(row) {
		s.logger.Warn("CSV record has no record_id", zap.Int("columns", len(row)))
		return nil, errSkipRow
	}

	record := &InputRecord{RecordID: row[s.idCol], DataJSON: "{}"}
	if s.dataCol >= 0 {
		// a short row keeps the empty payload and is reported as a parse error
		record.DataJSON = ""
		if s.dataCol < len(row) {
			record.DataJSON = row[s.dataCol]
		}
	}
	return record, nil
}

func (s *csvSource) Close() error {
	return s.file.Close()
}

// jsonSource reads one JSON object per line. The record may be given inline
// as "data" or serialized as "data_json".
type jsonSource struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
	logger  *zap.Logger
}

type jsonLine struct {
	RecordID json.RawMessage `json:"record_id"`
	Data     json.RawMessage `json:"data"`
	DataJSON *string         `json:"data_json"`
}

func newJSONSource(file *os.File, logger *zap.Logger) *jsonSource {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLine)
	return &jsonSource{file: file, scanner: scanner, logger: logger}
}

func (s *jsonSource) Next() (*InputRecord, error) {
	for s.scanner.Scan() {
		s.line++
		raw := bytes.TrimSpace(s.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var line jsonLine
		if err := json.Unmarshal(raw, &line); err != nil || len(line.RecordID) == 0 {
			s.logger.Warn("Failed to read JSON record", zap.Int("line", s.line), zap.Error(err))
			return nil, errSkipRow
		}

		record := &InputRecord{RecordID: rawID(line.RecordID), DataJSON: "{}"}
		switch {
		case len(line.Data) > 0:
			record.DataJSON = string(line.Data)
		case line.DataJSON != nil:
			record.DataJSON = *line.DataJSON
		}
		return record, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSON input: %w", err)
	}
	return nil, io.EOF
}

func (s *jsonSource) Close() error {
	return s.file.Close()
}

func rawID(raw json.RawMessage) string {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	return string(raw)
}

type parquetSource struct {
	file   *os.File
	reader *parquet.Reader
}

func newParquetSource(file *os.File) (*parquetSource, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat Parquet input: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet input: %w", err)
	}
	return &parquetSource{file: file, reader: parquet.NewReader(pf)}, nil
}

func (s *parquetSource) Next() (*InputRecord, error) {
	var record InputRecord
	if err := s.reader.Read(&record); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read Parquet record: %w", err)
	}
	return &record, nil
}

func (s *parquetSource) Close() error {
	s.reader.Close()
	return s.file.Close()
}
