package etl

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/segmentio/parquet-go"
)

// rowWriter writes redacted rows to the single output artifact of a run.
type rowWriter interface {
	Write(row OutputRow) error
	Close() error
}

func createWriter(path string, format FileFormat) (rowWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	switch format {
	case FormatCSV:
		w := csv.NewWriter(file)
		if err := w.Write(OutputColumns); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		return &csvWriter{file: file, writer: w}, nil
	case FormatJSON:
		buf := bufio.NewWriter(file)
		return &jsonWriter{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
	case FormatParquet:
		return &parquetWriter{
			file:   file,
			writer: parquet.NewWriter(file, parquet.SchemaOf(new(OutputRow))),
		}, nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
}

func (w *csvWriter) Write(row OutputRow) error {
	return w.writer.Write([]string{
		row.RecordID,
		row.RedactedDataJSON,
		strconv.FormatBool(row.IsPII),
		strconv.FormatFloat(row.ConfidenceScore, 'f', -1, 64),
		row.Reason,
	})
}

func (w *csvWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}
	return w.file.Close()
}

type jsonWriter struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func (w *jsonWriter) Write(row OutputRow) error {
	return w.enc.Encode(row)
}

func (w *jsonWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush JSON output: %w", err)
	}
	return w.file.Close()
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.Writer
}

func (w *parquetWriter) Write(row OutputRow) error {
	return w.writer.Write(&row)
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize Parquet output: %w", err)
	}
	return w.file.Close()
}
