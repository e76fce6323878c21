package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Common missing-value markers, normalized to empty cells before type
// inference.
var missingMarkers = map[string]struct{}{
	"NA":      {},
	"N/A":     {},
	"missing": {},
}

type Options struct {
	// MaxBytes caps the accepted upload size. Zero means no limit.
	MaxBytes int64
	// SampleRows is how many normalized rows to retain for schema context.
	SampleRows int
	// TempDir is where the normalized CSV is written. Empty uses os.TempDir.
	TempDir string
}

// Ingest parses an uploaded CSV or XLSX file into a Dataset. The format is
// chosen by filename extension; anything else fails with
// ErrUnsupportedFormat.
func Ingest(filename string, reader io.Reader, opts Options) (*Dataset, error) {
	raw, err := readLimited(reader, opts.MaxBytes)
	if err != nil {
		return nil, err
	}

	var header []string
	var rows [][]string
	switch Format(filename) {
	case "csv":
		header, rows, err = parseCSV(raw)
	case "xlsx":
		header, rows, err = parseXLSX(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrEmptyDataset)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrEmptyDataset)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	normalized := normalizeRows(header, rows)
	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: name, Type: inferColumnType(columnValues(normalized, i))}
	}

	localPath, err := writeQuotedCSV(opts.TempDir, header, normalized)
	if err != nil {
		return nil, fmt.Errorf("write normalized csv: %w", err)
	}

	sampleCount := opts.SampleRows
	if sampleCount <= 0 {
		sampleCount = 5
	}
	if sampleCount > len(normalized) {
		sampleCount = len(normalized)
	}
	samples := make([][]string, sampleCount)
	for i := range samples {
		samples[i] = append([]string(nil), normalized[i]...)
	}

	return &Dataset{
		SourceName: filepath.Base(filename),
		Columns:    columns,
		RowCount:   len(normalized),
		Samples:    samples,
		LocalPath:  localPath,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Format reports the dataset format implied by the filename, or "".
func Format(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	default:
		return ""
	}
}

func readLimited(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}
	raw, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}
	return raw, nil
}

func parseCSV(raw []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return trimHeader(records[0]), records[1:], nil
}

func parseXLSX(raw []byte) ([]string, [][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse xlsx: %w", err)
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptyDataset)
	}
	// First sheet only, matching the CSV single-table model.
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return trimHeader(records[0]), records[1:], nil
}

func trimHeader(header []string) []string {
	trimmed := make([]string, len(header))
	for i, name := range header {
		trimmed[i] = strings.TrimSpace(name)
	}
	return trimmed
}

func validateHeader(header []string) error {
	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		if name == "" {
			return fmt.Errorf("%w: column %d has an empty name", ErrEmptyDataset, i+1)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate column name %q", name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// normalizeRows pads or truncates every row to the header width and maps
// missing-value markers to empty cells.
func normalizeRows(header []string, rows [][]string) [][]string {
	normalized := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(header))
		for i := range cells {
			if i < len(row) {
				cells[i] = normalizeCell(row[i])
			}
		}
		normalized = append(normalized, cells)
	}
	return normalized
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if _, missing := missingMarkers[value]; missing {
		return ""
	}
	return value
}

func columnValues(rows [][]string, index int) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, row[index])
	}
	return values
}

// writeQuotedCSV writes header and rows with every field quoted, so the
// engine never has to guess at embedded delimiters or types.
func writeQuotedCSV(dir string, header []string, rows [][]string) (string, error) {
	file, err := os.CreateTemp(dir, "duckask-dataset-*.csv")
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer
	writeQuotedRecord(&buf, header)
	for _, row := range rows {
		writeQuotedRecord(&buf, row)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		_ = os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

func writeQuotedRecord(buf *bytes.Buffer, record []string) {
	for i, field := range record {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}
