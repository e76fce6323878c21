package dataset

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"
)

// TableName is the fixed identifier the current dataset is exposed under
// to both the language model and the query engine.
const TableName = "data"

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyDataset      = errors.New("dataset is empty")
	ErrTooLarge          = errors.New("upload exceeds size limit")
	ErrClosed            = errors.New("dataset is closed")
)

type ColumnType string

const (
	TypeBoolean   ColumnType = "boolean"
	TypeInteger   ColumnType = "integer"
	TypeDouble    ColumnType = "double"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
	TypeText      ColumnType = "text"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset is the in-memory table derived from one uploaded file. Row data
// lives in a normalized, fully quoted CSV at LocalPath so the engine can
// attach it with explicit column types. All exported fields are immutable
// after ingestion; readers pin the backing file with Acquire/Release so a
// concurrent Close cannot pull it out from under a running query.
type Dataset struct {
	SourceName string
	Columns    []Column
	RowCount   int
	Samples    [][]string
	LocalPath  string
	CreatedAt  time.Time

	mu     sync.Mutex
	refs   int
	closed bool
}

func (d *Dataset) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for _, col := range d.Columns {
		names = append(names, col.Name)
	}
	return names
}

func (d *Dataset) HasColumn(name string) bool {
	for _, col := range d.Columns {
		if strings.EqualFold(col.Name, name) {
			return true
		}
	}
	return false
}

// Acquire pins the backing file for the duration of a read. Fails with
// ErrClosed once Close has been called.
func (d *Dataset) Acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.refs++
	return nil
}

// Release unpins the backing file. The last release after Close removes
// the file.
func (d *Dataset) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refs > 0 {
		d.refs--
	}
	if d.closed && d.refs == 0 {
		_ = d.removeFile()
	}
}

// Close marks the dataset closed. The backing file is removed immediately
// when nothing holds it, otherwise by the final Release. Safe to call
// more than once.
func (d *Dataset) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.refs == 0 {
		return d.removeFile()
	}
	return nil
}

func (d *Dataset) removeFile() error {
	if d.LocalPath == "" {
		return nil
	}
	if err := os.Remove(d.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
