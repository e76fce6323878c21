package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/duckask/duckask/internal/dataset"
	"github.com/duckask/duckask/internal/query"
	"github.com/duckask/duckask/internal/sqlcheck"
)

// Engine executes SQL against a fresh in-memory DuckDB instance per
// request. The dataset's normalized CSV is exposed as a typed view, so the
// statement sees exactly the inferred schema and nothing else.
type Engine struct {
	// Timeout caps a single execution. Zero means the request context
	// alone governs cancellation.
	Timeout time.Duration
}

func NewEngine(timeout time.Duration) *Engine {
	return &Engine{Timeout: timeout}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	ds := request.Dataset
	if ds == nil || ds.LocalPath == "" {
		return query.Result{}, fmt.Errorf("no dataset loaded")
	}
	// Pin the backing file so a concurrent dataset swap on the same
	// session cannot remove it mid-query.
	if err := ds.Acquire(); err != nil {
		return query.Result{}, err
	}
	defer ds.Release()

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_csv(%s, header = true, delim = ',', quote = '"', nullstr = '', columns = %s)`,
		quoteIdent(dataset.TableName),
		quoteString(ds.LocalPath),
		columnsClause(ds.Columns),
	)
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return query.Result{}, fmt.Errorf("attach dataset: %w", err)
	}

	sqlText := sqlcheck.StripTrailingSemicolons(request.SQL)
	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := collectRows(rows)
	if err != nil {
		return query.Result{}, err
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
		Duration: time.Since(start),
	}, nil
}

// Ping verifies the embedded engine can be opened at all. Used as the
// readiness check.
func Ping(ctx context.Context) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("probe duckdb: %w", err)
	}
	return nil
}

// columnsClause renders the read_csv columns map with the inferred DuckDB
// type per column, keeping auto-detection out of the picture.
func columnsClause(columns []dataset.Column) string {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, fmt.Sprintf("%s: %s", quoteString(col.Name), quoteString(duckType(col.Type))))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func duckType(t dataset.ColumnType) string {
	switch t {
	case dataset.TypeBoolean:
		return "BOOLEAN"
	case dataset.TypeInteger:
		return "BIGINT"
	case dataset.TypeDouble:
		return "DOUBLE"
	case dataset.TypeDate:
		return "DATE"
	case dataset.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
