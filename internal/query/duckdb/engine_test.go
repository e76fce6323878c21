package duckdb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/duckask/duckask/internal/dataset"
	"github.com/duckask/duckask/internal/query"
)

func TestExecuteComputesAggregateOverDataset(t *testing.T) {
	ds := ingestFixture(t, "region,amount\nnorth,10\nsouth,20\nnorth,12\n")
	engine := NewEngine(0)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:     "SELECT CAST(SUM(amount) AS BIGINT) AS total FROM data",
		Dataset: ds,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Columns[0] != "total" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if got, ok := asInt64(result.Rows[0][0]); !ok || got != 42 {
		t.Fatalf("total = %#v", result.Rows[0][0])
	}
}

func TestExecuteRespectsRowLimitAndTrailingSemicolon(t *testing.T) {
	ds := ingestFixture(t, "n\n1\n2\n3\n4\n5\n")
	engine := NewEngine(0)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      "SELECT n FROM data ORDER BY n;",
		RowLimit: 2,
		Dataset:  ds,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
}

func TestExecuteUnknownColumnFails(t *testing.T) {
	ds := ingestFixture(t, "a\n1\n")
	engine := NewEngine(0)

	_, err := engine.Execute(context.Background(), query.Request{
		SQL:     "SELECT no_such_column FROM data",
		Dataset: ds,
	})
	if err == nil {
		t.Fatal("expected execution error for unknown column")
	}
}

func TestExecuteTypedColumnsSurviveRoundTrip(t *testing.T) {
	ds := ingestFixture(t, "flag,score\ntrue,1.5\nfalse,2.5\n")
	engine := NewEngine(0)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:     "SELECT SUM(score) AS s FROM data WHERE flag",
		Dataset: ds,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, ok := result.Rows[0][0].(float64); !ok || got != 1.5 {
		t.Fatalf("s = %#v", result.Rows[0][0])
	}
}

func TestExecuteSlashFormatDatesStayQueryable(t *testing.T) {
	ds := ingestFixture(t, "day,amount\n2024/01/02,5\n2024/01/03,7\n")
	engine := NewEngine(0)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:     "SELECT day FROM data ORDER BY day",
		Dataset: ds,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, ok := result.Rows[0][0].(string); !ok || got != "2024/01/02" {
		t.Fatalf("day = %#v, want the raw text value", result.Rows[0][0])
	}
}

func TestExecuteFailsOnClosedDataset(t *testing.T) {
	ds := ingestFixture(t, "a\n1\n")
	engine := NewEngine(0)

	if err := ds.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT a FROM data", Dataset: ds}); !errors.Is(err, dataset.ErrClosed) {
		t.Fatalf("Execute() error = %v, want ErrClosed", err)
	}
}

func TestExecuteRequiresSQLAndDataset(t *testing.T) {
	engine := NewEngine(0)
	if _, err := engine.Execute(context.Background(), query.Request{SQL: "  ", Dataset: &dataset.Dataset{LocalPath: "x"}}); err == nil {
		t.Fatal("expected error for empty sql")
	}
	if _, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT 1"}); err == nil {
		t.Fatal("expected error for missing dataset")
	}
}

func TestExecuteHonorsTimeout(t *testing.T) {
	ds := ingestFixture(t, "a\n1\n")
	engine := NewEngine(time.Nanosecond)

	if _, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT a FROM data", Dataset: ds}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func ingestFixture(t *testing.T, csvBody string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Ingest("fixture.csv", strings.NewReader(csvBody), dataset.Options{})
	if err != nil {
		t.Fatalf("ingest fixture: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int32:
		return int64(typed), true
	case float64:
		return int64(typed), true
	default:
		return 0, false
	}
}
