package query

import (
	"context"
	"time"

	"github.com/duckask/duckask/internal/dataset"
)

type Request struct {
	SQL      string
	RowLimit int
	Dataset  *dataset.Dataset
}

type Result struct {
	Columns  []string
	Rows     [][]any
	RowCount int
	Duration time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
