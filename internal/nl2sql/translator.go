package nl2sql

import (
	"context"

	"github.com/duckask/duckask/internal/chart"
)

type Request struct {
	// Question is the user's natural language query.
	Question string
	// Schema is the dataset description produced by dataset.Describe.
	Schema string
	// APIKey and Model override the service defaults per session.
	APIKey string
	Model  string
}

type Result struct {
	SQL      string
	Chart    *chart.Spec
	Provider string
	Model    string
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
