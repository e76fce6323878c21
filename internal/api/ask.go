package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/duckask/duckask/internal/chart"
	"github.com/duckask/duckask/internal/dataset"
	"github.com/duckask/duckask/internal/nl2sql"
	"github.com/duckask/duckask/internal/observability"
	"github.com/duckask/duckask/internal/query"
	"github.com/duckask/duckask/internal/sqlcheck"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string      `json:"question"`
	SQL      string      `json:"sql"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Columns  []string    `json:"columns"`
	Rows     [][]any     `json:"rows"`
	RowCount int         `json:"row_count"`
	Chart    *chart.Spec `json:"chart,omitempty"`
	Stats    askStats    `json:"stats"`
}

type askStats struct {
	TranslateMillis int64 `json:"translate_ms"`
	QueryMillis     int64 `json:"query_ms"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATOR_NOT_CONFIGURED", "no language model translator is configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question must not be empty", false, nil)
		return
	}

	ds := sess.Dataset
	if ds == nil {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_REQUIRED", "upload a dataset before asking questions", false, nil)
		return
	}

	_ = deps.Sessions.RecordQuestion(sess.ID, question)

	translateStart := time.Now()
	translation, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		Question: question,
		Schema:   dataset.Describe(ds),
		APIKey:   sess.APIKey,
		Model:    sess.Model,
	})
	translateElapsed := time.Since(translateStart)
	observability.ObserveTranslation(err, translateElapsed)
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "translation failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.String("error", err.Error()),
			)
		}
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "could not translate the question to SQL", true, map[string]any{"details": err.Error()})
		return
	}

	if err := sqlcheck.Validate(translation.SQL, dataset.TableName); err != nil {
		rejectSQL(deps, w, r, translation.SQL, err)
		return
	}

	result, err := deps.Engine.Execute(r.Context(), query.Request{
		SQL:      translation.SQL,
		RowLimit: deps.QueryRowLimit,
		Dataset:  ds,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "the generated SQL failed to execute", false, map[string]any{
			"sql":     translation.SQL,
			"details": err.Error(),
		})
		return
	}
	observability.ObserveQueryDuration(result.Duration)

	resolved := chart.Resolve(translation.Chart, result.Columns)
	if translation.Chart != nil && resolved == nil {
		observability.IncrementChartFallback()
	}

	writeJSON(w, http.StatusOK, askResponse{
		Question: question,
		SQL:      translation.SQL,
		Provider: translation.Provider,
		Model:    translation.Model,
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: result.RowCount,
		Chart:    resolved,
		Stats: askStats{
			TranslateMillis: translateElapsed.Milliseconds(),
			QueryMillis:     result.Duration.Milliseconds(),
		},
	})
}

func rejectSQL(deps Dependencies, w http.ResponseWriter, r *http.Request, sqlText string, err error) {
	reason := "invalid"
	var checkErr *sqlcheck.Error
	if errors.As(err, &checkErr) {
		reason = checkErr.Reason
	}
	observability.IncrementSQLRejected(reason)
	if deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "sql rejected",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("reason", reason),
		)
	}
	writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "the SQL statement was rejected by validation", false, map[string]any{
		"reason":  reason,
		"sql":     sqlText,
		"details": err.Error(),
	})
}
