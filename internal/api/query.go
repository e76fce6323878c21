package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/duckask/duckask/internal/dataset"
	"github.com/duckask/duckask/internal/observability"
	"github.com/duckask/duckask/internal/query"
	"github.com/duckask/duckask/internal/sqlcheck"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	SQL      string   `json:"sql"`
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
	Stats    askStats `json:"stats"`
}

// handleQuery runs user-supplied SQL directly, skipping translation. The
// same validation gate applies as for generated SQL.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql must not be empty", false, nil)
		return
	}

	ds := sess.Dataset
	if ds == nil {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_REQUIRED", "upload a dataset before running queries", false, nil)
		return
	}

	if err := sqlcheck.Validate(request.SQL, dataset.TableName); err != nil {
		rejectSQL(deps, w, r, request.SQL, err)
		return
	}

	limit := request.RowLimit
	if limit <= 0 || limit > deps.QueryRowLimit {
		limit = deps.QueryRowLimit
	}

	result, err := deps.Engine.Execute(r.Context(), query.Request{
		SQL:      request.SQL,
		RowLimit: limit,
		Dataset:  ds,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "the SQL statement failed to execute", false, map[string]any{
			"sql":     request.SQL,
			"details": err.Error(),
		})
		return
	}
	observability.ObserveQueryDuration(result.Duration)

	writeJSON(w, http.StatusOK, queryResponse{
		SQL:      request.SQL,
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: result.RowCount,
		Stats:    askStats{QueryMillis: result.Duration.Milliseconds()},
	})
}
