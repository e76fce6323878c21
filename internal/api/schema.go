package api

import (
	"net/http"

	"github.com/duckask/duckask/internal/dataset"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	ds := sess.Dataset
	if ds == nil {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_REQUIRED", "no dataset is loaded for this session", false, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source_name": ds.SourceName,
		"table_name":  dataset.TableName,
		"description": dataset.Describe(ds),
		"columns":     ds.Columns,
		"row_count":   ds.RowCount,
		"samples":     ds.Samples,
	})
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	history := sess.History
	if history == nil {
		history = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": history})
}
