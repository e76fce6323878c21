package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/duckask/duckask/internal/dataset"
	"github.com/duckask/duckask/internal/observability"
)

func handleUploadDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	// Multipart overhead on top of the dataset limit itself.
	maxBody := deps.DatasetOptions.MaxBytes
	if maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody+1<<20)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field \"file\" is required", false, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	format := dataset.Format(header.Filename)
	ds, err := dataset.Ingest(header.Filename, file, deps.DatasetOptions)
	observability.ObserveDatasetUpload(formatLabel(format), err, rowCount(ds))
	if err != nil {
		writeIngestError(deps, w, r, err)
		return
	}

	if err := deps.Sessions.SetDataset(sess.ID, ds); err != nil {
		_ = ds.Close()
		writeError(r.Context(), w, http.StatusUnauthorized, "SESSION_REQUIRED", "unknown or expired session", false, nil)
		return
	}

	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "dataset loaded",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("source", ds.SourceName),
			slog.Int("rows", ds.RowCount),
			slog.Int("columns", len(ds.Columns)),
		)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"source_name": ds.SourceName,
		"table_name":  dataset.TableName,
		"columns":     ds.Columns,
		"row_count":   ds.RowCount,
		"samples":     ds.Samples,
	})
}

func writeIngestError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dataset.ErrUnsupportedFormat):
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "only .csv and .xlsx files are accepted", false, map[string]any{"details": err.Error()})
	case errors.Is(err, dataset.ErrTooLarge):
		writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "upload exceeds the size limit", false, map[string]any{"limit_bytes": deps.DatasetOptions.MaxBytes})
	case errors.Is(err, dataset.ErrEmptyDataset):
		writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_DATASET", "file has no header or no data rows", false, map[string]any{"details": err.Error()})
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "INGEST_FAILED", "failed to parse uploaded file", false, map[string]any{"details": err.Error()})
	}
}

func formatLabel(format string) string {
	if format == "" {
		return "unknown"
	}
	return format
}

func rowCount(ds *dataset.Dataset) int {
	if ds == nil {
		return 0
	}
	return ds.RowCount
}
