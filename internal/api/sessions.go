package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type createSessionRequest struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session manager is not configured", false, nil)
		return
	}

	var request createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid session request body", false, map[string]any{"details": err.Error()})
			return
		}
	}

	sess := deps.Sessions.Create(request.APIKey, request.Model)
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
	})
}

func handleUpdateCredentials(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var request createSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid credentials request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.APIKey) == "" && strings.TrimSpace(request.Model) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CREDENTIALS_REQUIRED", "api_key or model is required", false, nil)
		return
	}

	if err := deps.Sessions.SetCredentials(sess.ID, request.APIKey, request.Model); err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "SESSION_REQUIRED", "unknown or expired session", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}
