package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("duckask-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Dataset.MaxUploadBytes != 32<<20 {
		t.Fatalf("Dataset.MaxUploadBytes = %d", cfg.Dataset.MaxUploadBytes)
	}
	if cfg.Dataset.SampleRows != 5 {
		t.Fatalf("Dataset.SampleRows = %d", cfg.Dataset.SampleRows)
	}
	if cfg.AI.Model != "gpt-5" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.RetryAttempts != 3 {
		t.Fatalf("AI.RetryAttempts = %d", cfg.AI.RetryAttempts)
	}
	if cfg.Query.RowLimit != 500 {
		t.Fatalf("Query.RowLimit = %d", cfg.Query.RowLimit)
	}
	if cfg.Session.HistoryLimit != 20 {
		t.Fatalf("Session.HistoryLimit = %d", cfg.Session.HistoryLimit)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"DUCKASK_PROFILE": "prod"})
	cfg, err := Load("duckask-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DUCKASK_PROFILE":                  "test",
		"DUCKASK_SERVICE_NAME":             "duckask-custom",
		"DUCKASK_HTTP_ADDR":                ":9999",
		"DUCKASK_HTTP_READ_TIMEOUT":        "2s",
		"DUCKASK_DATASET_MAX_UPLOAD_BYTES": "1048576",
		"DUCKASK_DATASET_SAMPLE_ROWS":      "3",
		"DUCKASK_AI_BASE_URL":              "http://localhost:9090",
		"DUCKASK_AI_MODEL":                 "local-model",
		"DUCKASK_AI_TEMPERATURE":           "0.5",
		"DUCKASK_AI_RETRY_ATTEMPTS":        "5",
		"DUCKASK_AI_RETRY_BASE_DELAY":      "100ms",
		"DUCKASK_QUERY_ROW_LIMIT":          "42",
		"DUCKASK_QUERY_TIMEOUT":            "7s",
		"DUCKASK_SESSION_IDLE_TTL":         "10m",
		"DUCKASK_LOG_LEVEL":                "error",
		"DUCKASK_LOG_JSON":                 "false",
	})
	cfg, err := Load("duckask-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "duckask-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.Dataset.MaxUploadBytes != 1048576 {
		t.Fatalf("Dataset.MaxUploadBytes = %d", cfg.Dataset.MaxUploadBytes)
	}
	if cfg.Dataset.SampleRows != 3 {
		t.Fatalf("Dataset.SampleRows = %d", cfg.Dataset.SampleRows)
	}
	if cfg.AI.BaseURL != "http://localhost:9090" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.Temperature != 0.5 {
		t.Fatalf("AI.Temperature = %v", cfg.AI.Temperature)
	}
	if cfg.AI.RetryAttempts != 5 {
		t.Fatalf("AI.RetryAttempts = %d", cfg.AI.RetryAttempts)
	}
	if cfg.AI.RetryBaseDelay != 100*time.Millisecond {
		t.Fatalf("AI.RetryBaseDelay = %v", cfg.AI.RetryBaseDelay)
	}
	if cfg.Query.RowLimit != 42 {
		t.Fatalf("Query.RowLimit = %d", cfg.Query.RowLimit)
	}
	if cfg.Query.Timeout != 7*time.Second {
		t.Fatalf("Query.Timeout = %v", cfg.Query.Timeout)
	}
	if cfg.Session.IdleTTL != 10*time.Minute {
		t.Fatalf("Session.IdleTTL = %v", cfg.Session.IdleTTL)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogJSON {
		t.Fatal("LogJSON should be false")
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	if _, err := Load("duckask-api", mapLookup(map[string]string{"DUCKASK_PROFILE": "staging"})); err == nil {
		t.Fatal("expected error for invalid profile")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":  {"DUCKASK_HTTP_READ_TIMEOUT": "fast"},
		"bad int":       {"DUCKASK_QUERY_ROW_LIMIT": "many"},
		"bad float":     {"DUCKASK_AI_TEMPERATURE": "warm"},
		"bad log level": {"DUCKASK_LOG_LEVEL": "loud"},
		"zero limit":    {"DUCKASK_QUERY_ROW_LIMIT": "0"},
		"zero upload":   {"DUCKASK_DATASET_MAX_UPLOAD_BYTES": "0"},
	}
	for name, env := range cases {
		if _, err := Load("duckask-api", mapLookup(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
