package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTranslateParsesJSONWithChart(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-session" {
			t.Fatalf("Authorization = %q", got)
		}
		writeChatContent(w, `{"sql":"SELECT region, SUM(total) AS total FROM data GROUP BY region","chart":{"kind":"bar","x":"region","y":"total"}}`)
	})
	defer server.Close()

	translator := newTestTranslator(t, server.URL)
	result, err := translator.Translate(context.Background(), Request{
		Question: "total per region",
		Schema:   "Table \"data\": ...",
		APIKey:   "sk-session",
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if !strings.HasPrefix(result.SQL, "SELECT region") {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Chart == nil || result.Chart.Kind != "bar" || result.Chart.X != "region" {
		t.Fatalf("Chart = %+v", result.Chart)
	}
	if result.Provider != "openai-compatible" {
		t.Fatalf("Provider = %q", result.Provider)
	}
}

func TestTranslateStripsMarkdownFences(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeChatContent(w, "```json\n{\"sql\":\"SELECT 1\"}\n```")
	})
	defer server.Close()

	result, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q", APIKey: "k"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT 1" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Chart != nil {
		t.Fatalf("Chart = %+v, want nil", result.Chart)
	}
}

func TestTranslateAcceptsBareSQLFallback(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeChatContent(w, "```sql\nSELECT COUNT(*) FROM data;\n```")
	})
	defer server.Close()

	result, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q", APIKey: "k"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT COUNT(*) FROM data;" {
		t.Fatalf("SQL = %q", result.SQL)
	}
}

func TestTranslateRetriesTransientFailures(t *testing.T) {
	var calls int
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeChatContent(w, `{"sql":"SELECT 1"}`)
	})
	defer server.Close()

	result, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q", APIKey: "k"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
	if result.SQL != "SELECT 1" {
		t.Fatalf("SQL = %q", result.SQL)
	}
}

func TestTranslateGivesUpAfterRetryBudget(t *testing.T) {
	var calls int
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer server.Close()

	_, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q", APIKey: "k"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestTranslateDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer server.Close()

	_, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q", APIKey: "bad"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want single attempt", calls)
	}
}

func TestTranslateRequiresAPIKey(t *testing.T) {
	translator := newTestTranslator(t, "http://localhost:0")
	if _, err := translator.Translate(context.Background(), Request{Question: "q"}); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestTranslateRejectsEmptySQL(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeChatContent(w, `{"sql":"  "}`)
	})
	defer server.Close()

	if _, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q", APIKey: "k"}); err == nil {
		t.Fatal("expected empty SQL error")
	}
}

func TestTranslateRejectsMalformedJSON(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeChatContent(w, `{"sql": "SELECT 1"`)
	})
	defer server.Close()

	if _, err := newTestTranslator(t, server.URL).Translate(context.Background(), Request{Question: "q", APIKey: "k"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNormalizeChartDropsIncompleteSpecs(t *testing.T) {
	if got := normalizeChart(nil); got != nil {
		t.Fatalf("normalizeChart(nil) = %+v", got)
	}
	sql, spec, err := parseModelOutput(`{"sql":"SELECT 1","chart":{"kind":"bar","x":"a"}}`)
	if err != nil {
		t.Fatalf("parseModelOutput() error = %v", err)
	}
	if sql != "SELECT 1" || spec != nil {
		t.Fatalf("sql=%q spec=%+v", sql, spec)
	}
}

func newTestTranslator(t *testing.T, baseURL string) *OpenAITranslator {
	t.Helper()
	translator, err := NewOpenAITranslator(OpenAIConfig{
		BaseURL:        baseURL,
		Model:          "test-model",
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	return translator
}

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		handler(w, r)
	}))
}

func writeChatContent(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
}
