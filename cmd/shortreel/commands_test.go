package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/minhvu/shortreel/internal/config"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestKeysAdd(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/keys/gemini": `{"id":"k-1","masked":"AIza**********wxyz"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/v1/keys/gemini", map[string]string{"secret": "AIza-secret-value-wxyz"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result["id"] != "k-1" {
		t.Errorf("id = %q, want k-1", result["id"])
	}
	if !strings.Contains(result["masked"], "*") {
		t.Errorf("masked = %q, want a masked value", result["masked"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["secret"] != "AIza-secret-value-wxyz" {
		t.Errorf("body.secret = %q, want the raw secret", body["secret"])
	}
}

func TestKeysList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/keys/openai": `{"keys":[{"id":"k-1","masked":"sk-a****wxyz"},{"id":"k-2","masked":"sk-b****mnop"}],"activeKeyId":"k-2"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/v1/keys/openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Keys []struct {
			ID     string `json:"id"`
			Masked string `json:"masked"`
		} `json:"keys"`
		ActiveKeyID string `json:"activeKeyId"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(result.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(result.Keys))
	}
	if result.ActiveKeyID != "k-2" {
		t.Errorf("activeKeyId = %q, want k-2", result.ActiveKeyID)
	}
	for _, k := range result.Keys {
		if strings.Contains(k.Masked, "secret") || len(k.Masked) == 0 {
			t.Errorf("masked = %q, want a redacted display value", k.Masked)
		}
	}
}

func TestKeysUse(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /v1/keys/gemini/k-1/activate": `{"status":"activated"}`,
	})

	client := ts.client()
	resp, err := client.put(ctx, "/v1/keys/gemini/k-1/activate", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "activated" {
		t.Errorf("status = %q, want activated", result["status"])
	}
	if ts.requests[0].Method != "PUT" {
		t.Errorf("method = %q, want PUT", ts.requests[0].Method)
	}
}

func TestSessionsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/sessions": `[{"id":"11111111-aaaa","name":"The Last Lighthouse","createdAt":"2025-06-01T10:00:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/v1/sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sessions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := decodeJSON(resp, &sessions); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Name != "The Last Lighthouse" {
		t.Errorf("name = %q, want The Last Lighthouse", sessions[0].Name)
	}
}

func TestSessionsImport_ModeQueryAndRawBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/sessions/import": `{"status":"imported","added":2}`,
	})

	payload := `[{"id":"a","name":"one","createdAt":"2025-01-01T00:00:00Z","state":{}}]`

	client := ts.client()
	resp, err := client.postRaw(ctx, "/v1/sessions/import?mode=replace", []byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Added int `json:"added"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Added != 2 {
		t.Errorf("added = %d, want 2", result.Added)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if !strings.Contains(r.Path, "mode=replace") {
		t.Errorf("path = %q, want mode=replace query", r.Path)
	}
	if r.Body != payload {
		t.Errorf("body = %q, want the file passed through untouched", r.Body)
	}
	if r.ContentType != "application/json" {
		t.Errorf("content type = %q, want application/json", r.ContentType)
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"no active key for gemini","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/v1/pipeline")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "authentication_error") {
		t.Errorf("error = %q, want it to carry the classified kind", err.Error())
	}
	if !strings.Contains(err.Error(), "no active key") {
		t.Errorf("error = %q, want it to carry the server message", err.Error())
	}
}

func TestServerNotReachable(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestSessionsImport_RejectsBadMode(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"sessions", "import", "nonexistent.json", "--mode", "sideways"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for invalid mode")
	}
	if !strings.Contains(err.Error(), "merge or replace") {
		t.Errorf("error = %q, want it to mention valid modes", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.Defaults.Model = "gemini-2.5-flash"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	foundPort := false
	foundModel := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4600" {
			foundPort = true
		}
		if k.Key == "defaults.model" && k.Value == "gemini-2.5-flash" {
			foundModel = true
		}
	}
	if !foundPort {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
	if !foundModel {
		t.Error("expected to find defaults.model in ShowAll output")
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"WARN", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := logLevel(tt.name).String(); got != tt.want {
			t.Errorf("logLevel(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}
