package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/advocadabra/scr/internal/api"
	"github.com/advocadabra/scr/internal/bootstrap"
	"github.com/advocadabra/scr/internal/config"
	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/engine"
	"github.com/advocadabra/scr/internal/ingest"
	"github.com/advocadabra/scr/internal/retrieval"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
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
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

// bootstrapCorpus writes the mock corpus embedded with the hash encoder and
// opens a retriever over it.
func bootstrapCorpus(t *testing.T) *retrieval.Retriever {
	t.Helper()
	p := corpus.DefaultNames().In(t.TempDir())
	hash := engine.NewHashEngine(128)

	if err := runBootstrap(ctx, p, bootstrap.Options{Embedder: retrieval.NewEmbedder(hash, "")}); err != nil {
		t.Fatalf("runBootstrap: %v", err)
	}
	r, err := retrieval.Open(ctx, retrieval.OpenOptions{Paths: p, Engine: hash})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSearch_Local(t *testing.T) {
	r := bootstrapCorpus(t)

	results, err := search(ctx, r, "patented technology infringement", 3, false, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].CaseID != "case_003" {
		t.Errorf("top result = %s, want case_003", results[0].CaseID)
	}

	all, err := search(ctx, r, "contract", 10, true, 0)
	if err != nil {
		t.Fatalf("exhaustive search: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("exhaustive search returned %d cases, want all 5", len(all))
	}
}

func TestRunBootstrap_ExistingIsNotAnError(t *testing.T) {
	p := corpus.DefaultNames().In(t.TempDir())
	opts := bootstrap.Options{Dimension: 8}

	if err := runBootstrap(ctx, p, opts); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	if err := runBootstrap(ctx, p, opts); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
}

func TestWriteResults(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	results := []retrieval.Result{{CaseID: "case_001", Score: 0.5, TextSample: "Breach of contract"}}

	var buf bytes.Buffer
	if err := writeResults(&buf, results, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "1. case_001") || !strings.Contains(buf.String(), "Breach of contract") {
		t.Errorf("unexpected text output: %q", buf.String())
	}

	buf.Reset()
	if err := writeResults(&buf, results, true); err != nil {
		t.Fatal(err)
	}
	var decoded []retrieval.Result
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if len(decoded) != 1 || decoded[0].CaseID != "case_001" {
		t.Errorf("decoded = %+v", decoded)
	}

	buf.Reset()
	if err := writeResults(&buf, nil, true); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty json output = %q, want []", buf.String())
	}

	buf.Reset()
	writeResults(&buf, nil, false)
	if !strings.Contains(buf.String(), "No similar cases") {
		t.Errorf("empty text output = %q", buf.String())
	}
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "smith-v-jones.txt")
	b := filepath.Join(dir, "doe-v-acme.md")
	if err := os.WriteFile(a, []byte("The employer dismissed the plaintiff after a safety report."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("A software license was breached."), 0o644); err != nil {
		t.Fatal(err)
	}
	dataset := filepath.Join(dir, "out", "dataset.jsonl")

	n, err := ingestFiles(dataset, []string{a, b}, ingest.ConvertOptions{Court: "District Court"})
	if err != nil {
		t.Fatalf("ingestFiles: %v", err)
	}
	if n != 2 {
		t.Fatalf("appended %d records, want 2", n)
	}

	recs, _, err := corpus.LoadDataset(dataset)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if len(recs) != 2 || recs[0].Court != "District Court" || recs[0].CaseID == recs[1].CaseID {
		t.Errorf("records = %+v", recs)
	}
}

func TestIngestFiles_BadFileLeavesDatasetUntouched(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "image.png")
	os.WriteFile(good, []byte("text"), 0o644)
	os.WriteFile(bad, []byte{0x89, 'P', 'N', 'G'}, 0o644)
	dataset := filepath.Join(dir, "dataset.jsonl")

	if _, err := ingestFiles(dataset, []string{good, bad}, ingest.ConvertOptions{}); err == nil {
		t.Fatal("expected error for unsupported file")
	}
	if _, err := os.Stat(dataset); !os.IsNotExist(err) {
		t.Errorf("dataset should not exist after failed ingest, stat err = %v", err)
	}
}

func TestWritablePaths(t *testing.T) {
	cfg := config.Config{}
	cfg.Artifacts.Dir = "s3://bucket/cases"
	cfg.Artifacts.Dataset = "dataset.jsonl"

	if _, err := writablePaths(cfg, ""); err == nil {
		t.Fatal("expected error for remote artifacts dir")
	}

	dir := filepath.Join(t.TempDir(), "nested", "corpus")
	p, err := writablePaths(cfg, dir)
	if err != nil {
		t.Fatalf("writablePaths: %v", err)
	}
	if p.Dataset != filepath.Join(dir, "dataset.jsonl") {
		t.Errorf("dataset path = %q", p.Dataset)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestAPIClient_Retrieve(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/retrieve": `{"query":"x","k":2,"results":[{"case_id":"case_002","score":0.8,"text_sample":"s"}]}`,
	})

	k := 2
	results, err := ts.client().retrieve(ctx, api.RetrieveRequest{Query: "wrongful dismissal", K: &k})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || results[0].CaseID != "case_002" {
		t.Fatalf("results = %+v", results)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/v1/retrieve" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["query"] != "wrongful dismissal" || body["k"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /health": `{"status":"ok"}`})
	client := ts.client()
	client.token = ""

	if !client.healthy(ctx) {
		t.Fatal("expected healthy")
	}
	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want none", ts.requests[0].Auth)
	}
}

func TestAPIClient_Stats(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/stats": `{"rows":7,"cases":5,"dimension":768,"metric":"ip","encoder":"ollama"}`,
	})
	st, err := ts.client().stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Rows != 7 || st.Cases != 5 || st.Dimension != 768 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAPIClient_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	if client.healthy(ctx) {
		t.Fatal("stopped server reported healthy")
	}
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid or missing bearer token","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	_, err := client.stats(ctx)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
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

func TestSearchCommand_MissingQuery(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"search"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing query")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention args", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Encoder.OpenAIAPIKey = "sk-secret"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	var foundPort bool
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			foundPort = true
		}
		if strings.Contains(k.Value, "sk-secret") {
			t.Errorf("secret leaked in %s", k.Key)
		}
	}
	if !foundPort {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestCompleteConfigKey(t *testing.T) {
	keys, _ := completeConfigKey(configSetCmd, nil, "")
	var found bool
	for _, k := range keys {
		if k == "retrieval.top_k" {
			found = true
		}
		if k == "server.api_token" {
			t.Errorf("secret key offered for completion")
		}
	}
	if !found {
		t.Errorf("retrieval.top_k missing from completions %v", keys)
	}
	if keys, _ := completeConfigKey(configSetCmd, []string{"log.level"}, ""); keys != nil {
		t.Errorf("value position completions = %v, want none", keys)
	}
}
