package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/index"
	"github.com/advocadabra/scr/internal/retrieval"
)

const maxRequestBodySize = 64 << 10 // 64KB

// DefaultMaxK caps k for a single request.
const DefaultMaxK = 1000

// Searcher is the retrieval surface the API exposes.
type Searcher interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Result, error)
	RetrieveExhaustive(ctx context.Context, query string, k, maxRounds int) ([]retrieval.Result, error)
	Row(row int) (retrieval.RowDetail, error)
	Stats() retrieval.Stats
}

// Deps holds handler dependencies.
type Deps struct {
	Retriever Searcher
	// Token enables bearer auth on /v1 routes when non-empty.
	Token    string
	DefaultK int
	MaxK     int
}

// RetrieveRequest is the body of POST /v1/retrieve.
type RetrieveRequest struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
	// Exhaustive widens the candidate pool until k cases are found.
	Exhaustive bool `json:"exhaustive,omitempty"`
	MaxRounds  int  `json:"max_rounds,omitempty"`
}

// RetrieveResponse is returned by /v1/retrieve.
type RetrieveResponse struct {
	Query   string             `json:"query"`
	K       int                `json:"k"`
	Results []retrieval.Result `json:"results"`
}

// NewHandler returns the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	if deps.DefaultK <= 0 {
		deps.DefaultK = 10
	}
	if deps.MaxK <= 0 {
		deps.MaxK = DefaultMaxK
	}

	r := chi.NewRouter()
	r.Use(RequestLogger)

	r.Get("/health", handleHealth)
	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/stats", handleStats(deps))
		r.Get("/retrieve", handleRetrieveQuery(deps))
		r.Post("/retrieve", handleRetrieveBody(deps))
		r.Get("/rows/{row}", handleRow(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Retriever.Stats())
	}
}

func handleRetrieveQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := RetrieveRequest{Query: q.Get("q")}
		if raw := q.Get("k"); raw != "" {
			k, err := strconv.Atoi(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "k must be an integer, got %q", raw)
				return
			}
			req.K = &k
		}
		if raw := q.Get("exhaustive"); raw != "" {
			ex, err := strconv.ParseBool(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "exhaustive must be a boolean, got %q", raw)
				return
			}
			req.Exhaustive = ex
		}
		serveRetrieve(w, r, deps, req)
	}
}

func handleRetrieveBody(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req RetrieveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		serveRetrieve(w, r, deps, req)
	}
}

func serveRetrieve(w http.ResponseWriter, r *http.Request, deps Deps, req RetrieveRequest) {
	k := deps.DefaultK
	if req.K != nil {
		k = *req.K
	}
	if k > deps.MaxK {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "k must be at most %d", deps.MaxK)
		return
	}

	var (
		results []retrieval.Result
		err     error
	)
	if req.Exhaustive {
		results, err = deps.Retriever.RetrieveExhaustive(r.Context(), req.Query, k, req.MaxRounds)
	} else {
		results, err = deps.Retriever.Retrieve(r.Context(), req.Query, k)
	}
	if err != nil {
		code, errType := classify(err)
		slog.Error("retrieve failed", "error", err, "k", k)
		httpError(w, code, errType, "retrieve failed: %v", err)
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	writeJSON(w, http.StatusOK, RetrieveResponse{Query: req.Query, K: k, Results: results})
}

func handleRow(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "row")
		row, err := strconv.Atoi(raw)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "row must be an integer, got %q", raw)
			return
		}
		d, err := deps.Retriever.Row(row)
		if err != nil {
			code, errType := classify(err)
			httpError(w, code, errType, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// classify maps domain errors to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, corpus.ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, retrieval.ErrEncoding):
		return http.StatusBadGateway, "encoder_error"
	case errors.Is(err, index.ErrDimensionMismatch):
		return http.StatusInternalServerError, "configuration_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
