// Package apihttp carries the public HTTP surface: one query endpoint that
// routes by parameter shape, plus health, metrics and a usage page.
package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/ratelimit"
)

// Version is reported in every response envelope.
const Version = "2.0.0"

type Generator interface {
	DispatchURL(ctx context.Context, rawURL string) domain.MediaRecord
	DispatchByID(ctx context.Context, source, id string) domain.MediaRecord
}

type Searcher interface {
	Search(ctx context.Context, source, query string) domain.SearchResponse
	AutoSearch(ctx context.Context, query string) domain.SearchResponse
}

type Server struct {
	generator Generator
	searcher  Searcher
	limiter   *ratelimit.Limiter
	logger    *slog.Logger

	apiKey         string
	trustedName    string
	trustedValue   string
	author         string
	sources        []string
	requestTimeout time.Duration
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func WithRateLimiter(limiter *ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = limiter }
}

// WithAPIKey enables key auth on the data endpoints. The usage page, health
// and metrics stay public.
func WithAPIKey(apiKey string) ServerOption {
	return func(s *Server) { s.apiKey = strings.TrimSpace(apiKey) }
}

// WithTrustedHeader accepts a "Name=Value" pair; requests carrying that
// header skip key auth. Meant for a fronting proxy that authenticated the
// caller already.
func WithTrustedHeader(pair string) ServerOption {
	return func(s *Server) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return
		}
		s.trustedName = strings.TrimSpace(name)
		s.trustedValue = strings.TrimSpace(value)
	}
}

func WithAuthor(author string) ServerOption {
	return func(s *Server) {
		if strings.TrimSpace(author) != "" {
			s.author = strings.TrimSpace(author)
		}
	}
}

// WithSources sets the provider name list shown on the usage page.
func WithSources(sources []string) ServerOption {
	return func(s *Server) { s.sources = sources }
}

func WithRequestTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.requestTimeout = timeout
		}
	}
}

func NewServer(generator Generator, searcher Searcher, options ...ServerOption) *Server {
	server := &Server{
		generator:      generator,
		searcher:       searcher,
		logger:         slog.Default(),
		author:         "Rhilip",
		requestTimeout: 15 * time.Second,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleRoot)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "pt-gen",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	handler := metricsMiddleware(traced)
	handler = s.validateMiddleware(handler)
	handler = corsMiddleware(handler)
	return recoveryMiddleware(s.logger, handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/api":
		s.handleQuery(w, r)
	default:
		s.writeFailure(w, http.StatusNotFound, "not found")
	}
}

// queryParams is the merged parameter set. POST bodies override query string
// values field by field, so a JSON body can fill in just the key it needs.
type queryParams struct {
	URL    string
	Source string
	Query  string
	SID    string
	TMDBID string
}

// bodyParams is the POST body shape. "query" and "source" are the canonical
// field names; "search" and "site" are accepted aliases, matching the query
// string handling.
type bodyParams struct {
	URL    string `json:"url"`
	Source string `json:"source"`
	Site   string `json:"site"`
	Query  string `json:"query"`
	Search string `json:"search"`
	SID    string `json:"sid"`
	TMDBID string `json:"tmdb_id"`
}

func (q *queryParams) empty() bool {
	return q.URL == "" && q.Source == "" && q.Query == "" && q.SID == "" && q.TMDBID == ""
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		s.writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	params, err := s.parseParams(r)
	if err != nil {
		s.writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.Method == http.MethodGet && params.empty() {
		s.handleDocs(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	// Parameter precedence: an explicit url wins, then named-source search,
	// then automatic search, then direct source+id lookups.
	switch {
	case params.URL != "":
		s.writeEnvelope(w, s.generator.DispatchURL(ctx, params.URL))
	case params.Source != "" && params.Query != "":
		s.writeSearch(w, s.searcher.Search(ctx, params.Source, params.Query))
	case params.Query != "":
		s.writeSearch(w, s.searcher.AutoSearch(ctx, params.Query))
	case params.TMDBID != "":
		s.writeEnvelope(w, s.generator.DispatchByID(ctx, "tmdb", params.TMDBID))
	case params.Source != "" && params.SID != "":
		s.writeEnvelope(w, s.generator.DispatchByID(ctx, params.Source, params.SID))
	default:
		s.writeFailure(w, http.StatusBadRequest,
			"invalid parameters: provide url, search, tmdb_id, or source with sid")
	}
}

func (s *Server) parseParams(r *http.Request) (queryParams, error) {
	values := r.URL.Query()
	params := queryParams{
		URL:    strings.TrimSpace(values.Get("url")),
		Source: strings.TrimSpace(firstOf(values.Get("source"), values.Get("site"))),
		Query:  strings.TrimSpace(firstOf(values.Get("search"), values.Get("query"))),
		SID:    strings.TrimSpace(values.Get("sid")),
		TMDBID: strings.TrimSpace(values.Get("tmdb_id")),
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return params, nil
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return params, errors.New("read request body")
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return params, nil
	}
	var body bodyParams
	if err := json.Unmarshal(payload, &body); err != nil {
		return params, errors.New("invalid json body")
	}
	if v := strings.TrimSpace(body.URL); v != "" {
		params.URL = v
	}
	if v := strings.TrimSpace(firstOf(body.Source, body.Site)); v != "" {
		params.Source = v
	}
	if v := strings.TrimSpace(firstOf(body.Query, body.Search)); v != "" {
		params.Query = v
	}
	if v := strings.TrimSpace(body.SID); v != "" {
		params.SID = v
	}
	if v := strings.TrimSpace(body.TMDBID); v != "" {
		params.TMDBID = v
	}
	return params, nil
}

// writeEnvelope renders a record inside the response envelope. Generation
// failures are still HTTP 200: the envelope's success flag is the contract.
func (s *Server) writeEnvelope(w http.ResponseWriter, record domain.MediaRecord) {
	writeJSON(w, http.StatusOK, s.envelope(record))
}

func (s *Server) writeSearch(w http.ResponseWriter, response domain.SearchResponse) {
	writeJSON(w, http.StatusOK, s.envelope(response))
}

func (s *Server) writeFailure(w http.ResponseWriter, status int, message string) {
	payload := s.envelope(domain.MediaRecord{Success: false, Error: message})
	writeJSON(w, status, payload)
}

// envelope flattens a payload struct into a map and stamps the version,
// copyright and generation time fields every response carries.
func (s *Server) envelope(payload any) map[string]any {
	flattened := make(map[string]any)
	if encoded, err := json.Marshal(payload); err == nil {
		_ = json.Unmarshal(encoded, &flattened)
	}
	flattened["version"] = Version
	flattened["copyright"] = "Powered by @" + s.author
	flattened["generate_at"] = time.Now().UnixMilli()
	return flattened
}

func firstOf(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
