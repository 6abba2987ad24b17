// Package search resolves free-text queries to title candidates. Two
// backends exist, imdb and tmdb, and the automatic mode routes between them
// by inspecting the script of the query.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/metrics"
)

// Backend is a single search source.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string) ([]domain.SearchSummary, error)
}

type Service struct {
	backends map[string]Backend
	logger   *slog.Logger
}

func NewService(logger *slog.Logger, backends ...Backend) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	service := &Service{
		backends: make(map[string]Backend, len(backends)),
		logger:   logger,
	}
	for _, backend := range backends {
		if backend == nil {
			continue
		}
		service.backends[strings.ToLower(backend.Name())] = backend
	}
	return service
}

// Search runs a query against a named backend. Every failure mode, an empty
// result set included, comes back as a structured response so the HTTP layer
// always has an envelope to send.
func (s *Service) Search(ctx context.Context, source, query string) domain.SearchResponse {
	// CJK input often arrives with full-width Latin letters and digits; fold
	// them so upstream APIs see the plain ASCII forms.
	query = strings.TrimSpace(width.Fold.String(query))
	if query == "" {
		return domain.SearchFailure("empty search query")
	}
	name := strings.ToLower(strings.TrimSpace(source))
	backend, ok := s.backends[name]
	if !ok {
		return domain.SearchFailure(fmt.Sprintf("unknown search source: %s", source))
	}

	results, err := backend.Search(ctx, query)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Warn("search failed",
			slog.String("backend", name),
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return domain.SearchFailure(err.Error())
	}
	if len(results) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues(name, "empty").Inc()
		return domain.SearchFailure(fmt.Sprintf("no results for %q", query))
	}
	metrics.SearchRequestsTotal.WithLabelValues(name, "ok").Inc()
	return domain.SearchResponse{Success: true, Data: results}
}

// AutoSearch picks the backend by query script: Chinese-looking queries go
// to tmdb, which carries localized titles, everything else to imdb.
func (s *Service) AutoSearch(ctx context.Context, query string) domain.SearchResponse {
	source := "imdb"
	if IsChineseText(query) {
		source = "tmdb"
	}
	return s.Search(ctx, source, query)
}

// IsChineseText reports whether a query is predominantly CJK. Counting is
// letter-only: a query with more CJK runes than Latin letters is Chinese.
// Queries with fewer than two counted letters are Chinese when at least one
// CJK rune is present.
func IsChineseText(text string) bool {
	var cjk, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) ||
			unicode.Is(unicode.Hangul, r):
			cjk++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if cjk+latin < 2 {
		return cjk >= 1
	}
	return cjk > latin
}
