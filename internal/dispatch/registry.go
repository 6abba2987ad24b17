package dispatch

import (
	"context"
	"sort"
	"strings"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
)

// Provider is the capability every metadata source implements. One ordered
// registry of these serves both dispatch paths (URL-based and source+id), so
// the generator/formatter pairing cannot drift between them.
type Provider interface {
	Name() string
	// MatchesDomain reports whether the provider claims the input URL by
	// domain, independent of whether an identifier can be extracted from it.
	MatchesDomain(rawURL string) bool
	// ExtractID parses the canonical resource identifier out of a URL the
	// provider claims. The identifier may contain path separators (tmdb uses
	// "movie/550").
	ExtractID(rawURL string) (string, bool)
	Generate(ctx context.Context, id string) (domain.MediaRecord, error)
	Format(record domain.MediaRecord) string
}

// IDNormalizer is an optional interface for providers whose identifiers
// contain path separators: it restores a cache-key-shaped id ("movie_550")
// to its canonical form ("movie/550") on the direct source+id path.
type IDNormalizer interface {
	NormalizeID(id string) string
}

// Registry is an ordered provider list. URL matching scans in registration
// order and the first domain match wins; overlapping domain sets are resolved
// by declaration order.
type Registry struct {
	ordered []Provider
	byName  map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name == "" {
			continue
		}
		if _, exists := registry.byName[name]; exists {
			continue
		}
		registry.byName[name] = provider
		registry.ordered = append(registry.ordered, provider)
	}
	return registry
}

// Match returns the first provider claiming the URL's domain.
func (r *Registry) Match(rawURL string) (Provider, bool) {
	for _, provider := range r.ordered {
		if provider.MatchesDomain(rawURL) {
			return provider, true
		}
	}
	return nil, false
}

func (r *Registry) ByName(name string) (Provider, bool) {
	provider, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return provider, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResourceID derives the cache key for a provider/identifier pair. Path
// separators are flattened to underscores so the key stays a single token;
// identifiers never meaningfully contain underscores for the supported
// sources, so the substitution round-trips.
func ResourceID(providerName, id string) string {
	return providerName + "_" + strings.ReplaceAll(id, "/", "_")
}
