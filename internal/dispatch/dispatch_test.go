package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/cache"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
)

type fakeProvider struct {
	name      string
	domains   []string
	idPrefix  string
	generated int
	err       error
	normalize bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) MatchesDomain(rawURL string) bool {
	for _, domainName := range f.domains {
		if strings.Contains(rawURL, domainName) {
			return true
		}
	}
	return false
}

func (f *fakeProvider) ExtractID(rawURL string) (string, bool) {
	idx := strings.Index(rawURL, f.idPrefix)
	if idx < 0 {
		return "", false
	}
	id := rawURL[idx+len(f.idPrefix):]
	id = strings.TrimRight(id, "/")
	if id == "" {
		return "", false
	}
	return id, true
}

func (f *fakeProvider) Generate(_ context.Context, id string) (domain.MediaRecord, error) {
	f.generated++
	if f.err != nil {
		return domain.MediaRecord{}, f.err
	}
	return domain.MediaRecord{Success: true, Title: f.name + ":" + id}, nil
}

func (f *fakeProvider) Format(record domain.MediaRecord) string {
	return "formatted " + record.Title
}

func (f *fakeProvider) NormalizeID(id string) string {
	if !f.normalize {
		return id
	}
	return strings.ReplaceAll(id, "_", "/")
}

type fakeArchive struct {
	records map[string]domain.MediaRecord
	err     error
	lookups int
}

func (f *fakeArchive) Lookup(_ context.Context, resourceID string) (domain.MediaRecord, bool, error) {
	f.lookups++
	if f.err != nil {
		return domain.MediaRecord{}, false, f.err
	}
	record, ok := f.records[resourceID]
	return record, ok, nil
}

func newTestDispatcher(archive ArchiveSource, providers ...Provider) *Dispatcher {
	executor := cache.NewExecutor(cache.NewMemoryStore(), nil)
	return NewDispatcher(NewRegistry(providers...), executor, archive, nil)
}

func TestDispatchURLRoutesByDomain(t *testing.T) {
	douban := &fakeProvider{name: "douban", domains: []string{"douban.com"}, idPrefix: "subject/"}
	imdb := &fakeProvider{name: "imdb", domains: []string{"imdb.com"}, idPrefix: "title/"}
	dispatcher := newTestDispatcher(nil, douban, imdb)

	record := dispatcher.DispatchURL(context.Background(), "https://movie.douban.com/subject/1292052/")
	if !record.Success {
		t.Fatalf("expected success, got %q", record.Error)
	}
	if record.Site != "douban" || record.SID != "1292052" {
		t.Errorf("site/sid = %q/%q", record.Site, record.SID)
	}
	if douban.generated != 1 || imdb.generated != 0 {
		t.Errorf("generated douban=%d imdb=%d", douban.generated, imdb.generated)
	}
	if record.Format != "formatted douban:1292052" {
		t.Errorf("format = %q", record.Format)
	}
}

func TestDispatchURLUnsupportedDomain(t *testing.T) {
	dispatcher := newTestDispatcher(nil, &fakeProvider{name: "douban", domains: []string{"douban.com"}, idPrefix: "subject/"})

	record := dispatcher.DispatchURL(context.Background(), "https://example.com/whatever")
	if record.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(record.Error, domain.ErrUnsupportedURL.Error()) {
		t.Errorf("error = %q", record.Error)
	}
}

func TestDispatchURLNoIdentifier(t *testing.T) {
	dispatcher := newTestDispatcher(nil, &fakeProvider{name: "douban", domains: []string{"douban.com"}, idPrefix: "subject/"})

	record := dispatcher.DispatchURL(context.Background(), "https://movie.douban.com/chart")
	if record.Success {
		t.Fatal("expected failure")
	}
	if record.Site != "douban" {
		t.Errorf("site = %q", record.Site)
	}
}

func TestDispatchURLFirstMatchWins(t *testing.T) {
	first := &fakeProvider{name: "first", domains: []string{"shared.com"}, idPrefix: "id/"}
	second := &fakeProvider{name: "second", domains: []string{"shared.com"}, idPrefix: "id/"}
	dispatcher := newTestDispatcher(nil, first, second)

	record := dispatcher.DispatchURL(context.Background(), "https://shared.com/id/42")
	if record.Site != "first" {
		t.Errorf("site = %q, want first", record.Site)
	}
	if second.generated != 0 {
		t.Errorf("second provider ran %d times", second.generated)
	}
}

func TestDispatchByIDUnknownSource(t *testing.T) {
	dispatcher := newTestDispatcher(nil, &fakeProvider{name: "douban", domains: []string{"douban.com"}, idPrefix: "subject/"})

	record := dispatcher.DispatchByID(context.Background(), "netflix", "42")
	if record.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(record.Error, "netflix") {
		t.Errorf("error = %q", record.Error)
	}
}

func TestDispatchByIDNormalizesCacheKeyShape(t *testing.T) {
	tmdb := &fakeProvider{name: "tmdb", domains: []string{"themoviedb.org"}, idPrefix: "org/", normalize: true}
	dispatcher := newTestDispatcher(nil, tmdb)

	record := dispatcher.DispatchByID(context.Background(), "tmdb", "movie_550")
	if !record.Success {
		t.Fatalf("expected success, got %q", record.Error)
	}
	if record.SID != "movie/550" {
		t.Errorf("sid = %q, want movie/550", record.SID)
	}
}

func TestDispatchCachesSecondCall(t *testing.T) {
	douban := &fakeProvider{name: "douban", domains: []string{"douban.com"}, idPrefix: "subject/"}
	dispatcher := newTestDispatcher(nil, douban)

	dispatcher.DispatchURL(context.Background(), "https://movie.douban.com/subject/1/")
	record := dispatcher.DispatchURL(context.Background(), "https://movie.douban.com/subject/1/")

	if douban.generated != 1 {
		t.Errorf("generated %d times, want 1", douban.generated)
	}
	// The formatter still runs on the cached copy.
	if record.Format != "formatted douban:1" {
		t.Errorf("format = %q", record.Format)
	}
}

func TestDispatchGenerationErrorBecomesFailure(t *testing.T) {
	broken := &fakeProvider{name: "douban", domains: []string{"douban.com"}, idPrefix: "subject/", err: errors.New("anti-bot wall")}
	dispatcher := newTestDispatcher(nil, broken)

	record := dispatcher.DispatchURL(context.Background(), "https://movie.douban.com/subject/1/")
	if record.Success {
		t.Fatal("expected failure")
	}
	if record.Error != "anti-bot wall" {
		t.Errorf("error = %q", record.Error)
	}

	// Failures are never cached, so the next call generates again.
	dispatcher.DispatchURL(context.Background(), "https://movie.douban.com/subject/1/")
	if broken.generated != 2 {
		t.Errorf("generated %d times, want 2", broken.generated)
	}
}

func TestDispatchConsultsArchiveFirst(t *testing.T) {
	douban := &fakeProvider{name: "douban", domains: []string{"douban.com"}, idPrefix: "subject/"}
	archived := &fakeArchive{records: map[string]domain.MediaRecord{
		"douban_1292052": {Site: "douban", SID: "1292052", Success: true, Title: "archived copy"},
	}}
	dispatcher := newTestDispatcher(archived, douban)

	record := dispatcher.DispatchURL(context.Background(), "https://movie.douban.com/subject/1292052/")
	if !record.Success || record.Title != "archived copy" {
		t.Fatalf("record = %+v", record)
	}
	if douban.generated != 0 {
		t.Errorf("live generator ran %d times", douban.generated)
	}
}

func TestDispatchArchiveErrorFallsThroughToLive(t *testing.T) {
	douban := &fakeProvider{name: "douban", domains: []string{"douban.com"}, idPrefix: "subject/"}
	dispatcher := newTestDispatcher(&fakeArchive{err: errors.New("mongo down")}, douban)

	record := dispatcher.DispatchURL(context.Background(), "https://movie.douban.com/subject/1/")
	if !record.Success {
		t.Fatalf("expected live fallback, got %q", record.Error)
	}
	if douban.generated != 1 {
		t.Errorf("generated %d times, want 1", douban.generated)
	}
}

func TestResourceID(t *testing.T) {
	tests := []struct {
		provider, id, want string
	}{
		{"douban", "1292052", "douban_1292052"},
		{"tmdb", "movie/550", "tmdb_movie_550"},
		{"imdb", "tt0111161", "imdb_tt0111161"},
	}
	for _, tt := range tests {
		if got := ResourceID(tt.provider, tt.id); got != tt.want {
			t.Errorf("ResourceID(%q, %q) = %q, want %q", tt.provider, tt.id, got, tt.want)
		}
	}
}

func TestRegistryNames(t *testing.T) {
	registry := NewRegistry(
		&fakeProvider{name: "tmdb"},
		&fakeProvider{name: "douban"},
		&fakeProvider{name: "douban"},
	)
	names := registry.Names()
	if len(names) != 2 || names[0] != "douban" || names[1] != "tmdb" {
		t.Errorf("names = %v", names)
	}
}
