package bangumi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/fetch"
)

const subjectJSON = `{
  "id": 253,
  "type": 2,
  "name": "カウボーイビバップ",
  "name_cn": "星际牛仔",
  "summary": "2071年的太阳系。",
  "date": "1998-04-03",
  "eps": 26,
  "images": {"large": "https://lain.bgm.tv/pic/cover/l/c9/f0/253_8cCmB.jpg"},
  "rating": {"score": 9.1, "total": 10623},
  "tags": [{"name": "科幻"}, {"name": "SUNRISE"}],
  "infobox": [
    {"key": "話数", "value": "26"},
    {"key": "監督", "value": "渡辺信一郎"},
    {"key": "别名", "value": [{"v": "Cowboy Bebop"}, {"v": "恶男杰特"}]}
  ]
}`

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		Fetcher:   fetch.NewClient(server.Client()),
		BaseURL:   server.URL,
		UserAgent: "rabbitwit/pt-gen-refactor (test)",
	})
}

func TestExtractID(t *testing.T) {
	provider := New(Config{})

	tests := []struct {
		rawURL string
		want   string
		ok     bool
	}{
		{"https://bgm.tv/subject/253", "253", true},
		{"https://bangumi.tv/subject/253/comments", "253", true},
		{"https://bgm.tv/character/1", "", false},
	}
	for _, tt := range tests {
		got, ok := provider.ExtractID(tt.rawURL)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractID(%q) = %q, %v; want %q, %v", tt.rawURL, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGenerateParsesSubject(t *testing.T) {
	var gotUserAgent string
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/subjects/253" {
			http.NotFound(w, r)
			return
		}
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(subjectJSON))
	}))

	record, err := provider.Generate(context.Background(), "253")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !record.Success {
		t.Fatal("expected success")
	}
	if record.Title != "星际牛仔" || record.OriginalTitle != "カウボーイビバップ" {
		t.Errorf("titles = %q / %q", record.Title, record.OriginalTitle)
	}
	if record.Subtype != "anime" {
		t.Errorf("subtype = %q", record.Subtype)
	}
	if record.Year != 1998 {
		t.Errorf("year = %d", record.Year)
	}
	if record.Episodes != "26" {
		t.Errorf("episodes = %q", record.Episodes)
	}
	if record.BangumiScore != 9.1 || record.BangumiVotes != 10623 {
		t.Errorf("rating = %v votes = %d", record.BangumiScore, record.BangumiVotes)
	}
	if len(record.Director) != 1 || record.Director[0] != "渡辺信一郎" {
		t.Errorf("director = %v", record.Director)
	}
	if len(record.Aka) != 2 {
		t.Errorf("aka = %v", record.Aka)
	}
	if record.Link != "https://bgm.tv/subject/253" {
		t.Errorf("link = %q", record.Link)
	}
	if gotUserAgent != "rabbitwit/pt-gen-refactor (test)" {
		t.Errorf("user agent = %q", gotUserAgent)
	}
}

func TestGenerateFallsBackToOriginalName(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 1, "type": 4, "name": "Outer Wilds", "name_cn": ""}`))
	}))

	record, err := provider.Generate(context.Background(), "1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if record.Title != "Outer Wilds" || record.OriginalTitle != "" {
		t.Errorf("titles = %q / %q", record.Title, record.OriginalTitle)
	}
	if record.Subtype != "game" {
		t.Errorf("subtype = %q", record.Subtype)
	}
}

func TestGenerateEmptySubject(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	if _, err := provider.Generate(context.Background(), "404"); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestGenerateRejectsBadID(t *testing.T) {
	provider := New(Config{Fetcher: fetch.NewClient(nil)})
	if _, err := provider.Generate(context.Background(), "abc"); err == nil {
		t.Fatal("expected error for non-numeric identifier")
	}
}
