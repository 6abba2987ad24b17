package apihttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/cache"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/dispatch"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/douban"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/fetch"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/search"
)

const doubanSubjectHTML = `<!DOCTYPE html>
<html><body>
<div id="content">
<h1><span property="v:itemreviewed">盗梦空间 Inception</span>
<span class="year">(2010)</span></h1>
<div id="info">
导演: 克里斯托弗·诺兰<br/>
片长: 148分钟<br/>
IMDb: tt1375666<br/>
</div>
<strong property="v:average">9.4</strong>
<span property="v:votes">2000000</span>
<span property="v:summary">　　造梦师。</span>
</div>
</body></html>`

// Full stack: HTTP handler, dispatcher, cache executor and a real douban
// provider scraping a local upstream.
func TestEndToEndURLGeneration(t *testing.T) {
	var upstreamHits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subject/3541415/" {
			http.NotFound(w, r)
			return
		}
		upstreamHits++
		w.Write([]byte(doubanSubjectHTML))
	}))
	defer upstream.Close()

	provider := douban.New(douban.Config{
		Fetcher: fetch.NewClient(upstream.Client()),
		Mirrors: []string{upstream.URL},
	})
	executor := cache.NewExecutor(cache.NewMemoryStore(), nil)
	dispatcher := dispatch.NewDispatcher(dispatch.NewRegistry(provider), executor, nil, nil)
	handler := NewServer(dispatcher, search.NewService(nil)).Handler()

	get := func() map[string]any {
		req := httptest.NewRequest(http.MethodGet,
			"/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F3541415%2F", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		payload := make(map[string]any)
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return payload
	}

	payload := get()
	if payload["success"] != true {
		t.Fatalf("success = %v, error = %v", payload["success"], payload["error"])
	}
	if payload["site"] != "douban" || payload["sid"] != "3541415" {
		t.Errorf("site/sid = %v/%v", payload["site"], payload["sid"])
	}
	if payload["title"] != "盗梦空间" {
		t.Errorf("title = %v", payload["title"])
	}
	format, _ := payload["format"].(string)
	if !strings.Contains(format, "◎片　　名　盗梦空间") {
		t.Errorf("format = %q", format)
	}
	if !strings.Contains(format, "◎豆瓣评分　9.4/10 from 2000000 users") {
		t.Errorf("format missing rating: %q", format)
	}

	// Second request comes from cache, the format still renders.
	payload = get()
	if upstreamHits != 1 {
		t.Errorf("upstream hits = %d, want 1", upstreamHits)
	}
	if format, _ := payload["format"].(string); !strings.Contains(format, "盗梦空间") {
		t.Errorf("cached response lost format: %q", format)
	}
}

func TestEndToEndUnsupportedURLStays200(t *testing.T) {
	executor := cache.NewExecutor(cache.NewMemoryStore(), nil)
	dispatcher := dispatch.NewDispatcher(dispatch.NewRegistry(), executor, nil, nil)
	handler := NewServer(dispatcher, search.NewService(nil)).Handler()

	req := httptest.NewRequest(http.MethodGet, "/?url=https%3A%2F%2Fexample.com%2Fmovie%2F1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	payload := make(map[string]any)
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["success"] != false {
		t.Errorf("success = %v", payload["success"])
	}
}
