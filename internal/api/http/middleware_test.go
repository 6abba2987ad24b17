package apihttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/ratelimit"
)

func TestCORSPreflight(t *testing.T) {
	server := NewServer(&fakeGenerator{}, &fakeSearcher{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestAuthRequiredWhenKeyConfigured(t *testing.T) {
	server := NewServer(&fakeGenerator{record: okRecord()}, &fakeSearcher{},
		WithAPIKey("secret"))
	handler := server.Handler()

	rec, _ := doRequest(t, handler, http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", rec.Code)
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F&key=secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status with key parameter = %d, want 200", rec.Code)
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F&apikey=secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status with apikey parameter = %d, want 200", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F", nil)
	req.Header.Set("X-Api-Key", "secret")
	headerRec := httptest.NewRecorder()
	handler.ServeHTTP(headerRec, req)
	if headerRec.Code != http.StatusOK {
		t.Fatalf("status with header key = %d, want 200", headerRec.Code)
	}

	rec, _ = doRequest(t, handler, http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F&key=wrong", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong key = %d, want 401", rec.Code)
	}
}

func TestAuthSkipsDocsHealthAndMetrics(t *testing.T) {
	server := NewServer(&fakeGenerator{}, &fakeSearcher{}, WithAPIKey("secret"))
	handler := server.Handler()

	for _, target := range []string{"/", "/api", "/health", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code == http.StatusUnauthorized {
			t.Errorf("GET %s requires a key, should be public", target)
		}
	}
}

func TestAuthTrustedHeaderBypass(t *testing.T) {
	server := NewServer(&fakeGenerator{record: okRecord()}, &fakeSearcher{},
		WithAPIKey("secret"),
		WithTrustedHeader("X-Gateway-Auth=internal-token"))
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F", nil)
	req.Header.Set("X-Gateway-Auth", "internal-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with trusted header = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F", nil)
	req.Header.Set("X-Gateway-Auth", "wrong-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong trusted value = %d, want 401", rec.Code)
	}
}

func TestHostileRequestsRejected(t *testing.T) {
	server := NewServer(&fakeGenerator{record: okRecord()}, &fakeSearcher{})
	handler := server.Handler()

	targets := []string{
		"/?url=..%2F..%2Fetc%2Fpasswd",
		"/?url=javascript:alert(1)",
		"/?search=%3Ciframe%20src%3D%22x%22%3E",
		"/?search=vbscript:x",
	}
	for _, target := range targets {
		rec, _ := doRequest(t, handler, http.MethodGet, target, "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("GET %s status = %d, want 403", target, rec.Code)
		}
	}

	// A normal provider URL passes.
	rec, _ := doRequest(t, handler, http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F", "")
	if rec.Code != http.StatusOK {
		t.Errorf("legitimate url rejected with %d", rec.Code)
	}
}

func TestRateLimitPerIdentity(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute, 10*time.Second)
	server := NewServer(&fakeGenerator{record: okRecord()}, &fakeSearcher{},
		WithRateLimiter(limiter))
	handler := server.Handler()

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F", nil)
		req.Header.Set("Cf-Connecting-Ip", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("1.2.3.4"); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code := send("1.2.3.4"); code != http.StatusOK {
		t.Fatalf("second request = %d", code)
	}
	if code := send("1.2.3.4"); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", code)
	}
	// Another identity has its own window.
	if code := send("5.6.7.8"); code != http.StatusOK {
		t.Fatalf("other identity = %d, want 200", code)
	}
}

func TestRateLimitSkipsOperationalEndpoints(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute, 10*time.Second)
	server := NewServer(&fakeGenerator{}, &fakeSearcher{}, WithRateLimiter(limiter))
	handler := server.Handler()

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("health request %d = %d", i, rec.Code)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	server := NewServer(panicGenerator{}, &fakeSearcher{})
	handler := server.Handler()

	rec, payload := doRequest(t, handler, http.MethodGet, "/?url=https%3A%2F%2Fmovie.douban.com%2Fsubject%2F1%2F", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if payload["success"] != false {
		t.Errorf("success = %v", payload["success"])
	}
}

type panicGenerator struct{}

func (panicGenerator) DispatchURL(context.Context, string) domain.MediaRecord {
	panic("boom")
}

func (panicGenerator) DispatchByID(context.Context, string, string) domain.MediaRecord {
	panic("boom")
}

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	if got := clientIP(req); got != "9.9.9.9" {
		t.Errorf("remote addr fallback = %q", got)
	}

	req.Header.Set("X-Real-Ip", "3.3.3.3")
	if got := clientIP(req); got != "3.3.3.3" {
		t.Errorf("x-real-ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "2.2.2.2, 9.9.9.9")
	if got := clientIP(req); got != "2.2.2.2" {
		t.Errorf("x-forwarded-for = %q", got)
	}

	req.Header.Set("Cf-Connecting-Ip", "1.1.1.1")
	if got := clientIP(req); got != "1.1.1.1" {
		t.Errorf("cf-connecting-ip = %q", got)
	}

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = ""
	if got := clientIP(bare); got != "unknown" {
		t.Errorf("unidentifiable client = %q, want unknown", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 5); got != "ab..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 5); got != "ab" {
		t.Errorf("truncate = %q", got)
	}
}
