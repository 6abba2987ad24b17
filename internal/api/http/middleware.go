package apihttp

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Substrings that mark a request as hostile regardless of endpoint: path
// traversal, script-scheme URLs and HTML injection tags.
var maliciousPatterns = []string{
	"../",
	"javascript:",
	"vbscript:",
	"script:",
	"<iframe",
	"<object",
	"<embed",
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Api-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validateMiddleware runs the inbound request checks in a fixed order:
// key auth first, then hostile-pattern rejection, then the per-client
// sliding window limit. Health, metrics and the public usage page skip auth.
func (s *Server) validateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operational := r.URL.Path == "/health" || r.URL.Path == "/metrics"

		if s.apiKey != "" && !operational && !s.isDocsRequest(r) && !s.isTrusted(r) {
			if requestKey(r) != s.apiKey {
				s.writeFailure(w, http.StatusUnauthorized, "invalid or missing api key")
				return
			}
		}

		if hostile(r) {
			s.logger.Warn("hostile request rejected",
				slog.String("path", r.URL.Path),
				slog.String("clientIP", clientIP(r)),
			)
			s.writeFailure(w, http.StatusForbidden, "request rejected")
			return
		}

		if s.limiter != nil && !operational {
			if identity := clientIP(r); s.limiter.Limited(identity) {
				metrics.RateLimitedTotal.Inc()
				w.Header().Set("Retry-After", "60")
				s.writeFailure(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// isDocsRequest reports whether this is a bare GET for the usage page, which
// stays reachable without a key.
func (s *Server) isDocsRequest(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.URL.Path != "/" && r.URL.Path != "/api" {
		return false
	}
	values := r.URL.Query()
	for _, key := range []string{"url", "search", "query", "source", "site", "sid", "tmdb_id"} {
		if strings.TrimSpace(values.Get(key)) != "" {
			return false
		}
	}
	return true
}

// requestKey extracts the caller's api key: the "key" query parameter is the
// primary form, "apikey" and the X-Api-Key header are accepted equivalents.
func requestKey(r *http.Request) string {
	values := r.URL.Query()
	if key := strings.TrimSpace(values.Get("key")); key != "" {
		return key
	}
	if key := strings.TrimSpace(values.Get("apikey")); key != "" {
		return key
	}
	return strings.TrimSpace(r.Header.Get("X-Api-Key"))
}

func (s *Server) isTrusted(r *http.Request) bool {
	if s.trustedName == "" {
		return false
	}
	return r.Header.Get(s.trustedName) == s.trustedValue
}

func hostile(r *http.Request) bool {
	probe := strings.ToLower(r.URL.RequestURI())
	if unescaped, err := url.QueryUnescape(probe); err == nil {
		probe += " " + strings.ToLower(unescaped)
	}
	for _, pattern := range maliciousPatterns {
		if strings.Contains(probe, pattern) {
			return true
		}
	}
	return false
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		level := pickRequestLogLevel(r.URL.Path, rw.status)
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Int("bytes", rw.size),
			slog.Int64("durationMs", time.Since(start).Milliseconds()),
			slog.String("clientIP", clientIP(r)),
		}
		if rawQuery := strings.TrimSpace(r.URL.RawQuery); rawQuery != "" {
			attrs = append(attrs, slog.String("query", truncate(rawQuery, 180)))
		}
		logger.LogAttrs(r.Context(), level, "http request", attrs...)
	})
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("panic recovered",
					slog.Any("error", recovered),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("clientIP", clientIP(r)),
					slog.String("stack", string(debug.Stack())),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"success": false,
					"error":   "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
	})
}

func normalizeRoute(path string) string {
	switch path {
	case "/", "/api", "/health", "/metrics":
		return path
	default:
		return "/other"
	}
}

func pickRequestLogLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case path == "/health":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// clientIP is the rate-limit identity. Cloudflare's header wins because most
// deployments sit behind it; "unknown" pools all unidentifiable clients into
// one shared window.
func clientIP(r *http.Request) string {
	if cf := strings.TrimSpace(r.Header.Get("Cf-Connecting-Ip")); cf != "" {
		return cf
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
			return strings.TrimSpace(parts[0])
		}
	}
	if xRealIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xRealIP != "" {
		return xRealIP
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}
