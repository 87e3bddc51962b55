package apihttp

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fitspot/placesearch/internal/metrics"
)

// statusRecorder captures the status and body size of a response. It keeps
// Flush so the SSE stream works through it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func recordResponse(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.wroteHeader = true
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.wroteHeader = true
	n, err := rec.ResponseWriter.Write(b)
	rec.size += n
	return n, err
}

func (rec *statusRecorder) Flush() {
	if flusher, ok := rec.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// unmetered paths skip rate limiting and request metrics.
func unmetered(path string) bool {
	return path == "/health" || path == "/metrics"
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := recordResponse(w)
		next.ServeHTTP(rec, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", normalizeRoute(r.URL.Path)),
			slog.Int("status", rec.status),
			slog.Int("bytes", rec.size),
			slog.Int64("durationMs", time.Since(start).Milliseconds()),
			slog.String("client", clientIP(r)),
		}
		optional := []struct{ key, value string }{
			{"device", truncate(strings.TrimSpace(r.Header.Get(deviceHeader)), 40)},
			{"query", truncate(strings.TrimSpace(r.URL.RawQuery), 180)},
			{"userAgent", truncate(strings.TrimSpace(r.UserAgent()), 120)},
		}
		for _, attr := range optional {
			if attr.value != "" {
				attrs = append(attrs, slog.String(attr.key, attr.value))
			}
		}
		logger.LogAttrs(r.Context(), requestLogLevel(r.URL.Path, rec.status), "http request", attrs...)
	})
}

func requestLogLevel(path string, status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	if status >= http.StatusBadRequest {
		return slog.LevelWarn
	}
	if unmetered(path) {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordResponse(w)
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			logger.Error("handler panic",
				slog.Any("error", recovered),
				slog.String("method", r.Method),
				slog.String("route", normalizeRoute(r.URL.Path)),
				slog.String("stack", string(debug.Stack())),
			)
			if !rec.wroteHeader {
				writeError(rec, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unmetered(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := recordResponse(w)
		next.ServeHTTP(rec, r)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeTemplates are matched segment by segment; "{id}" matches any single
// segment. Literal routes come before templated ones sharing a prefix.
var routeTemplates = []string{
	"/health",
	"/metrics",
	"/search",
	"/search/stream",
	"/search/categories",
	"/search/providers/health",
	"/search/sessions/{id}/origin",
	"/places/autocomplete",
	"/places/photo",
	"/places/{id}",
	"/favorites",
	"/favorites/{id}",
	"/recents",
	"/history",
}

// normalizeRoute maps a request path onto a bounded set of metric labels.
func normalizeRoute(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, template := range routeTemplates {
		if templateMatches(template, segments) {
			return template
		}
	}
	return "/other"
}

func templateMatches(template string, segments []string) bool {
	parts := strings.Split(strings.Trim(template, "/"), "/")
	if len(parts) != len(segments) {
		return false
	}
	for i, part := range parts {
		if part != "{id}" && part != segments[i] {
			return false
		}
		if part == "{id}" && segments[i] == "" {
			return false
		}
	}
	return true
}

func clientIP(r *http.Request) string {
	if forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(forwarded) != "" {
		return strings.TrimSpace(forwarded)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	return remote
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

const (
	maxTrackedClients = 4096
	clientIdleAfter   = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters keeps one token bucket per device or client IP. Idle buckets
// are swept when the table is full.
type clientLimiters struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets map[string]*clientBucket
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{rps: rate.Limit(rps), burst: burst, buckets: make(map[string]*clientBucket)}
}

func (c *clientLimiters) allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.buckets[key]
	if !ok {
		if len(c.buckets) >= maxTrackedClients {
			c.sweep(now)
		}
		bucket = &clientBucket{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.buckets[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// sweep drops idle buckets, or every bucket when none is idle.
func (c *clientLimiters) sweep(now time.Time) {
	for key, bucket := range c.buckets {
		if now.Sub(bucket.lastSeen) > clientIdleAfter {
			delete(c.buckets, key)
		}
	}
	if len(c.buckets) >= maxTrackedClients {
		clear(c.buckets)
	}
}

func rateLimitMiddleware(rps float64, burst int, next http.Handler) http.Handler {
	limiters := newClientLimiters(rps, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unmetered(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		key := strings.TrimSpace(r.Header.Get(deviceHeader))
		if key == "" {
			key = clientIP(r)
		}
		if !limiters.allow(key, time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
