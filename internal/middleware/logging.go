package middleware

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter captures status and byte count for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig controls which requests reach the access log.
type LoggingConfig struct {
	SkipPaths       []string
	LogHealthChecks bool
}

// DefaultLoggingConfig logs everything, health probes included.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{SkipPaths: []string{}, LogHealthChecks: true}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// Logger writes one W3C extended-format line per request. Every
// client-controlled field passes through sanitizeLogField first, so a
// crafted header cannot forge log lines or emit terminal escapes.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipLogging(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)
			writeAccessLine(r, wrapped, time.Since(start))
		})
	}
}

// writeAccessLine emits the fields in the order
// date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes
// time-taken cs(Content-Encoding) cs(User-Agent) cs(Referer).
func writeAccessLine(r *http.Request, rw *responseWriter, took time.Duration) {
	now := time.Now().UTC()
	fields := []string{
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		sanitizeLogField(getClientIP(r)),
		sanitizeLogField(r.Method),
		sanitizeLogField(r.URL.Path),
		dashIfEmpty(sanitizeLogField(r.URL.RawQuery)),
		strconv.Itoa(rw.statusCode),
		strconv.FormatInt(rw.bytesWritten, 10),
		strconv.FormatInt(took.Milliseconds(), 10),
		dashIfEmpty(rw.Header().Get("Content-Encoding")),
		dashIfEmpty(quoteW3CField(sanitizeLogField(r.Header.Get("User-Agent")))),
		dashIfEmpty(sanitizeLogField(r.Header.Get("Referer"))),
	}
	log.Println(strings.Join(fields, " "))
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func skipLogging(path string, config LoggingConfig) bool {
	for _, prefix := range config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return !config.LogHealthChecks && healthCheckPaths[path]
}

// sanitizeLogField strips control characters from a client-supplied
// value. Newlines and carriage returns become spaces so a value cannot
// forge additional log lines; tabs survive; everything else below 0x20
// is dropped, ANSI escape included.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\t' || r >= 0x20:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the socket address with its port stripped.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

// quoteW3CField quotes values containing whitespace, doubling embedded
// quotes per the W3C rules.
func quoteW3CField(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
