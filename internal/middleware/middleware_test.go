package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	if rw == nil {
		t.Fatal("Expected responseWriter to be created")
	}

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rw.statusCode)
	}

	if rw.bytesWritten != 0 {
		t.Errorf("Expected bytesWritten to be 0, got %d", rw.bytesWritten)
	}

	if rw.wroteHeader {
		t.Error("Expected wroteHeader to be false initially")
	}
}

func TestResponseWriterWriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	rw.WriteHeader(http.StatusNotFound)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", rw.statusCode)
	}

	if !rw.wroteHeader {
		t.Error("Expected wroteHeader to be true after WriteHeader")
	}

	// Write header again - should be ignored
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Error("Status code should not change after first WriteHeader")
	}
}

func TestResponseWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	data := []byte("test data")
	n, err := rw.Write(data)

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}

	if rw.bytesWritten != int64(len(data)) {
		t.Errorf("Expected bytesWritten to be %d, got %d", len(data), rw.bytesWritten)
	}

	if !rw.wroteHeader {
		t.Error("Expected wroteHeader to be true after Write")
	}
}

func TestDefaultLoggingConfig(t *testing.T) {
	config := DefaultLoggingConfig()

	if len(config.SkipPaths) != 0 {
		t.Errorf("Expected empty SkipPaths, got %d items", len(config.SkipPaths))
	}

	if !config.LogHealthChecks {
		t.Error("Expected LogHealthChecks to be true by default")
	}
}

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
	}{
		{
			name:   "Logs regular requests",
			path:   "/api/media/search",
			config: DefaultLoggingConfig(),
		},
		{
			name:   "Logs health checks when enabled",
			path:   "/health",
			config: LoggingConfig{LogHealthChecks: true},
		},
		{
			name:   "Skips health checks when disabled",
			path:   "/health",
			config: LoggingConfig{LogHealthChecks: false},
		},
		{
			name:   "Skips configured prefixes",
			path:   "/internal/debug",
			config: LoggingConfig{SkipPaths: []string{"/internal"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})

			middleware := Logger(tt.config)
			wrappedHandler := middleware(handler)

			req := httptest.NewRequest("GET", tt.path, http.NoBody)
			w := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
		})
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "GET", "GET"},
		{"newline becomes space", "a\nb", "a b"},
		{"carriage return becomes space", "a\rb", "a b"},
		{"null stripped", "a\x00b", "ab"},
		{"escape stripped", "a\x1b[31mb", "a[31mb"},
		{"tab preserved", "a\tb", "a\tb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogField(tt.in); got != tt.want {
				t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.0.0.1:1234", nil, "10.0.0.1"},
		{"x-forwarded-for", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "1.2.3.4"},
		{"x-forwarded-for chain", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, "1.2.3.4"},
		{"x-real-ip", "10.0.0.1:1234", map[string]string{"X-Real-IP": "9.9.9.9"}, "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", http.NoBody)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultCompressionConfig(t *testing.T) {
	config := DefaultCompressionConfig()

	if config.MinSize != 1024 {
		t.Errorf("Expected MinSize to be 1024, got %d", config.MinSize)
	}

	if config.Level != gzip.DefaultCompression {
		t.Errorf("Expected Level to be DefaultCompression (%d), got %d", gzip.DefaultCompression, config.Level)
	}

	found := false
	for _, ct := range config.CompressibleTypes {
		if ct == "application/json" {
			found = true
			break
		}
	}
	if !found {
		t.Error("Expected application/json in CompressibleTypes")
	}
}

func TestCompressionMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		responseBody      string
		contentType       string
		acceptEncoding    string
		expectCompression bool
		minSize           int
	}{
		{
			name:              "Compresses large JSON",
			responseBody:      strings.Repeat(`{"key":"value"}`, 200),
			contentType:       "application/json",
			acceptEncoding:    "gzip",
			expectCompression: true,
			minSize:           1024,
		},
		{
			name:              "Doesn't compress small responses",
			responseBody:      `{"status":"ok"}`,
			contentType:       "application/json",
			acceptEncoding:    "gzip",
			expectCompression: false,
			minSize:           1024,
		},
		{
			name:              "Doesn't compress images",
			responseBody:      strings.Repeat("data", 500),
			contentType:       "image/jpeg",
			acceptEncoding:    "gzip",
			expectCompression: false,
			minSize:           1024,
		},
		{
			name:              "Respects client without gzip support",
			responseBody:      strings.Repeat(`{"key":"value"}`, 200),
			contentType:       "application/json",
			acceptEncoding:    "",
			expectCompression: false,
			minSize:           1024,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.responseBody))
			})

			config := CompressionConfig{
				MinSize:           tt.minSize,
				Level:             gzip.DefaultCompression,
				CompressibleTypes: DefaultCompressionConfig().CompressibleTypes,
			}

			middleware := Compression(config)
			wrappedHandler := middleware(handler)

			req := httptest.NewRequest("GET", "/test", http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}

			isCompressed := w.Header().Get("Content-Encoding") == "gzip"
			if isCompressed != tt.expectCompression {
				t.Errorf("Expected compression=%v, got compression=%v", tt.expectCompression, isCompressed)
			}

			if tt.expectCompression {
				// Verify we can decompress
				gr, err := gzip.NewReader(w.Body)
				if err != nil {
					t.Fatalf("Failed to create gzip reader: %v", err)
				}
				defer gr.Close()

				decompressed, err := io.ReadAll(gr)
				if err != nil {
					t.Fatalf("Failed to decompress: %v", err)
				}

				if string(decompressed) != tt.responseBody {
					t.Error("Decompressed content doesn't match original")
				}
			}
		})
	}
}

func TestCompressionWriterBuffering(t *testing.T) {
	w := httptest.NewRecorder()
	cw := newCompressionWriter(w, DefaultCompressionConfig())

	// Below MinSize nothing reaches the wire yet.
	small := []byte("small")
	n, err := cw.Write(small)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != len(small) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(small), n)
	}
	if !bytes.Equal(cw.buffer, small) {
		t.Errorf("Expected %q buffered, got %q", small, cw.buffer)
	}
	if w.Body.Len() != 0 {
		t.Error("Expected nothing on the wire before the decision")
	}

	// Close flushes the undecided buffer uncompressed.
	if err := cw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if w.Body.String() != "small" {
		t.Errorf("Expected plain body after Close, got %q", w.Body.String())
	}
	if w.Header().Get("Content-Encoding") == "gzip" {
		t.Error("Small response must not be compressed")
	}
}

func TestQuoteW3CField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"curl/8.0", "curl/8.0"},
		{"Mozilla 5.0", `"Mozilla 5.0"`},
		{`say "hi"`, `"say ""hi"""`},
	}

	for _, tt := range tests {
		if got := quoteW3CField(tt.in); got != tt.want {
			t.Errorf("quoteW3CField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompressionWithMultipleWrites(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		// Multiple small writes that together exceed MinSize
		for i := 0; i < 50; i++ {
			w.Write([]byte(strings.Repeat(`{"k":"v"}`, 10)))
		}
	})

	config := DefaultCompressionConfig()
	middleware := Compression(config)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest("GET", "/test", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	// Should be compressed since total exceeds MinSize
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Error("Expected response to be compressed")
	}
}

func TestDefaultMetricsConfig(t *testing.T) {
	config := DefaultMetricsConfig()

	if len(config.SkipPaths) == 0 {
		t.Error("Expected SkipPaths to have default values")
	}

	expectedPaths := []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"}
	for _, path := range expectedPaths {
		found := false
		for _, skip := range config.SkipPaths {
			if skip == path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected %q to be in default SkipPaths", path)
		}
	}
}

func TestMetricsMiddlewareSkipPaths(t *testing.T) {
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	config := MetricsConfig{
		SkipPaths: []string{"/metrics", "/health"},
	}
	middleware := Metrics(config)
	wrappedHandler := middleware(handler)

	paths := []string{"/metrics", "/health", "/api/media/search", "/"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			handlerCalled = false
			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			w := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(w, req)

			if !handlerCalled {
				t.Error("Expected handler to be called")
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "RPC route",
			path:     "/api/media/search",
			expected: "/api/media/search",
		},
		{
			name:     "Root path",
			path:     "/",
			expected: "/",
		},
		{
			name:     "Health check path",
			path:     "/health",
			expected: "/health",
		},
		{
			name:     "Deep path collapses",
			path:     "/a/b/c/d/e/f/g/h",
			expected: "/a/b/c/d/{path}",
		},
		{
			name:     "Four segments kept",
			path:     "/api/v1/users/123",
			expected: "/api/v1/users/123",
		},
		{
			name:     "Five segments truncated",
			path:     "/api/v1/users/123/profile",
			expected: "/api/v1/users/123/{path}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizePath(tt.path)
			if result != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

func TestMetricsMiddlewareStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"201 Created", http.StatusCreated},
		{"400 Bad Request", http.StatusBadRequest},
		{"404 Not Found", http.StatusNotFound},
		{"409 Conflict", http.StatusConflict},
		{"500 Internal Server Error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			config := MetricsConfig{SkipPaths: []string{}}
			middleware := Metrics(config)
			wrappedHandler := middleware(handler)

			req := httptest.NewRequest(http.MethodPost, "/api/media/search", http.NoBody)
			w := httptest.NewRecorder()

			wrappedHandler.ServeHTTP(w, req)

			if w.Code != tt.statusCode {
				t.Errorf("Expected status code %d, got %d", tt.statusCode, w.Code)
			}
		})
	}
}

func BenchmarkLoggingMiddleware(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	config := DefaultLoggingConfig()
	middleware := Logger(config)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest("GET", "/api/test", http.NoBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(w, req)
	}
}

func BenchmarkCompressionMiddleware(b *testing.B) {
	responseBody := strings.Repeat(`{"key":"value"}`, 200)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(responseBody))
	})

	config := DefaultCompressionConfig()
	middleware := Compression(config)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest("GET", "/test", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(w, req)
	}
}
