package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"
)

// CompressionConfig bounds the gzip middleware.
type CompressionConfig struct {
	// MinSize is the smallest body worth compressing. Anything under
	// it ships as-is; gzip overhead would grow a tiny JSON response.
	MinSize int
	// Level is the gzip compression level.
	Level int
	// CompressibleTypes lists the media types worth compressing.
	CompressibleTypes []string
}

// DefaultCompressionConfig compresses JSON and text bodies of 1KiB or
// more at the default level.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
		},
	}
}

// compressionWriter defers the compress-or-not decision until either
// MinSize bytes are buffered or the handler returns, because the
// decision needs both the Content-Type and the body size.
type compressionWriter struct {
	http.ResponseWriter
	config  CompressionConfig
	status  int
	buffer  []byte
	gz      *gzip.Writer
	decided bool
}

func newCompressionWriter(w http.ResponseWriter, config CompressionConfig) *compressionWriter {
	return &compressionWriter{
		ResponseWriter: w,
		config:         config,
		status:         http.StatusOK,
		buffer:         make([]byte, 0, config.MinSize+1),
	}
}

// WriteHeader records the status; it reaches the wire when the
// compression decision is made.
func (cw *compressionWriter) WriteHeader(code int) {
	if !cw.decided {
		cw.status = code
	}
}

func (cw *compressionWriter) Write(data []byte) (int, error) {
	if cw.decided {
		if cw.gz != nil {
			return cw.gz.Write(data)
		}
		return cw.ResponseWriter.Write(data)
	}

	cw.buffer = append(cw.buffer, data...)
	if len(cw.buffer) > cw.config.MinSize {
		cw.decide()
	}
	return len(data), nil
}

// decide commits to compressed or plain output and flushes the buffer.
func (cw *compressionWriter) decide() {
	if cw.decided {
		return
	}
	cw.decided = true

	if len(cw.buffer) >= cw.config.MinSize && cw.compressibleType() {
		cw.Header().Del("Content-Length")
		cw.Header().Set("Content-Encoding", "gzip")
		cw.Header().Add("Vary", "Accept-Encoding")

		gz, err := gzip.NewWriterLevel(cw.ResponseWriter, cw.config.Level)
		if err != nil {
			gz = gzip.NewWriter(cw.ResponseWriter)
		}
		cw.gz = gz
		cw.ResponseWriter.WriteHeader(cw.status)
		cw.gz.Write(cw.buffer)
	} else {
		cw.ResponseWriter.WriteHeader(cw.status)
		cw.ResponseWriter.Write(cw.buffer)
	}
	cw.buffer = nil
}

func (cw *compressionWriter) compressibleType() bool {
	contentType := cw.Header().Get("Content-Type")
	if contentType == "" {
		return false
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for _, ct := range cw.config.CompressibleTypes {
		if mediaType == ct {
			return true
		}
	}
	return false
}

// Close flushes a still-undecided response and finishes the gzip
// stream.
func (cw *compressionWriter) Close() error {
	cw.decide()
	if cw.gz == nil {
		return nil
	}
	err := cw.gz.Close()
	cw.gz = nil
	return err
}

func (cw *compressionWriter) Flush() {
	cw.decide()
	if cw.gz != nil {
		cw.gz.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compression gzips responses for clients that accept it. WebSocket
// upgrades pass through untouched.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
				r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			cw := newCompressionWriter(w, config)
			defer cw.Close()
			next.ServeHTTP(cw, r)
		})
	}
}
