package httputils

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// ResponseWriter wraps http.ResponseWriter and captures the status code and
// body size for logging and metrics.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode    int
	BytesWritten  int
	HeaderWritten bool
}

// NewResponseWriter creates a new response writer wrapper
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and passes it on
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.HeaderWritten {
		rw.StatusCode = code
		rw.HeaderWritten = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write captures the bytes written and passes them on
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.HeaderWritten {
		rw.WriteHeader(http.StatusOK)
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += size
	return size, err
}

// Hijack forwards to the underlying writer when it supports it
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
}

// Flush forwards to the underlying writer; the UI upstream streams responses
func (rw *ResponseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
