package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"portalgate/internal/httputils"
)

// Messages returned when the backend produced no usable answer
const (
	MessageUnavailable   = "Backend service is unavailable. Please try again later."
	MessageCircuitOpen   = "Backend service is temporarily unavailable. Please try again later."
	MessageInternalError = "Internal server error"
)

var passthroughHeaders = []string{"Content-Disposition", "Cache-Control", "X-Request-ID"}

// WriteResponse writes a backend response to the client. Error bodies are
// normalised to {"error": message}.
func WriteResponse(w http.ResponseWriter, resp *Response) {
	for _, name := range passthroughHeaders {
		if value := resp.Header.Get(name); value != "" {
			w.Header().Set(name, value)
		}
	}

	if resp.Status >= http.StatusBadRequest {
		httputils.WriteError(w, resp.Status, ErrorMessage(resp))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// WriteError translates a failed call: unreachable backends and an open
// breaker become 503, anything else a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnreachable):
		httputils.WriteError(w, http.StatusServiceUnavailable, MessageUnavailable)
	case errors.Is(err, ErrCircuitOpen):
		httputils.WriteError(w, http.StatusServiceUnavailable, MessageCircuitOpen)
	default:
		httputils.WriteError(w, http.StatusInternalServerError, MessageInternalError)
	}
}

// ErrorMessage extracts a message from an error response. The backend
// reports errors as {"detail": ...}; an existing {"error": ...} is kept.
func ErrorMessage(resp *Response) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		for _, key := range []string{"error", "detail", "message"} {
			if raw, ok := body[key]; ok {
				if msg := rawMessage(raw); msg != "" {
					return msg
				}
			}
		}
	}

	if text := strings.TrimSpace(string(resp.Body)); text != "" && len(text) <= 512 && !strings.HasPrefix(text, "<") && !json.Valid(resp.Body) {
		return text
	}
	if text := http.StatusText(resp.Status); text != "" {
		return text
	}
	return "Request failed"
}

// rawMessage renders a JSON value as a message. Strings are used as is;
// structured details such as validation error lists stay JSON.
func rawMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}
