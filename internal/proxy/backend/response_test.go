package backend

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteResponse(t *testing.T) {
	tests := []struct {
		name     string
		resp     *Response
		wantCode int
		wantBody string
	}{
		{
			"success passes through",
			&Response{Status: 200, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"items":[]}`)},
			200, `{"items":[]}`,
		},
		{
			"detail becomes error",
			&Response{Status: 404, Header: http.Header{}, Body: []byte(`{"detail":"Project not found"}`)},
			404, `{"error":"Project not found"}`,
		},
		{
			"error kept",
			&Response{Status: 409, Header: http.Header{}, Body: []byte(`{"error":"Duplicate"}`)},
			409, `{"error":"Duplicate"}`,
		},
		{
			"structured detail",
			&Response{Status: 422, Header: http.Header{}, Body: []byte(`{"detail":[{"loc":["body","name"],"msg":"field required"}]}`)},
			422, `{"error":"[{\"loc\":[\"body\",\"name\"],\"msg\":\"field required\"}]"}`,
		},
		{
			"plain text error",
			&Response{Status: 502, Header: http.Header{}, Body: []byte("upstream exploded")},
			502, `{"error":"upstream exploded"}`,
		},
		{
			"html error uses status text",
			&Response{Status: 500, Header: http.Header{}, Body: []byte("<html>oops</html>")},
			500, `{"error":"Internal Server Error"}`,
		},
		{
			"empty error body",
			&Response{Status: 401, Header: http.Header{}},
			401, `{"error":"Unauthorized"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteResponse(rec, tt.resp)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantMsg  string
	}{
		{fmt.Errorf("%w: dial tcp: connection refused", ErrUnreachable), 503, MessageUnavailable},
		{fmt.Errorf("%w: open", ErrCircuitOpen), 503, MessageCircuitOpen},
		{errors.New("something odd"), 500, MessageInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.wantMsg), rec.Body.String())
		})
	}
}
