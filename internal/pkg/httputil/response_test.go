package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		body   string
	}{
		{"ok", func(w http.ResponseWriter) { OK(w, map[string]string{"status": "ok"}) }, 200, `{"status":"ok"}`},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "nope") }, 400, `{"error":"nope"}`},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "bad signature") }, 401, `{"error":"bad signature"}`},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, 404, `{"error":"gone"}`},
		{"code", func(w http.ResponseWriter) { ErrorCode(w, 409, "duplicate", "seen") }, 409, `{"error":"seen","code":"duplicate"}`},
		{"internal", func(w http.ResponseWriter) { InternalError(w, errors.New("db down")) }, 500, `{"error":"internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestDecode(t *testing.T) {
	var dst struct{ Platform string }
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"platform":"clickbank"}`))
	require.True(t, Decode(rec, req, &dst))
	assert.Equal(t, "clickbank", dst.Platform)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "invalid JSON")
}

func TestReadBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=1&b=2"))
	body, ok := ReadBody(rec, req)
	require.True(t, ok)
	assert.Equal(t, "a=1&b=2", string(body))
}
