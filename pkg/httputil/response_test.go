package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"error", func(w http.ResponseWriter) { WriteError(w, http.StatusConflict, errors.New("taken")) }, http.StatusConflict, "taken"},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad input") }, http.StatusBadRequest, "bad input"},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "task not found") }, http.StatusNotFound, "task not found"},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "queue full") }, http.StatusServiceUnavailable, "queue full"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("db down")) }, http.StatusInternalServerError, "db down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestWriteUnprocessable(t *testing.T) {
	w := httptest.NewRecorder()

	WriteUnprocessable(w, errors.New("missing framework plugin"), map[string]string{"reason": "missing_framework"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "missing_framework", body.Details["reason"])
}

func TestWriteAccepted(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteAccepted(w, "/api/v1/stagings/abc", map[string]string{"id": "abc"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/api/v1/stagings/abc", w.Header().Get("Location"))
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	assert.NoError(t, WriteSuccess(w, []int{1, 2}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[1,2]`, w.Body.String())
}
