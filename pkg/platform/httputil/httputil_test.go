package httputil_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/httputil"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.WriteJSON(rec, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"id": "abc"}, decodeBody(t, rec))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		slug       string
		wantDetail bool
	}{
		{"validation", dErrors.New(dErrors.CodeValidation, "fact label is required"), http.StatusBadRequest, "validation_error", true},
		{"not found", dErrors.New(dErrors.CodeNotFound, "workspace not found"), http.StatusNotFound, "not_found", true},
		{"forbidden", dErrors.New(dErrors.CodeForbidden, "access denied"), http.StatusForbidden, "forbidden", true},
		{"locked", dErrors.New(dErrors.CodeLocked, "workspace is locked"), http.StatusLocked, "workspace_locked", true},
		{"conflict", dErrors.New(dErrors.CodeConflict, "retry"), http.StatusConflict, "conflict", true},
		{"integrity", dErrors.New(dErrors.CodeIntegrity, "checksum mismatch"), http.StatusUnprocessableEntity, "integrity_error", true},
		{"internal hides detail", dErrors.New(dErrors.CodeInternal, "pgx: connection refused"), http.StatusInternalServerError, "internal_error", false},
		{"uncoded is internal", errors.New("boom"), http.StatusInternalServerError, "internal_error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			httputil.WriteError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.slug, body["error"])
			if tt.wantDetail {
				assert.NotEmpty(t, body["error_description"])
			} else {
				assert.Empty(t, body["error_description"])
			}
		})
	}
}

func TestDecodeAndPrepare(t *testing.T) {
	type payload struct {
		Label string `json:"label"`
	}
	logger := slog.Default()

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"label":"lease_start"}`))
		rec := httptest.NewRecorder()

		got, ok := httputil.DecodeAndPrepare[payload](rec, req, logger, req.Context(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "lease_start", got.Label)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"label":`))
		rec := httptest.NewRecorder()

		_, ok := httputil.DecodeAndPrepare[payload](rec, req, logger, req.Context(), "req-2")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decodeBody(t, rec)["error"])
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"label":"x","extra":true}`))
		rec := httptest.NewRecorder()

		_, ok := httputil.DecodeAndPrepare[payload](rec, req, logger, req.Context(), "req-3")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
