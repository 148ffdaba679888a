package httputil_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/httputil"
)

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil)
	ctx := context.WithValue(r.Context(), httputil.TraceIDKey, "trace-123")
	return r.WithContext(ctx)
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httputil.Problem {
	t.Helper()
	var p httputil.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestError_BusinessRule(t *testing.T) {
	rec := httptest.NewRecorder()
	err := errors.BusinessRule("ITEM_UNAVAILABLE", "item is not available")

	httputil.Error(rec, newRequest(t), err)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	p := decodeProblem(t, rec)
	assert.Equal(t, "Business Rule Violation", p.Title)
	assert.Equal(t, "item is not available", p.Detail)
	assert.Equal(t, []string{"ITEM_UNAVAILABLE"}, p.Violations)
	assert.Equal(t, "/api/v1/orders/abc", p.Instance)
	assert.Equal(t, "trace-123", p.TraceID)
}

func TestError_Validation(t *testing.T) {
	rec := httptest.NewRecorder()
	err := errors.Validation(map[string]string{"quantity": "must be greater than 0"})

	httputil.Error(rec, newRequest(t), err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "Validation Failed", p.Title)
	assert.Equal(t, "must be greater than 0", p.FieldErrors["quantity"])
}

func TestError_Conflict(t *testing.T) {
	rec := httptest.NewRecorder()

	httputil.Error(rec, newRequest(t), errors.Conflict("order was modified by another user"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "Conflict", p.Title)
}

func TestError_Unknown(t *testing.T) {
	rec := httptest.NewRecorder()

	httputil.Error(rec, newRequest(t), context.DeadlineExceeded)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "Internal Server Error", p.Title)
	// Internal details are never leaked to the client.
	assert.Empty(t, p.Detail)
}
