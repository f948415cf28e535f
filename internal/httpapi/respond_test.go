package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestStatusFromError_WrappedNoRowsIsNotFound(t *testing.T) {
	err := fmt.Errorf("lookup: %w", pgx.ErrNoRows)
	assert.Equal(t, http.StatusNotFound, statusFromError(err))
}

func TestStatusFromError_OtherErrorIsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFromError(errors.New("boom")))
}

func TestRespondJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":"yes"}`, rec.Body.String())
}

func TestRespondError_WrapsErrorMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusBadRequest, errors.New("bad input"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"bad input"}`, rec.Body.String())
}
