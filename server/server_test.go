package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaliph/residence-companion/api"
	"github.com/jaliph/residence-companion/wizard"
)

func TestServerRoutes(t *testing.T) {
	s := NewServer(api.NewHandler(nil, nil, nil, nil, nil, wizard.Options{}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/qr/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := NewServer(api.NewHandler(nil, nil, nil, nil, nil, wizard.Options{}))
	assert.NoError(t, s.Shutdown(context.Background()))
}
