package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	apihttp "dispatch/internal/http"
	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/pnl"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	return apihttp.NewRouter(apihttp.ServerDeps{
		PnL:  pnl.NewService(nil, log),
		Auth: middleware.DevTenant(),
		Log:  log,
	})
}

func TestHealthNeedsNoTenant(t *testing.T) {
	w := httptest.NewRecorder()
	newTestEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRoutesRequireTenant(t *testing.T) {
	r := newTestEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/pnl/compute", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set(middleware.TenantHeader, "fleet-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewServerUsesRouter(t *testing.T) {
	log, _ := test.NewNullLogger()
	srv := apihttp.NewServer(":0", apihttp.ServerDeps{Auth: middleware.DevTenant(), Log: log})
	assert.Equal(t, ":0", srv.Addr)
	assert.NotNil(t, srv.Handler)
	assert.NotZero(t, srv.ReadHeaderTimeout)
}
