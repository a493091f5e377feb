// README: Tests for tenant-scoping auth middleware, request logging and recovery.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"dispatch/internal/http/middleware"
	"dispatch/internal/infra"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func newTestRouter(auth gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(auth)
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uid":    middleware.CallerUID(c),
			"tenant": middleware.CallerTenant(c),
		})
	})
	return r
}

func get(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	r := newTestRouter(middleware.Auth(&stubVerifier{token: &infra.FirebaseToken{UID: "user1", TenantID: "t1"}}))
	w := get(r, "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	r := newTestRouter(middleware.Auth(&stubVerifier{token: &infra.FirebaseToken{UID: "user1", TenantID: "t1"}}))
	w := get(r, "Authorization", "Token sometoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_VerifierError(t *testing.T) {
	r := newTestRouter(middleware.Auth(&stubVerifier{err: errors.New("bad token")}))
	w := get(r, "Authorization", "Bearer invalidtoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken_UIDAndTenantPopulated(t *testing.T) {
	token := &infra.FirebaseToken{
		UID:      "dispatcher123",
		TenantID: "fleet-9",
		Claims:   map[string]interface{}{infra.TenantClaim: "fleet-9"},
	}
	r := newTestRouter(middleware.Auth(&stubVerifier{token: token}))
	w := get(r, "Authorization", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "dispatcher123") {
		t.Errorf("expected uid dispatcher123 in body, got %s", body)
	}
	if !strings.Contains(body, "fleet-9") {
		t.Errorf("expected tenant fleet-9 in body, got %s", body)
	}
}

func TestAuth_ValidToken_NoTenant(t *testing.T) {
	token := &infra.FirebaseToken{UID: "stray", Claims: map[string]interface{}{}}
	r := newTestRouter(middleware.Auth(&stubVerifier{token: token}))
	w := get(r, "Authorization", "Bearer validtoken")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestDevTenant(t *testing.T) {
	r := newTestRouter(middleware.DevTenant())

	w := get(r, "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without header, got %d", w.Code)
	}

	w = get(r, middleware.TenantHeader, "fleet-dev")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fleet-dev") {
		t.Errorf("expected tenant fleet-dev in body, got %s", w.Body.String())
	}
}

func TestRecovery_LogsAndReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	var panicked bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "handler panic" {
			panicked = true
		}
	}
	if !panicked {
		t.Error("expected a handler panic log entry")
	}
}

func TestLogging_RecordsTenantAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(middleware.Logging(log), middleware.DevTenant())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(middleware.TenantHeader, "fleet-3")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["status"] != http.StatusNoContent {
		t.Errorf("expected status 204, got %v", entry.Data["status"])
	}
	if entry.Data["path"] != "/ok" {
		t.Errorf("expected path /ok, got %v", entry.Data["path"])
	}
	if entry.Data["tenant_id"] == nil {
		t.Error("expected tenant_id field")
	}
}
