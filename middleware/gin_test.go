package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MrEthical07/goThrottle/middleware"
	"github.com/MrEthical07/goThrottle/policy"
	"github.com/gin-gonic/gin"
)

func newGinRouter(h gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", h, func(c *gin.Context) {
		if _, ok := middleware.DecisionFromContext(c.Request.Context()); !ok {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.POST("/accounts/:id/unlock", h, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func ginPost(r http.Handler, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "192.0.2.10:41000"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGinGuardDeniesAfterLimit(t *testing.T) {
	engine, _ := newEngine(t)
	r := newGinRouter(middleware.GinGuard(engine, policy.ActionLogin, middleware.GinPostForm("email")))
	form := url.Values{"email": {"carol@example.com"}}

	for i := 0; i < 5; i++ {
		if rec := ginPost(r, "/login", form); rec.Code != http.StatusNoContent {
			t.Fatalf("attempt %d: status = %d, want %d", i+1, rec.Code, http.StatusNoContent)
		}
	}

	rec := ginPost(r, "/login", form)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "1800" {
		t.Fatalf("Retry-After = %q, want 1800", got)
	}
	body := decodeError(t, rec)
	if body["retry_after"] != "30 minutes" {
		t.Fatalf("retry_after = %q, want 30 minutes", body["retry_after"])
	}

	other := ginPost(r, "/login", url.Values{"email": {"dave@example.com"}})
	if other.Code != http.StatusNoContent {
		t.Fatalf("other identifier status = %d, want %d", other.Code, http.StatusNoContent)
	}
}

func TestGinGuardParamIdentifier(t *testing.T) {
	engine, _ := newEngine(t)
	r := newGinRouter(middleware.GinGuard(engine, policy.ActionPasswordReset, middleware.GinParam("id")))

	rec := ginPost(r, "/accounts/U-17/unlock", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get(middleware.RemainingHeader); got != "2" {
		t.Fatalf("remaining header = %q, want 2", got)
	}

	st, err := engine.GetStatus(t.Context(), "u-17", policy.ActionPasswordReset)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if st.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", st.Attempts)
	}
}

func TestGinGuardMissingIdentifier(t *testing.T) {
	engine, _ := newEngine(t)
	r := newGinRouter(middleware.GinGuard(engine, policy.ActionLogin, middleware.GinPostForm("email")))

	rec := ginPost(r, "/login", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if body := decodeError(t, rec); body["error"] != "missing identifier" {
		t.Fatalf("error = %q", body["error"])
	}
}
