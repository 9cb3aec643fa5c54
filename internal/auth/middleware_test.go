package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func mintTestToken(t *testing.T, secret, subject string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func newTestRouter(secret, audience string) *gin.Engine {
	r := gin.New()
	r.Use(ServiceJWTMiddleware(secret, audience))
	r.GET("/ping", func(c *gin.Context) {
		serviceID, _ := GetServiceID(c.Request.Context())
		c.String(http.StatusOK, serviceID)
	})
	return r
}

func TestServiceJWTMiddlewareAcceptsValidToken(t *testing.T) {
	r := newTestRouter("shared-secret", "")
	token := mintTestToken(t, "shared-secret", "edge-gateway", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "edge-gateway" {
		t.Errorf("body = %q, want edge-gateway", rec.Body.String())
	}
}

func TestServiceJWTMiddlewareRejectsMissingHeader(t *testing.T) {
	r := newTestRouter("shared-secret", "")
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestServiceJWTMiddlewareRejectsWrongSecret(t *testing.T) {
	r := newTestRouter("shared-secret", "")
	token := mintTestToken(t, "different-secret", "edge-gateway", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestServiceJWTMiddlewareRejectsExpiredToken(t *testing.T) {
	r := newTestRouter("shared-secret", "")
	token := mintTestToken(t, "shared-secret", "edge-gateway", -time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestServiceJWTMiddlewareBypassesWhenSecretUnconfigured(t *testing.T) {
	r := newTestRouter("", "")
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (auth disabled when secret is empty)", rec.Code)
	}
}
