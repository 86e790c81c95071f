package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/service"
	"github.com/venturus/cdm-teller/internal/utils"
)

// stubAuthService validates exactly one token.
type stubAuthService struct {
	token  string
	claims *utils.JWTClaims
}

func (s *stubAuthService) Login(ctx context.Context, req *service.LoginRequest) (*service.AuthResponse, error) {
	return nil, apperrors.New(apperrors.ErrNotImplemented)
}

func (s *stubAuthService) RefreshToken(ctx context.Context, refreshToken string) (*service.AuthResponse, error) {
	return nil, apperrors.New(apperrors.ErrNotImplemented)
}

func (s *stubAuthService) ValidateToken(token string) (*utils.JWTClaims, error) {
	if token != s.token {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "unknown token")
	}
	return s.claims, nil
}

func newAuthRouter(stub *stubAuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(stub)

	r := gin.New()
	r.GET("/guarded", m.RequireAuth(), func(c *gin.Context) {
		username, _ := GetUsername(c)
		deviceCode, _ := GetDeviceCode(c)
		c.JSON(http.StatusOK, gin.H{"username": username, "device_code": deviceCode})
	})
	r.GET("/admin", m.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	stub := &stubAuthService{
		token: "good-token",
		claims: &utils.JWTClaims{
			UserID:     1,
			Username:   "cajero1",
			Role:       "teller",
			DeviceCode: "CDM-001",
		},
	}
	r := newAuthRouter(stub)

	// no token
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/guarded", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// wrong token
	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// bearer token accepted, claims land in the context
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cajero1")
	assert.Contains(t, w.Body.String(), "CDM-001")

	// X-Access-Token works too
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-Access-Token", "good-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole(t *testing.T) {
	stub := &stubAuthService{
		token: "good-token",
		claims: &utils.JWTClaims{
			UserID:   1,
			Username: "cajero1",
			Role:     "teller",
		},
	}
	r := newAuthRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	stub.claims.Role = "admin"
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
