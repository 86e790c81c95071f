package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/service"
)

// AuthMiddleware guards routes with JWT authentication.
type AuthMiddleware struct {
	authService service.AuthService
}

// NewAuthMiddleware creates the authentication middleware.
func NewAuthMiddleware(authService service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// RequireAuth rejects requests without a valid access token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			abort(c, apperrors.New(apperrors.ErrTokenInvalid, "missing access token"))
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			abort(c, apperrors.Wrap(err, apperrors.ErrTokenInvalid))
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Set("deviceCode", claims.DeviceCode)

		c.Next()
	}
}

// RequireRole rejects authenticated requests whose role is not listed.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			abort(c, apperrors.New(apperrors.ErrTokenInvalid, "missing access token"))
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			abort(c, apperrors.Wrap(err, apperrors.ErrTokenInvalid))
			return
		}

		allowed := false
		for _, role := range roles {
			if claims.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			abort(c, apperrors.New(apperrors.ErrPermissionDenied, "role not allowed"))
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Set("deviceCode", claims.DeviceCode)

		c.Next()
	}
}

// extractToken pulls the token from the Authorization header, the
// X-Access-Token header, or the access_token cookie.
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.Split(bearerToken, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}

	return ""
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.HTTPStatus(), apperrors.NewErrorResponse(err, c.GetString("requestID")))
	c.Abort()
}

// GetUserID reads the authenticated user id from the gin context.
func GetUserID(c *gin.Context) (uint, bool) {
	if userID, exists := c.Get("userID"); exists {
		if id, ok := userID.(uint); ok {
			return id, true
		}
	}
	return 0, false
}

// GetUsername reads the authenticated username from the gin context.
func GetUsername(c *gin.Context) (string, bool) {
	if username, exists := c.Get("username"); exists {
		if name, ok := username.(string); ok {
			return name, true
		}
	}
	return "", false
}

// GetUserRole reads the authenticated role from the gin context.
func GetUserRole(c *gin.Context) (string, bool) {
	if role, exists := c.Get("role"); exists {
		if r, ok := role.(string); ok {
			return r, true
		}
	}
	return "", false
}

// GetDeviceCode reads the operator's assigned machine from the gin context.
func GetDeviceCode(c *gin.Context) (string, bool) {
	if code, exists := c.Get("deviceCode"); exists {
		if s, ok := code.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
