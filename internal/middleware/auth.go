package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/travel-notifications/internal/handler"
	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/pkg/auth"
)

const ContextViewer = "viewer"

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and sets the viewer in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			handler.Abort(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			handler.Abort(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := m.jwt.ValidateToken(parts[1])
		if err != nil {
			handler.Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		viewer, err := claims.Viewer()
		if err != nil {
			handler.Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(ContextViewer, *viewer)
		c.Next()
	}
}

// ViewerFrom returns the viewer set by Authenticate.
func ViewerFrom(c *gin.Context) (model.Viewer, bool) {
	v, ok := c.Get(ContextViewer)
	if !ok {
		return model.Viewer{}, false
	}
	viewer, ok := v.(model.Viewer)
	return viewer, ok
}
