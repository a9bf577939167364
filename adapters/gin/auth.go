package progin

import (
	"context"
	"strings"

	"github.com/PaulFidika/prokit/adapters/ginutil"
	jwtkit "github.com/PaulFidika/prokit/jwt"
	"github.com/gin-gonic/gin"
)

// TokenVerifier is satisfied by *jwtkit.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (jwtkit.Claims, error)
}

// AuthRequired rejects requests without a valid Bearer access token and
// stores the caller's claims on the gin context.
func AuthRequired(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			ginutil.Unauthorized(c, "missing_token")
			return
		}
		cl, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			ginutil.Unauthorized(c, "invalid_token")
			return
		}
		c.Set(ginutil.CtxUserID, cl.UserID)
		c.Set(ginutil.CtxEmail, cl.Email)
		c.Set(ginutil.CtxRoles, cl.Roles)
		c.Next()
	}
}

func bearerToken(h string) string {
	h = strings.TrimSpace(h)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
