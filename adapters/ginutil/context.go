package ginutil

import "github.com/gin-gonic/gin"

// Gin context keys set by the auth middleware.
const (
	CtxUserID = "auth.user_id"
	CtxEmail  = "auth.email"
	CtxRoles  = "auth.roles"
)

// Caller is the authenticated identity attached to the request.
type Caller struct {
	UserID string
	Email  string
	Roles  []string
}

func CallerFrom(c *gin.Context) (Caller, bool) {
	uid := c.GetString(CtxUserID)
	if uid == "" {
		return Caller{}, false
	}
	return Caller{UserID: uid, Email: c.GetString(CtxEmail), Roles: c.GetStringSlice(CtxRoles)}, true
}
