package progin

import (
	"strings"

	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/gin-gonic/gin"
)

// AdminPredicate decides whether the caller may use the admin surface.
type AdminPredicate func(ginutil.Caller) bool

// AdminByEmailOrRole grants admin to callers whose e-mail is in emails
// (case-insensitive) or who carry the "admin" role.
func AdminByEmailOrRole(emails []string) AdminPredicate {
	allowed := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return func(u ginutil.Caller) bool {
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(u.Email))]; ok && u.Email != "" {
			return true
		}
		for _, r := range u.Roles {
			if r == "admin" {
				return true
			}
		}
		return false
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired(isAdmin AdminPredicate) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := ginutil.CallerFrom(c)
		if !ok {
			ginutil.Unauthorized(c, "unauthorized")
			return
		}
		if isAdmin == nil || !isAdmin(u) {
			ginutil.Forbidden(c, "admin_access_required")
			return
		}
		c.Next()
	}
}
