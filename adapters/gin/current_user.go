package progin

import (
	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/gin-gonic/gin"
)

// UserView is a snapshot of the caller for handlers and debugging output.
type UserView struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles,omitempty"`

	Source string `json:"source"` // "claims" | "none"
}

// CurrentUser returns the caller taken from verified token claims, or a
// "none" view when the request is unauthenticated.
func CurrentUser(c *gin.Context) (UserView, bool) {
	if u, ok := ginutil.CallerFrom(c); ok {
		return UserView{UserID: u.UserID, Email: u.Email, Roles: u.Roles, Source: "claims"}, true
	}
	return UserView{Source: "none"}, false
}
