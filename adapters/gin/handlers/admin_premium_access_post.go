package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/PaulFidika/prokit/identity"
	"github.com/gin-gonic/gin"
)

type premiumAccessRequest struct {
	UserEmail string     `json:"userEmail"`
	Action    string     `json:"action"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func actorOf(c *gin.Context) string {
	u, _ := ginutil.CallerFrom(c)
	if u.Email != "" {
		return u.Email
	}
	return u.UserID
}

// HandleAdminPremiumAccessPOST grants or revokes manual Pro access by e-mail.
func HandleAdminPremiumAccessPOST(dir UserDirectory, ent Entitlements, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminPremiumAccess) {
			ginutil.TooMany(c)
			return
		}
		var req premiumAccessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request")
			return
		}
		req.UserEmail = strings.TrimSpace(req.UserEmail)
		req.Action = strings.ToLower(strings.TrimSpace(req.Action))
		if req.UserEmail == "" || req.Action == "" {
			ginutil.BadRequest(c, "missing_required_fields")
			return
		}
		if req.Action != "grant" && req.Action != "revoke" {
			ginutil.BadRequest(c, "invalid_action")
			return
		}

		ctx := c.Request.Context()
		target, err := dir.GetByEmail(ctx, req.UserEmail)
		if errors.Is(err, identity.ErrUserNotFound) {
			ginutil.NotFound(c, "user_not_found")
			return
		}
		if err != nil {
			ginutil.ServerErrWithLog(c, "failed_to_process_admin_action", err, "lookup target user failed")
			return
		}

		actor := actorOf(c)
		resp := gin.H{
			"success":      true,
			"action":       req.Action,
			"userEmail":    req.UserEmail,
			"userId":       target.ID,
			"adminEmail":   actor,
			"cacheCleared": true,
			"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		}
		switch req.Action {
		case "grant":
			if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
				ginutil.BadRequest(c, "expires_at_in_past")
				return
			}
			g, err := ent.GrantPro(ctx, target.ID, actor, req.Reason, req.ExpiresAt)
			if err != nil {
				ginutil.ServerErrWithLog(c, "failed_to_process_admin_action", err, "grant pro failed")
				return
			}
			resp["grantId"] = g.ID
			resp["reason"] = g.Reason
			resp["expiresAt"] = g.ExpiresAt
		case "revoke":
			n, err := ent.RevokePro(ctx, target.ID, actor, req.Reason)
			if err != nil {
				ginutil.ServerErrWithLog(c, "failed_to_process_admin_action", err, "revoke pro failed")
				return
			}
			reason := req.Reason
			if strings.TrimSpace(reason) == "" {
				reason = "Revoked by admin"
			}
			resp["reason"] = reason
			resp["grantsRevoked"] = n
		}
		c.JSON(http.StatusOK, resp)
	}
}
