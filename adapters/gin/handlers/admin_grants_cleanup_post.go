package handlers

import (
	"fmt"
	"net/http"

	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/gin-gonic/gin"
)

// HandleAdminGrantsCleanupPOST revokes duplicate active admin grants,
// keeping each user's earliest one. Partial failures still report counts.
func HandleAdminGrantsCleanupPOST(ent Entitlements, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminGrantCleanup) {
			ginutil.TooMany(c)
			return
		}
		rep, err := ent.ReconcileDuplicates(c.Request.Context(), actorOf(c))
		body := gin.H{
			"success":         err == nil,
			"message":         fmt.Sprintf("Cleaned up %d duplicate grants", rep.GrantsRevoked),
			"duplicatesFound": rep.DuplicatesFound,
			"grantsRevoked":   rep.GrantsRevoked,
		}
		if err != nil {
			ginutil.Logger.WithError(err).WithField("failed", rep.Failed).Error("duplicate grant cleanup incomplete")
			body["error"] = "failed_to_cleanup_duplicates"
			body["failed"] = rep.Failed
			c.JSON(http.StatusInternalServerError, body)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}
