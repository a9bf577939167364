package handlers

import (
	"net/http"
	"time"

	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/gin-gonic/gin"
)

// HandleAdminPremiumAccessGET describes the premium access panel.
func HandleAdminPremiumAccessGET() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Admin Premium Access Panel",
			"admin":   gin.H{"email": c.GetString(ginutil.CtxEmail), "id": c.GetString(ginutil.CtxUserID)},
			"actions": []string{"grant", "revoke"},
			"usage": gin.H{
				"grant":  `POST with { userEmail, action: "grant", reason: "Student access", expiresAt?: RFC3339 }`,
				"revoke": `POST with { userEmail, action: "revoke", reason: "Expired" }`,
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}
