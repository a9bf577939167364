// Package progin mounts the entitlement HTTP surface on a gin router.
package progin

import (
	"github.com/PaulFidika/prokit/adapters/gin/handlers"
	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the routes need. Verifier, Users and
// Entitlements are required.
type Deps struct {
	Verifier     TokenVerifier
	Users        handlers.UserDirectory
	Entitlements handlers.Entitlements
	IsAdmin      AdminPredicate
	RateLimiter  ginutil.RateLimiter
	Prices       *handlers.Prices
	Health       map[string]handlers.Pinger
}

// Register mounts all routes on r.
func Register(r gin.IRouter, d Deps) {
	prices := handlers.DefaultPrices
	if d.Prices != nil {
		prices = *d.Prices
	}
	isAdmin := d.IsAdmin
	if isAdmin == nil {
		isAdmin = AdminByEmailOrRole(nil)
	}

	r.GET("/healthz", handlers.HandleHealthGET(d.Health))

	auth := AuthRequired(d.Verifier)
	r.GET("/user/entitlement", auth, handlers.HandleUserEntitlementGET(d.Entitlements, prices, d.RateLimiter))

	admin := r.Group("/admin", auth, AdminRequired(isAdmin))
	admin.GET("/users", handlers.HandleAdminUsersGET(d.Users, d.Entitlements, d.RateLimiter))
	admin.GET("/premium-access", handlers.HandleAdminPremiumAccessGET())
	admin.POST("/premium-access", handlers.HandleAdminPremiumAccessPOST(d.Users, d.Entitlements, d.RateLimiter))
	admin.POST("/grants/cleanup", handlers.HandleAdminGrantsCleanupPOST(d.Entitlements, d.RateLimiter))
}
