package handlers

import (
	"net/http"

	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/PaulFidika/prokit/entitlements"
	"github.com/gin-gonic/gin"
)

// Prices are whole units of each currency.
type Prices struct {
	USD int `json:"usd"`
	INR int `json:"inr"`
}

var DefaultPrices = Prices{USD: 3, INR: 249}

// ExpiryDisplayLayout renders an expiry like "January 2, 2006".
const ExpiryDisplayLayout = "January 2, 2006"

// PlanView feeds the pricing table.
type PlanView struct {
	CurrentPlan string `json:"currentPlan"`
	CanManage   bool   `json:"canManage"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
	Prices      Prices `json:"prices"`
}

// PlanFor derives the pricing view from a decision. Any Pro source makes Pro
// the current plan; the expiry line only appears for time-boxed access.
func PlanFor(d entitlements.Decision, prices Prices) PlanView {
	v := PlanView{CurrentPlan: "free", Prices: prices}
	if d.IsProUser {
		v.CurrentPlan = "pro"
		// admin grants have no payment to manage
		v.CanManage = d.ProSource == entitlements.SourcePolar || d.ProSource == entitlements.SourceDodo
	}
	if d.IsProUser && d.ProExpiresAt != nil {
		v.ExpiresAt = d.ProExpiresAt.UTC().Format(ExpiryDisplayLayout)
	}
	return v
}

// HandleUserEntitlementGET returns the caller's own decision and plan view.
// A lookup failure degrades to the free plan instead of failing the page.
func HandleUserEntitlementGET(ent Entitlements, prices Prices, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLUserEntitlement) {
			ginutil.TooMany(c)
			return
		}
		u, ok := ginutil.CallerFrom(c)
		if !ok {
			ginutil.Unauthorized(c, "unauthorized")
			return
		}
		d, err := ent.ResolveUser(c.Request.Context(), u.UserID)
		if err != nil {
			ginutil.Logger.WithError(err).WithField("user_id", u.UserID).Warn("entitlement lookup failed, showing free plan")
			d = entitlements.NotPro()
		}
		c.JSON(http.StatusOK, gin.H{
			"isProUser":    d.IsProUser,
			"proSource":    d.ProSource,
			"proExpiresAt": d.ProExpiresAt,
			"plan":         PlanFor(d, prices),
		})
	}
}
