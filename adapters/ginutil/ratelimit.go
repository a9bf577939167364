package ginutil

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is satisfied by ratelimit/memory and ratelimit/redis.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// Named buckets.
const (
	RLAdminUsersList     = "admin_users_list"
	RLAdminPremiumAccess = "admin_premium_access"
	RLAdminGrantCleanup  = "admin_grant_cleanup"
	RLUserEntitlement    = "user_entitlement"
)

// BucketLimit is a plain description of a bucket's budget.
type BucketLimit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimits is the budget each named bucket gets unless overridden.
func DefaultLimits() map[string]BucketLimit {
	return map[string]BucketLimit{
		RLAdminUsersList:     {Limit: 120, Window: time.Minute},
		RLAdminPremiumAccess: {Limit: 30, Window: time.Minute},
		RLAdminGrantCleanup:  {Limit: 5, Window: time.Minute},
		RLUserEntitlement:    {Limit: 60, Window: time.Minute},
		"default":            {Limit: 100, Window: time.Minute},
	}
}

// AllowNamed keys the bucket by caller id, falling back to client IP. A nil
// limiter allows everything; limiter errors fail open.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key := c.GetString(CtxUserID)
	if key == "" {
		key = c.ClientIP()
	}
	ok, err := rl.AllowNamed(bucket, key)
	if err != nil {
		Logger.WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}
