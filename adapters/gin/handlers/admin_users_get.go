package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/PaulFidika/prokit/entitlements"
	"github.com/gin-gonic/gin"
)

type adminUserRow struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Email         string              `json:"email"`
	Image         *string             `json:"image"`
	EmailVerified bool                `json:"emailVerified"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	IsProUser     bool                `json:"isProUser"`
	ProSource     entitlements.Source `json:"proSource"`
	ProExpiresAt  *time.Time          `json:"proExpiresAt"`
	LastSignIn    time.Time           `json:"lastSignIn"`
	IsPro         bool                `json:"isPro"`
}

type pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

func paginate(page, limit, total int) pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    page*limit < total,
		HasPrev:    page > 1,
	}
}

// maxPage keeps (page-1)*limit far from int overflow at the largest limit.
const maxPage = 1_000_000

func queryInt(c *gin.Context, name string, def, min, max int) int {
	n, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		n = def
	}
	if n < min {
		n = min
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// HandleAdminUsersGET lists users with their resolved Pro status.
func HandleAdminUsersGET(dir UserDirectory, ent Entitlements, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdminUsersList) {
			ginutil.TooMany(c)
			return
		}
		page := queryInt(c, "page", 1, 1, maxPage)
		limit := queryInt(c, "limit", 20, 1, 100)
		search := strings.TrimSpace(c.Query("search"))
		ctx := c.Request.Context()

		users, err := dir.List(ctx, search, limit, (page-1)*limit)
		if err != nil {
			ginutil.ServerErrWithLog(c, "failed_to_fetch_users", err, "list users failed")
			return
		}
		total, err := dir.Count(ctx, search)
		if err != nil {
			ginutil.ServerErrWithLog(c, "failed_to_fetch_users", err, "count users failed")
			return
		}

		ids := make([]string, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		decisions := ent.ResolveMany(ctx, ids)

		rows := make([]adminUserRow, 0, len(users))
		for _, u := range users {
			d, ok := decisions[u.ID]
			if !ok {
				d = entitlements.NotPro()
			}
			rows = append(rows, adminUserRow{
				ID:            u.ID,
				Name:          u.Name,
				Email:         u.Email,
				Image:         u.Image,
				EmailVerified: u.EmailVerified,
				CreatedAt:     u.CreatedAt,
				UpdatedAt:     u.UpdatedAt,
				IsProUser:     d.IsProUser,
				ProSource:     d.ProSource,
				ProExpiresAt:  d.ProExpiresAt,
				LastSignIn:    u.UpdatedAt,
				IsPro:         d.IsProUser,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"users":      rows,
			"pagination": paginate(page, limit, total),
			"search":     search,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}
