package progin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PaulFidika/prokit/adapters/gin/handlers"
	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/PaulFidika/prokit/entitlements"
	"github.com/PaulFidika/prokit/identity"
	memorylimiter "github.com/PaulFidika/prokit/ratelimit/memory"
	memorystore "github.com/PaulFidika/prokit/storage/memory"
	authtest "github.com/PaulFidika/prokit/testing"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type fixture struct {
	r      *gin.Engine
	store  *memorystore.Store
	issuer *authtest.TestIssuer
	admin  string
	user   string
}

func newFixture(t *testing.T, rl ginutil.RateLimiter) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	ginutil.Logger = log

	st := memorystore.New()
	created := time.Now().Add(-48 * time.Hour)
	st.AddUser(identity.User{ID: "admin-1", Name: "Root", Email: "root@x.io", CreatedAt: created})
	st.AddUser(identity.User{ID: "user-1", Name: "Ada", Email: "ada@x.io", CreatedAt: created.Add(time.Hour)})
	st.AddUser(identity.User{ID: "user-2", Name: "Bob", Email: "bob@x.io", CreatedAt: created.Add(2 * time.Hour), UpdatedAt: created.Add(3 * time.Hour)})

	svc, err := entitlements.NewService(entitlements.Config{Grants: st, Subscriptions: st, Payments: st, Logger: log})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	iss := authtest.NewTestIssuer()
	t.Cleanup(iss.Close)

	r := gin.New()
	Register(r, Deps{
		Verifier:     iss.Verifier(),
		Users:        st,
		Entitlements: svc,
		IsAdmin:      AdminByEmailOrRole([]string{"ROOT@x.io"}),
		RateLimiter:  rl,
	})
	return &fixture{
		r:      r,
		store:  st,
		issuer: iss,
		admin:  iss.CreateToken("admin-1", "root@x.io"),
		user:   iss.CreateToken("user-1", "ada@x.io"),
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	w, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", w.Code, body)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("dial tcp: refused") }

func TestHealthz_Degraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", handlers.HandleHealthGET(map[string]handlers.Pinger{"postgres": downPinger{}}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, nil)
	if w, body := f.do(t, http.MethodGet, "/user/entitlement", "", nil); w.Code != http.StatusUnauthorized || body["error"] != "missing_token" {
		t.Fatalf("expected missing_token, got %d %v", w.Code, body)
	}
	expired := f.issuer.CreateExpiredToken("user-1", "ada@x.io")
	if w, body := f.do(t, http.MethodGet, "/user/entitlement", expired, nil); w.Code != http.StatusUnauthorized || body["error"] != "invalid_token" {
		t.Fatalf("expected invalid_token, got %d %v", w.Code, body)
	}
}

func TestAdminRequired(t *testing.T) {
	f := newFixture(t, nil)
	w, body := f.do(t, http.MethodGet, "/admin/users", f.user, nil)
	if w.Code != http.StatusForbidden || body["error"] != "admin_access_required" {
		t.Fatalf("expected 403, got %d %v", w.Code, body)
	}
	byRole := f.issuer.CreateTokenWithRoles("user-2", "bob@x.io", []string{"admin"})
	if w, _ := f.do(t, http.MethodGet, "/admin/premium-access", byRole, nil); w.Code != http.StatusOK {
		t.Fatalf("expected admin role to pass, got %d", w.Code)
	}
}

func TestUserEntitlement_PaymentPlan(t *testing.T) {
	f := newFixture(t, nil)
	paid := time.Now().UTC().Add(-24 * time.Hour)
	f.store.AddPayment(entitlements.Payment{ID: "p1", UserID: "user-1", Status: entitlements.PaymentStatusSuccessful, CreatedAt: paid})

	w, body := f.do(t, http.MethodGet, "/user/entitlement", f.user, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if body["isProUser"] != true || body["proSource"] != "dodo" || body["proExpiresAt"] == nil {
		t.Fatalf("unexpected decision %v", body)
	}
	plan := body["plan"].(map[string]any)
	want := paid.AddDate(0, 0, 30).Format("January 2, 2006")
	if plan["currentPlan"] != "pro" || plan["canManage"] != true || plan["expiresAt"] != want {
		t.Fatalf("unexpected plan %v (want expiry %s)", plan, want)
	}
	prices := plan["prices"].(map[string]any)
	if prices["usd"] != float64(3) || prices["inr"] != float64(249) {
		t.Fatalf("unexpected prices %v", prices)
	}
}

func TestPlanFor(t *testing.T) {
	free := handlers.PlanFor(entitlements.NotPro(), handlers.DefaultPrices)
	if free.CurrentPlan != "free" || free.CanManage || free.ExpiresAt != "" {
		t.Fatalf("unexpected free plan %+v", free)
	}
	admin := handlers.PlanFor(entitlements.Decision{IsProUser: true, ProSource: entitlements.SourceAdmin}, handlers.DefaultPrices)
	if admin.CurrentPlan != "pro" || admin.CanManage || admin.ExpiresAt != "" {
		t.Fatalf("unexpected admin plan %+v", admin)
	}
}

func TestPremiumAccess_GrantListRevoke(t *testing.T) {
	f := newFixture(t, nil)

	w, body := f.do(t, http.MethodPost, "/admin/premium-access", f.admin, map[string]any{
		"userEmail": "ADA@x.io", "action": "grant", "reason": "Student access",
	})
	if w.Code != http.StatusOK || body["userId"] != "user-1" || body["reason"] != "Student access" || body["adminEmail"] != "root@x.io" {
		t.Fatalf("grant failed: %d %v", w.Code, body)
	}

	w, body = f.do(t, http.MethodGet, "/admin/users?limit=2&page=1", f.admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status %d", w.Code)
	}
	users := body["users"].([]any)
	pg := body["pagination"].(map[string]any)
	if len(users) != 2 || pg["total"] != float64(3) || pg["totalPages"] != float64(2) || pg["hasNext"] != true || pg["hasPrev"] != false {
		t.Fatalf("unexpected page %v", body)
	}

	w, body = f.do(t, http.MethodGet, "/admin/users?search=ada", f.admin, nil)
	users = body["users"].([]any)
	if w.Code != http.StatusOK || len(users) != 1 {
		t.Fatalf("search failed: %d %v", w.Code, body)
	}
	row := users[0].(map[string]any)
	if row["isProUser"] != true || row["isPro"] != true || row["proSource"] != "admin" || row["proExpiresAt"] != nil {
		t.Fatalf("unexpected row %v", row)
	}

	w, body = f.do(t, http.MethodPost, "/admin/premium-access", f.admin, map[string]any{"userEmail": "ada@x.io", "action": "revoke"})
	if w.Code != http.StatusOK || body["grantsRevoked"] != float64(1) {
		t.Fatalf("revoke failed: %d %v", w.Code, body)
	}
	_, body = f.do(t, http.MethodGet, "/admin/users?search=ada", f.admin, nil)
	row = body["users"].([]any)[0].(map[string]any)
	if row["isProUser"] != false || row["proSource"] != nil {
		t.Fatalf("expected not pro after revoke, got %v", row)
	}
}

func TestAdminUsers_HugePageIsClamped(t *testing.T) {
	f := newFixture(t, nil)
	w, body := f.do(t, http.MethodGet, "/admin/users?page=9223372036854775807&limit=20", f.admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", w.Code, body)
	}
	pg := body["pagination"].(map[string]any)
	if len(body["users"].([]any)) != 0 || pg["page"] != float64(1_000_000) || pg["hasNext"] != false || pg["hasPrev"] != true {
		t.Fatalf("unexpected page %v", body)
	}
}

func TestPremiumAccess_Validation(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		body any
		code int
		err  string
	}{
		{map[string]any{"action": "grant"}, http.StatusBadRequest, "missing_required_fields"},
		{map[string]any{"userEmail": "ada@x.io", "action": "promote"}, http.StatusBadRequest, "invalid_action"},
		{map[string]any{"userEmail": "ghost@x.io", "action": "grant"}, http.StatusNotFound, "user_not_found"},
		{map[string]any{"userEmail": "ada@x.io", "action": "grant", "expiresAt": time.Now().Add(-time.Hour)}, http.StatusBadRequest, "expires_at_in_past"},
	}
	for _, tc := range cases {
		w, body := f.do(t, http.MethodPost, "/admin/premium-access", f.admin, tc.body)
		if w.Code != tc.code || body["error"] != tc.err {
			t.Fatalf("body %v: got %d %v, want %d %s", tc.body, w.Code, body, tc.code, tc.err)
		}
	}
}

func TestGrantsCleanup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	at := time.Now().Add(-time.Hour)
	_ = f.store.InsertGrant(ctx, entitlements.AdminGrant{ID: "g1", UserID: "user-1", Status: entitlements.GrantStatusActive, GrantedAt: at})
	_ = f.store.InsertGrant(ctx, entitlements.AdminGrant{ID: "g2", UserID: "user-1", Status: entitlements.GrantStatusActive, GrantedAt: at.Add(time.Minute)})

	w, body := f.do(t, http.MethodPost, "/admin/grants/cleanup", f.admin, nil)
	if w.Code != http.StatusOK || body["grantsRevoked"] != float64(1) || body["duplicatesFound"] != float64(1) || body["message"] != "Cleaned up 1 duplicate grants" {
		t.Fatalf("unexpected cleanup %d %v", w.Code, body)
	}
	if g, _ := f.store.Grant("g2"); g.Status != entitlements.GrantStatusRevoked || g.RevokedBy != "root@x.io" {
		t.Fatalf("g2 not revoked by caller: %+v", g)
	}

	_, body = f.do(t, http.MethodPost, "/admin/grants/cleanup", f.admin, nil)
	if body["grantsRevoked"] != float64(0) {
		t.Fatalf("expected idempotent second run, got %v", body)
	}
}

func TestRateLimited(t *testing.T) {
	rl := memorylimiter.New(map[string]memorylimiter.Limit{
		ginutil.RLUserEntitlement: {Limit: 1, Window: time.Minute},
	})
	f := newFixture(t, rl)
	if w, _ := f.do(t, http.MethodGet, "/user/entitlement", f.user, nil); w.Code != http.StatusOK {
		t.Fatalf("first call %d", w.Code)
	}
	if w, body := f.do(t, http.MethodGet, "/user/entitlement", f.user, nil); w.Code != http.StatusTooManyRequests || body["error"] != "rate_limited" {
		t.Fatalf("expected 429, got %d %v", w.Code, body)
	}
}

func TestCurrentUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if v, ok := CurrentUser(c); ok || v.Source != "none" {
		t.Fatalf("expected none, got %+v", v)
	}
	c.Set(ginutil.CtxUserID, "u1")
	c.Set(ginutil.CtxEmail, "u1@x.io")
	c.Set(ginutil.CtxRoles, []string{"admin"})
	v, ok := CurrentUser(c)
	if !ok || v.Source != "claims" || v.UserID != "u1" || len(v.Roles) != 1 {
		t.Fatalf("unexpected view %+v", v)
	}
}
