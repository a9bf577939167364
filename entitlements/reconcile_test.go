package entitlements_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PaulFidika/prokit/entitlements"
	memorystore "github.com/PaulFidika/prokit/storage/memory"
	"github.com/sirupsen/logrus"
)

var t0 = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func seedGrant(t *testing.T, st *memorystore.Store, id, user string, at time.Time) {
	t.Helper()
	err := st.InsertGrant(context.Background(), entitlements.AdminGrant{
		ID: id, UserID: user, GrantedBy: "admin@x.io", Status: entitlements.GrantStatusActive, GrantedAt: at,
	})
	if err != nil {
		t.Fatalf("seed grant: %v", err)
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestPlanRevocations_KeepsEarliest(t *testing.T) {
	at := t0.Add(time.Hour)
	plan := entitlements.PlanRevocations(map[string][]entitlements.AdminGrant{
		"u1": {
			{ID: "late", UserID: "u1", Status: entitlements.GrantStatusActive, GrantedAt: t0.Add(2 * time.Hour)},
			{ID: "early", UserID: "u1", Status: entitlements.GrantStatusActive, GrantedAt: t0},
		},
		"u2": {
			{ID: "only", UserID: "u2", Status: entitlements.GrantStatusActive, GrantedAt: t0},
		},
	}, "ops@x.io", entitlements.DuplicateRevokeReason, at)

	if len(plan) != 1 {
		t.Fatalf("expected one revocation, got %+v", plan)
	}
	rv := plan[0]
	if rv.GrantID != "late" || rv.UserID != "u1" || rv.Actor != "ops@x.io" || rv.Reason != "Duplicate grant - auto-cleanup" || !rv.At.Equal(at) {
		t.Fatalf("unexpected revocation %+v", rv)
	}
}

func TestPlanRevocations_UndatedGrantNeverKept(t *testing.T) {
	plan := entitlements.PlanRevocations(map[string][]entitlements.AdminGrant{
		"u1": {
			{ID: "a", UserID: "u1", Status: entitlements.GrantStatusActive},
			{ID: "b", UserID: "u1", Status: entitlements.GrantStatusActive, GrantedAt: t0},
		},
	}, "system", entitlements.DuplicateRevokeReason, t0)
	if len(plan) != 1 || plan[0].GrantID != "a" {
		t.Fatalf("expected undated grant to be revoked, got %+v", plan)
	}
}

func TestReconciler_RevokesLaterDuplicatesAndIsIdempotent(t *testing.T) {
	st := memorystore.New()
	seedGrant(t, st, "g1", "u1", t0)
	seedGrant(t, st, "g2", "u1", t0.Add(24*time.Hour))
	seedGrant(t, st, "g3", "u2", t0)

	runAt := t0.Add(48 * time.Hour)
	r := entitlements.NewReconciler(st, "system", quietLogger(),
		entitlements.WithReconcileClock(func() time.Time { return runAt }))

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.DuplicatesFound != 1 || rep.GrantsRevoked != 1 || rep.Failed != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}

	g1, _ := st.Grant("g1")
	g2, _ := st.Grant("g2")
	g3, _ := st.Grant("g3")
	if g1.Status != entitlements.GrantStatusActive || g3.Status != entitlements.GrantStatusActive {
		t.Fatalf("kept grants changed: %+v %+v", g1, g3)
	}
	if g2.Status != entitlements.GrantStatusRevoked || g2.RevokedBy != "system" ||
		g2.RevokeReason != entitlements.DuplicateRevokeReason || g2.RevokedAt == nil || !g2.RevokedAt.Equal(runAt) {
		t.Fatalf("g2 not revoked as expected: %+v", g2)
	}

	// The kept grant is the one resolution picks.
	grants, _ := st.GrantsForUser(context.Background(), "u1")
	if eff, ok := entitlements.SelectEffectiveGrant(grants); !ok || eff.ID != "g1" {
		t.Fatalf("effective grant = %+v", eff)
	}

	rep, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.DuplicatesFound != 0 || rep.GrantsRevoked != 0 {
		t.Fatalf("expected second run to be a no-op, got %+v", rep)
	}
}

// flakyStore fails revocation of specific grants.
type flakyStore struct {
	*memorystore.Store
	fail map[string]bool
}

func (f flakyStore) RevokeGrant(ctx context.Context, id, actor, reason string, at time.Time) error {
	if f.fail[id] {
		return errors.New("write timeout")
	}
	return f.Store.RevokeGrant(ctx, id, actor, reason, at)
}

func TestReconciler_ContinuesPastFailures(t *testing.T) {
	st := memorystore.New()
	seedGrant(t, st, "a1", "ua", t0)
	seedGrant(t, st, "a2", "ua", t0.Add(time.Hour))
	seedGrant(t, st, "b1", "ub", t0)
	seedGrant(t, st, "b2", "ub", t0.Add(time.Hour))

	r := entitlements.NewReconciler(flakyStore{Store: st, fail: map[string]bool{"a2": true}}, "", quietLogger())
	rep, err := r.Run(context.Background())
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if rep.DuplicatesFound != 2 || rep.GrantsRevoked != 1 || rep.Failed != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if g, _ := st.Grant("b2"); g.Status != entitlements.GrantStatusRevoked || g.RevokedBy != "system" {
		t.Fatalf("b2 should be revoked by system, got %+v", g)
	}
	if g, _ := st.Grant("a2"); g.Status != entitlements.GrantStatusActive {
		t.Fatalf("a2 should still be active, got %+v", g)
	}
}

// racingStore revokes the grant under the reconciler before it gets there.
type racingStore struct {
	*memorystore.Store
}

func (r racingStore) RevokeGrant(ctx context.Context, id, actor, reason string, at time.Time) error {
	_ = r.Store.RevokeGrant(ctx, id, "other-run", reason, at)
	return r.Store.RevokeGrant(ctx, id, actor, reason, at)
}

func TestReconciler_AlreadyRevokedIsSkipped(t *testing.T) {
	st := memorystore.New()
	seedGrant(t, st, "g1", "u1", t0)
	seedGrant(t, st, "g2", "u1", t0.Add(time.Hour))

	rep, err := entitlements.NewReconciler(racingStore{st}, "system", quietLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("expected concurrent revocation to be tolerated, got %v", err)
	}
	if rep.GrantsRevoked != 0 || rep.Failed != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if g, _ := st.Grant("g2"); g.RevokedBy != "other-run" {
		t.Fatalf("expected first revocation to stand, got %+v", g)
	}
}
