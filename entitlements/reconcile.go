package entitlements

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// DuplicateRevokeReason is stamped on grants revoked by the reconciler.
const DuplicateRevokeReason = "Duplicate grant - auto-cleanup"

// PlanRevocations picks, for every user with more than one active grant, all
// grants except the one SelectEffectiveGrant would choose. Grants with a zero
// GrantedAt sort after dated ones so they never displace a usable grant.
// Output is ordered by user id then grant order.
func PlanRevocations(activeByUser map[string][]AdminGrant, actor, reason string, now time.Time) []Revocation {
	users := make([]string, 0, len(activeByUser))
	for uid := range activeByUser {
		users = append(users, uid)
	}
	sort.Strings(users)

	var out []Revocation
	for _, uid := range users {
		ordered := reconcileOrder(activeByUser[uid])
		if len(ordered) < 2 {
			continue
		}
		for _, g := range ordered[1:] {
			out = append(out, Revocation{GrantID: g.ID, UserID: uid, Actor: actor, Reason: reason, At: now})
		}
	}
	return out
}

func reconcileOrder(grants []AdminGrant) []AdminGrant {
	out := make([]AdminGrant, 0, len(grants))
	for _, g := range grants {
		if g.Status == GrantStatusActive {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		zi, zj := out[i].GrantedAt.IsZero(), out[j].GrantedAt.IsZero()
		if zi != zj {
			return zj
		}
		if !out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].GrantedAt.Before(out[j].GrantedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReconcileReport summarizes one reconciler run.
type ReconcileReport struct {
	DuplicatesFound int `json:"duplicatesFound"`
	GrantsRevoked   int `json:"grantsRevoked"`
	Failed          int `json:"failed"`
}

// Reconciler revokes duplicate active admin grants. Running it again after a
// complete run revokes nothing.
type Reconciler struct {
	grants   GrantStore
	actor    string
	log      logrus.FieldLogger
	now      func() time.Time
	recorder Recorder
	events   Publisher
	cache    DecisionCache
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithReconcileClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func WithReconcileRecorder(rec Recorder) ReconcilerOption {
	return func(r *Reconciler) { r.recorder = rec }
}

func WithReconcilePublisher(p Publisher) ReconcilerOption {
	return func(r *Reconciler) { r.events = p }
}

func WithReconcileCache(c DecisionCache) ReconcilerOption {
	return func(r *Reconciler) { r.cache = c }
}

// NewReconciler builds a reconciler that stamps revocations with actor.
func NewReconciler(grants GrantStore, actor string, log logrus.FieldLogger, opts ...ReconcilerOption) *Reconciler {
	if actor == "" {
		actor = "system"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Reconciler{
		grants:   grants,
		actor:    actor,
		log:      log,
		now:      time.Now,
		recorder: noopRecorder{},
		events:   noopPublisher{},
		cache:    noopCache{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run revokes duplicates one grant at a time. A failed revocation does not stop
// the run; the returned error joins every failure and the report counts them.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	dups, err := r.grants.DuplicateActiveGrants(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list duplicate grants: %w", err)
	}
	report := ReconcileReport{DuplicatesFound: len(dups)}
	if len(dups) == 0 {
		return report, nil
	}

	plan := PlanRevocations(dups, r.actor, DuplicateRevokeReason, r.now().UTC())
	var errs []error
	touched := map[string]struct{}{}
	for _, rv := range plan {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := r.grants.RevokeGrant(ctx, rv.GrantID, rv.Actor, rv.Reason, rv.At)
		if errors.Is(err, ErrNotFound) {
			// already revoked by a concurrent run
			continue
		}
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("revoke grant %s: %w", rv.GrantID, err))
			r.log.WithFields(logrus.Fields{"grant_id": rv.GrantID, "user_id": rv.UserID}).WithError(err).Warn("duplicate grant revoke failed")
			continue
		}
		report.GrantsRevoked++
		touched[rv.UserID] = struct{}{}
		if err := r.events.PublishGrantEvent(ctx, GrantEvent{
			Type: GrantEventDuplicateRevoked, UserID: rv.UserID, GrantID: rv.GrantID,
			Actor: rv.Actor, Reason: rv.Reason, At: rv.At,
		}); err != nil {
			r.log.WithError(err).WithField("grant_id", rv.GrantID).Warn("publish grant event failed")
		}
	}
	for uid := range touched {
		if err := r.cache.Del(ctx, uid); err != nil {
			r.log.WithError(err).WithField("user_id", uid).Warn("decision cache invalidate failed")
		}
	}
	r.recorder.AddReconcileRevocations(report.GrantsRevoked)
	r.log.WithFields(logrus.Fields{
		"duplicates_found": report.DuplicatesFound,
		"grants_revoked":   report.GrantsRevoked,
		"failed":           report.Failed,
	}).Info("admin grant reconcile finished")
	return report, errors.Join(errs...)
}
