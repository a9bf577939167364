package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultGrantReason  = "Manual grant by admin"
	DefaultRevokeReason = "Manual revoke by admin"

	DefaultCacheTTL = 10 * time.Minute
)

// Config wires a Service. Grants, Subscriptions and Payments are required.
type Config struct {
	Grants        GrantStore
	Subscriptions SubscriptionStore
	Payments      PaymentStore

	Cache     DecisionCache
	Publisher Publisher
	Recorder  Recorder
	Logger    logrus.FieldLogger

	CacheTTL    time.Duration
	Parallelism int // ResolveMany fan-out; default 8
	Now         func() time.Time
}

// Service fetches a user's access records and runs Resolve over them.
// It also owns the admin grant mutations so cached decisions stay coherent.
type Service struct {
	grants   GrantStore
	subs     SubscriptionStore
	payments PaymentStore
	cache    DecisionCache
	events   Publisher
	rec      Recorder
	log      logrus.FieldLogger
	ttl      time.Duration
	par      int
	now      func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Grants == nil || cfg.Subscriptions == nil || cfg.Payments == nil {
		return nil, errors.New("entitlements: grant, subscription and payment stores are required")
	}
	s := &Service{
		grants:   cfg.Grants,
		subs:     cfg.Subscriptions,
		payments: cfg.Payments,
		cache:    cfg.Cache,
		events:   cfg.Publisher,
		rec:      cfg.Recorder,
		log:      cfg.Logger,
		ttl:      cfg.CacheTTL,
		par:      cfg.Parallelism,
		now:      cfg.Now,
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.rec == nil {
		s.rec = noopRecorder{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultCacheTTL
	}
	if s.par <= 0 {
		s.par = 8
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Reconciler returns a duplicate-grant reconciler sharing this service's
// stores, cache and event sinks.
func (s *Service) Reconciler(actor string) *Reconciler {
	return NewReconciler(s.grants, actor, s.log,
		WithReconcileClock(s.now),
		WithReconcileRecorder(s.rec),
		WithReconcilePublisher(s.events),
		WithReconcileCache(s.cache),
	)
}

// ReconcileDuplicates runs one duplicate-grant cleanup pass attributed to actor.
func (s *Service) ReconcileDuplicates(ctx context.Context, actor string) (ReconcileReport, error) {
	return s.Reconciler(actor).Run(ctx)
}

// ResolveUser returns the user's current decision. If any source cannot be
// fetched it returns NotPro together with the error; callers decide whether to
// show the degraded decision or abort.
func (s *Service) ResolveUser(ctx context.Context, userID string) (Decision, error) {
	if strings.TrimSpace(userID) == "" {
		return NotPro(), nil
	}
	if d, ok, err := s.cache.Get(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("decision cache read failed")
	} else if ok {
		return d, nil
	}

	grants, subs, payments, err := s.fetch(ctx, userID)
	if err != nil {
		s.rec.IncResolutionError()
		return NotPro(), err
	}
	now := s.now()
	d, validUntil := resolve(userID, grants, subs, payments, now)
	s.rec.ObserveResolution(d.ProSource)

	if ttl := s.cacheTTL(validUntil, now); ttl > 0 {
		if err := s.cache.Put(ctx, userID, d, ttl); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("decision cache write failed")
		}
	}
	return d, nil
}

func (s *Service) fetch(ctx context.Context, userID string) ([]AdminGrant, []Subscription, []Payment, error) {
	var (
		grants   []AdminGrant
		subs     []Subscription
		payments []Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if subs, err = s.subs.ActiveSubscriptions(gctx, userID); err != nil {
			return fmt.Errorf("fetch subscriptions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if payments, err = s.payments.SuccessfulPayments(gctx, userID); err != nil {
			return fmt.Errorf("fetch payments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if grants, err = s.grants.GrantsForUser(gctx, userID); err != nil {
			return fmt.Errorf("fetch grants: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return grants, subs, payments, nil
}

// cacheTTL caps the cache lifetime so a time-boxed decision is never served
// past the moment it stops holding.
func (s *Service) cacheTTL(validUntil *time.Time, now time.Time) time.Duration {
	ttl := s.ttl
	if validUntil != nil {
		if left := validUntil.Sub(now); left < ttl {
			ttl = left
		}
	}
	return ttl
}

// ResolveMany resolves each user independently. A user whose sources fail to
// load is reported as NotPro; other users are unaffected.
func (s *Service) ResolveMany(ctx context.Context, userIDs []string) map[string]Decision {
	out := make(map[string]Decision, len(userIDs))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.par)
	for _, id := range userIDs {
		id := id
		g.Go(func() error {
			d, err := s.ResolveUser(ctx, id)
			if err != nil {
				s.log.WithError(err).WithField("user_id", id).Error("pro status check failed")
				d = NotPro()
			}
			mu.Lock()
			out[id] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// GrantPro issues a new active admin grant. A nil expiresAt makes it permanent
// until revoked.
func (s *Service) GrantPro(ctx context.Context, userID, actor, reason string, expiresAt *time.Time) (AdminGrant, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultGrantReason
	}
	now := s.now().UTC()
	g := AdminGrant{
		ID:        uuid.NewString(),
		UserID:    userID,
		GrantedBy: actor,
		Reason:    reason,
		Status:    GrantStatusActive,
		GrantedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.grants.InsertGrant(ctx, g); err != nil {
		return AdminGrant{}, fmt.Errorf("insert grant: %w", err)
	}
	s.rec.IncGrantAction("grant")
	s.afterMutation(ctx, GrantEvent{Type: GrantEventGranted, UserID: userID, GrantID: g.ID, Actor: actor, Reason: reason, Count: 1, At: now})
	return g, nil
}

// RevokePro revokes every active admin grant of the user.
func (s *Service) RevokePro(ctx context.Context, userID, actor, reason string) (int, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultRevokeReason
	}
	now := s.now().UTC()
	n, err := s.grants.RevokeActiveGrants(ctx, userID, actor, reason, now)
	if err != nil {
		return 0, fmt.Errorf("revoke grants: %w", err)
	}
	s.rec.IncGrantAction("revoke")
	s.afterMutation(ctx, GrantEvent{Type: GrantEventRevoked, UserID: userID, Actor: actor, Reason: reason, Count: n, At: now})
	return n, nil
}

func (s *Service) afterMutation(ctx context.Context, ev GrantEvent) {
	if err := s.cache.Del(ctx, ev.UserID); err != nil {
		s.log.WithError(err).WithField("user_id", ev.UserID).Warn("decision cache invalidate failed")
	}
	if err := s.events.PublishGrantEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithField("user_id", ev.UserID).Warn("publish grant event failed")
	}
	s.log.WithFields(logrus.Fields{
		"action":  ev.Type,
		"user_id": ev.UserID,
		"actor":   ev.Actor,
		"reason":  ev.Reason,
		"count":   ev.Count,
	}).Info("admin premium access change")
}
