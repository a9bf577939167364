package entitlements

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist or is no
// longer in the state an update expects.
var ErrNotFound = errors.New("entitlements: not found")

// GrantStore persists admin grants.
type GrantStore interface {
	// GrantsForUser returns every grant for the user, any status.
	GrantsForUser(ctx context.Context, userID string) ([]AdminGrant, error)
	// DuplicateActiveGrants returns the active grants of every user holding
	// more than one, keyed by user id.
	DuplicateActiveGrants(ctx context.Context) (map[string][]AdminGrant, error)
	InsertGrant(ctx context.Context, g AdminGrant) error
	// RevokeGrant revokes a single grant if it is still active. It returns
	// ErrNotFound when the grant is missing or already revoked.
	RevokeGrant(ctx context.Context, grantID, actor, reason string, at time.Time) error
	// RevokeActiveGrants revokes all active grants of a user and returns how many changed.
	RevokeActiveGrants(ctx context.Context, userID, actor, reason string, at time.Time) (int, error)
}

// SubscriptionStore reads subscription records.
type SubscriptionStore interface {
	ActiveSubscriptions(ctx context.Context, userID string) ([]Subscription, error)
}

// PaymentStore reads payment records.
type PaymentStore interface {
	// SuccessfulPayments returns the user's successful payments, newest first.
	SuccessfulPayments(ctx context.Context, userID string) ([]Payment, error)
}

// DecisionCache holds recently resolved decisions.
type DecisionCache interface {
	Get(ctx context.Context, userID string) (Decision, bool, error)
	Put(ctx context.Context, userID string, d Decision, ttl time.Duration) error
	Del(ctx context.Context, userID string) error
}

// Publisher receives grant lifecycle events. Implementations should be best-effort.
type Publisher interface {
	PublishGrantEvent(ctx context.Context, ev GrantEvent) error
}

// Recorder receives resolution and mutation counts.
type Recorder interface {
	ObserveResolution(source Source)
	IncResolutionError()
	IncGrantAction(action string)
	AddReconcileRevocations(n int)
}

const (
	GrantEventGranted          = "granted"
	GrantEventRevoked          = "revoked"
	GrantEventDuplicateRevoked = "duplicate_revoked"
)

// GrantEvent describes a change to a user's admin grants.
type GrantEvent struct {
	Type    string    `json:"type"`
	UserID  string    `json:"user_id"`
	GrantID string    `json:"grant_id,omitempty"`
	Actor   string    `json:"actor"`
	Reason  string    `json:"reason,omitempty"`
	Count   int       `json:"count,omitempty"`
	At      time.Time `json:"at"`
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (Decision, bool, error) { return Decision{}, false, nil }
func (noopCache) Put(context.Context, string, Decision, time.Duration) error { return nil }
func (noopCache) Del(context.Context, string) error { return nil }

type noopPublisher struct{}

func (noopPublisher) PublishGrantEvent(context.Context, GrantEvent) error { return nil }

type noopRecorder struct{}

func (noopRecorder) ObserveResolution(Source) {}
func (noopRecorder) IncResolutionError() {}
func (noopRecorder) IncGrantAction(string) {}
func (noopRecorder) AddReconcileRevocations(int) {}
