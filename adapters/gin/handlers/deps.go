package handlers

import (
	"context"
	"time"

	"github.com/PaulFidika/prokit/entitlements"
	"github.com/PaulFidika/prokit/identity"
)

// Entitlements is the slice of *entitlements.Service the handlers use.
type Entitlements interface {
	ResolveUser(ctx context.Context, userID string) (entitlements.Decision, error)
	ResolveMany(ctx context.Context, userIDs []string) map[string]entitlements.Decision
	GrantPro(ctx context.Context, userID, actor, reason string, expiresAt *time.Time) (entitlements.AdminGrant, error)
	RevokePro(ctx context.Context, userID, actor, reason string) (int, error)
	ReconcileDuplicates(ctx context.Context, actor string) (entitlements.ReconcileReport, error)
}

// UserDirectory is satisfied by *identity.Store and the in-memory store.
type UserDirectory interface {
	List(ctx context.Context, search string, limit, offset int) ([]identity.User, error)
	Count(ctx context.Context, search string) (int, error)
	GetByEmail(ctx context.Context, email string) (*identity.User, error)
}
