package memorystore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PaulFidika/prokit/entitlements"
	"github.com/PaulFidika/prokit/identity"
)

// Store keeps users, grants, subscriptions and payments in memory. It
// satisfies every entitlements store interface and the admin user directory,
// and is meant for tests and single-process development.
type Store struct {
	mu       sync.RWMutex
	users    map[string]identity.User
	grants   map[string]entitlements.AdminGrant
	subs     []entitlements.Subscription
	payments []entitlements.Payment
}

func New() *Store {
	return &Store{
		users:  make(map[string]identity.User),
		grants: make(map[string]entitlements.AdminGrant),
	}
}

func (s *Store) AddUser(u identity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) AddSubscription(sub entitlements.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

func (s *Store) AddPayment(p entitlements.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, p)
}

// Grant returns a copy of a stored grant.
func (s *Store) Grant(id string) (entitlements.AdminGrant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	return g, ok
}

// --- user directory ---

func (s *Store) filteredUsers(search string) []identity.User {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]identity.User, 0, len(s.users))
	for _, u := range s.users {
		if search != "" && !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) List(ctx context.Context, search string, limit, offset int) ([]identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.filteredUsers(search)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return nil, nil
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *Store) Count(ctx context.Context, search string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filteredUsers(search)), nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return &u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

// --- entitlements stores ---

func (s *Store) GrantsForUser(ctx context.Context, userID string) ([]entitlements.AdminGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entitlements.AdminGrant
	for _, g := range s.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sortGrants(out)
	return out, nil
}

func (s *Store) DuplicateActiveGrants(ctx context.Context) (map[string][]entitlements.AdminGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := map[string][]entitlements.AdminGrant{}
	for _, g := range s.grants {
		if g.Status == entitlements.GrantStatusActive {
			byUser[g.UserID] = append(byUser[g.UserID], g)
		}
	}
	for uid, gs := range byUser {
		if len(gs) < 2 {
			delete(byUser, uid)
			continue
		}
		sortGrants(gs)
	}
	return byUser, nil
}

func (s *Store) InsertGrant(ctx context.Context, g entitlements.AdminGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g.ID] = g
	return nil
}

func (s *Store) RevokeGrant(ctx context.Context, grantID, actor, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantID]
	if !ok || g.Status != entitlements.GrantStatusActive {
		return entitlements.ErrNotFound
	}
	s.grants[grantID] = revoked(g, actor, reason, at)
	return nil
}

func (s *Store) RevokeActiveGrants(ctx context.Context, userID, actor, reason string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, g := range s.grants {
		if g.UserID == userID && g.Status == entitlements.GrantStatusActive {
			s.grants[id] = revoked(g, actor, reason, at)
			n++
		}
	}
	return n, nil
}

func (s *Store) ActiveSubscriptions(ctx context.Context, userID string) ([]entitlements.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entitlements.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.Status == entitlements.SubscriptionStatusActive {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Store) SuccessfulPayments(ctx context.Context, userID string) ([]entitlements.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entitlements.Payment
	for _, p := range s.payments {
		if p.UserID == userID && p.Status == entitlements.PaymentStatusSuccessful {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func revoked(g entitlements.AdminGrant, actor, reason string, at time.Time) entitlements.AdminGrant {
	t := at
	g.Status = entitlements.GrantStatusRevoked
	g.RevokedAt = &t
	g.RevokedBy = actor
	g.RevokeReason = reason
	return g
}

func sortGrants(gs []entitlements.AdminGrant) {
	sort.SliceStable(gs, func(i, j int) bool {
		if !gs[i].GrantedAt.Equal(gs[j].GrantedAt) {
			return gs[i].GrantedAt.Before(gs[j].GrantedAt)
		}
		return gs[i].ID < gs[j].ID
	})
}
