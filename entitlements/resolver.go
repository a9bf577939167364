package entitlements

import (
	"sort"
	"time"
)

// Resolve decides whether userID currently has Pro access.
//
// Sources are checked in a fixed order and the first match wins:
//  1. any active subscription → polar, no expiry surfaced
//  2. latest successful payment, valid while now < createdAt+30d → dodo, expiry surfaced
//  3. earliest-granted active admin grant with no expiry or a future one → admin, no expiry surfaced
//
// Records belonging to another user, or carrying a zero timestamp where one is
// required, never match. Resolve has no side effects and never fails; when no
// source applies the result is NotPro.
func Resolve(userID string, grants []AdminGrant, subs []Subscription, payments []Payment, now time.Time) Decision {
	d, _ := resolve(userID, grants, subs, payments, now)
	return d
}

// resolve also returns the instant the decision stops holding, including an
// admin grant's expiry that the decision itself does not carry.
func resolve(userID string, grants []AdminGrant, subs []Subscription, payments []Payment, now time.Time) (Decision, *time.Time) {
	if hasActiveSubscription(userID, subs) {
		return Decision{IsProUser: true, ProSource: SourcePolar}, nil
	}

	if p, ok := LatestSuccessfulPayment(ownPayments(userID, payments)); ok {
		exp := PaymentExpiry(p)
		if exp.After(now) {
			return Decision{IsProUser: true, ProSource: SourceDodo, ProExpiresAt: &exp}, &exp
		}
	}

	if g, ok := SelectEffectiveGrant(ownGrants(userID, grants)); ok {
		if g.ExpiresAt == nil || g.ExpiresAt.After(now) {
			return Decision{IsProUser: true, ProSource: SourceAdmin}, g.ExpiresAt
		}
	}

	return NotPro(), nil
}

// PaymentExpiry is the instant a payment stops conferring access.
func PaymentExpiry(p Payment) time.Time {
	return p.CreatedAt.UTC().AddDate(0, 0, PaymentAccessDays)
}

func hasActiveSubscription(userID string, subs []Subscription) bool {
	for _, s := range subs {
		if s.UserID == userID && s.Status == SubscriptionStatusActive {
			return true
		}
	}
	return false
}

// LatestSuccessfulPayment returns the successful payment with the newest
// CreatedAt. Payments with a zero CreatedAt are skipped. Equal timestamps break
// on the larger ID.
func LatestSuccessfulPayment(payments []Payment) (Payment, bool) {
	var best Payment
	found := false
	for _, p := range payments {
		if p.Status != PaymentStatusSuccessful || p.CreatedAt.IsZero() {
			continue
		}
		if !found || p.CreatedAt.After(best.CreatedAt) || (p.CreatedAt.Equal(best.CreatedAt) && p.ID > best.ID) {
			best = p
			found = true
		}
	}
	return best, found
}

// SelectEffectiveGrant returns the active grant with the earliest GrantedAt.
// This is the grant that survives duplicate cleanup, so resolution and the
// reconciler always agree on it. Grants with a zero GrantedAt are skipped.
func SelectEffectiveGrant(grants []AdminGrant) (AdminGrant, bool) {
	active := activeGrants(grants)
	if len(active) == 0 {
		return AdminGrant{}, false
	}
	return active[0], true
}

// activeGrants returns the usable active grants ordered by (GrantedAt, ID).
func activeGrants(grants []AdminGrant) []AdminGrant {
	out := make([]AdminGrant, 0, len(grants))
	for _, g := range grants {
		if g.Status != GrantStatusActive || g.GrantedAt.IsZero() {
			continue
		}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].GrantedAt.Before(out[j].GrantedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func ownPayments(userID string, payments []Payment) []Payment {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

func ownGrants(userID string, grants []AdminGrant) []AdminGrant {
	out := make([]AdminGrant, 0, len(grants))
	for _, g := range grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out
}
