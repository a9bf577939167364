package entitlements

import (
	"encoding/json"
	"time"
)

// Source names where a user's Pro access comes from.
type Source string

const (
	SourceNone  Source = ""
	SourcePolar Source = "polar" // recurring subscription
	SourceDodo  Source = "dodo"  // one-off payment
	SourceAdmin Source = "admin" // manual grant
)

// MarshalJSON encodes SourceNone as null so callers get {"proSource": null}.
func (s Source) MarshalJSON() ([]byte, error) {
	if s == SourceNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *Source) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = SourceNone
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Source(v)
	return nil
}

const (
	GrantStatusActive  = "active"
	GrantStatusRevoked = "revoked"

	SubscriptionStatusActive = "active"

	PaymentStatusSuccessful = "successful"
)

// PaymentAccessDays is how long a single successful payment unlocks Pro.
const PaymentAccessDays = 30

// AdminGrant is a manually issued Pro override.
// ExpiresAt nil means the grant never expires on its own.
type AdminGrant struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	GrantedBy    string     `json:"granted_by"`
	Reason       string     `json:"reason,omitempty"`
	Status       string     `json:"status"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    string     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Subscription is a recurring-billing record from the payment processor.
type Subscription struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Status           string     `json:"status"`
	ProductID        string     `json:"product_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

// Payment is a one-off transaction.
type Payment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Amount    int64     `json:"amount,omitempty"` // minor units
	Currency  string    `json:"currency,omitempty"`
}

// Decision is the resolved Pro status for one user at one instant.
// The JSON shape is what the admin listing and the pricing view serialize.
type Decision struct {
	IsProUser    bool       `json:"isProUser"`
	ProSource    Source     `json:"proSource"`
	ProExpiresAt *time.Time `json:"proExpiresAt"`
}

// NotPro is the fail-closed default.
func NotPro() Decision { return Decision{} }

// Revocation describes one grant the reconciler wants revoked.
type Revocation struct {
	GrantID string
	UserID  string
	Actor   string
	Reason  string
	At      time.Time
}
