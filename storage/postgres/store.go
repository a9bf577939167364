// Package pgstore implements the entitlements stores on Postgres via pgx.
package pgstore

import (
	"context"
	"strings"
	"time"

	"github.com/PaulFidika/prokit/entitlements"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func New(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) grantsTable() string        { return s.schema + ".admin_grants" }
func (s *Store) subscriptionsTable() string { return s.schema + ".subscriptions" }
func (s *Store) paymentsTable() string      { return s.schema + ".payments" }

const grantColumns = `id, user_id, granted_by, reason, status, granted_at, expires_at, revoked_at, revoked_by, revoke_reason`

func scanGrant(row pgx.Row) (entitlements.AdminGrant, error) {
	var g entitlements.AdminGrant
	var reason, revokedBy, revokeReason *string
	if err := row.Scan(&g.ID, &g.UserID, &g.GrantedBy, &reason, &g.Status, &g.GrantedAt, &g.ExpiresAt, &g.RevokedAt, &revokedBy, &revokeReason); err != nil {
		return g, err
	}
	g.Reason = deref(reason)
	g.RevokedBy = deref(revokedBy)
	g.RevokeReason = deref(revokeReason)
	return g, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Store) GrantsForUser(ctx context.Context, userID string) ([]entitlements.AdminGrant, error) {
	rows, err := s.pg.Query(ctx, `SELECT `+grantColumns+` FROM `+s.grantsTable()+`
		WHERE user_id=$1 ORDER BY granted_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entitlements.AdminGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) DuplicateActiveGrants(ctx context.Context) (map[string][]entitlements.AdminGrant, error) {
	rows, err := s.pg.Query(ctx, `SELECT `+grantColumns+` FROM `+s.grantsTable()+`
		WHERE status='active' AND user_id IN (
			SELECT user_id FROM `+s.grantsTable()+` WHERE status='active'
			GROUP BY user_id HAVING COUNT(*) > 1
		)
		ORDER BY user_id, granted_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]entitlements.AdminGrant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out[g.UserID] = append(out[g.UserID], g)
	}
	return out, rows.Err()
}

func (s *Store) InsertGrant(ctx context.Context, g entitlements.AdminGrant) error {
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.grantsTable()+`
		(id, user_id, granted_by, reason, status, granted_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		g.ID, g.UserID, g.GrantedBy, g.Reason, g.Status, g.GrantedAt, g.ExpiresAt)
	return err
}

// RevokeGrant is guarded on status so a concurrent or repeated run cannot
// re-stamp an already revoked grant.
func (s *Store) RevokeGrant(ctx context.Context, grantID, actor, reason string, at time.Time) error {
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.grantsTable()+`
		SET status='revoked', revoked_at=$2, revoked_by=$3, revoke_reason=$4
		WHERE id=$1 AND status='active'`, grantID, at, actor, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entitlements.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeActiveGrants(ctx context.Context, userID, actor, reason string, at time.Time) (int, error) {
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.grantsTable()+`
		SET status='revoked', revoked_at=$2, revoked_by=$3, revoke_reason=$4
		WHERE user_id=$1 AND status='active'`, userID, at, actor, reason)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ActiveSubscriptions(ctx context.Context, userID string) ([]entitlements.Subscription, error) {
	rows, err := s.pg.Query(ctx, `SELECT id, user_id, status, product_id, current_period_end
		FROM `+s.subscriptionsTable()+` WHERE user_id=$1 AND status='active'`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entitlements.Subscription
	for rows.Next() {
		var sub entitlements.Subscription
		var product *string
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Status, &product, &sub.CurrentPeriodEnd); err != nil {
			return nil, err
		}
		sub.ProductID = deref(product)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) SuccessfulPayments(ctx context.Context, userID string) ([]entitlements.Payment, error) {
	rows, err := s.pg.Query(ctx, `SELECT id, user_id, status, created_at, amount, currency
		FROM `+s.paymentsTable()+` WHERE user_id=$1 AND status='successful'
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entitlements.Payment
	for rows.Next() {
		var p entitlements.Payment
		var currency *string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Status, &p.CreatedAt, &p.Amount, &currency); err != nil {
			return nil, err
		}
		p.Currency = deref(currency)
		out = append(out, p)
	}
	return out, rows.Err()
}
