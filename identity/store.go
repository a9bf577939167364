package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when a lookup matches no user.
var ErrUserNotFound = errors.New("identity: user not found")

type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Image         *string   `json:"image"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store provides user lookups for the admin surfaces against the users table.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) usersTable() string { return s.schema + ".users" }

const userColumns = `id, name, email, image, email_verified, created_at, updated_at`

// searchPattern turns free text into a lower-cased LIKE pattern. Empty means no filter.
func searchPattern(search string) string {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// List returns users newest first, optionally filtered by a case-insensitive
// substring of name or email.
func (s *Store) List(ctx context.Context, search string, limit, offset int) ([]User, error) {
	if s.pg == nil {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}
	var (
		rows pgx.Rows
		err  error
	)
	if p := searchPattern(search); p != "" {
		rows, err = s.pg.Query(ctx, `SELECT `+userColumns+` FROM `+s.usersTable()+`
			WHERE lower(name) LIKE $1 OR lower(email) LIKE $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, p, limit, offset)
	} else {
		rows, err = s.pg.Query(ctx, `SELECT `+userColumns+` FROM `+s.usersTable()+`
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Count returns how many users match search (all users when empty).
func (s *Store) Count(ctx context.Context, search string) (int, error) {
	if s.pg == nil {
		return 0, nil
	}
	var n int
	var err error
	if p := searchPattern(search); p != "" {
		err = s.pg.QueryRow(ctx, `SELECT count(*) FROM `+s.usersTable()+` WHERE lower(name) LIKE $1 OR lower(email) LIKE $1`, p).Scan(&n)
	} else {
		err = s.pg.QueryRow(ctx, `SELECT count(*) FROM `+s.usersTable()).Scan(&n)
	}
	return n, err
}

// GetByEmail matches the address case-insensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(email)
	if s.pg == nil || email == "" {
		return nil, ErrUserNotFound
	}
	row := s.pg.QueryRow(ctx, `SELECT `+userColumns+` FROM `+s.usersTable()+` WHERE lower(email)=lower($1) LIMIT 1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
