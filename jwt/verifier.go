package jwtkit

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	jwxt "github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the caller identity carried by an access token.
type Claims struct {
	UserID string
	Email  string
	Roles  []string
}

// Verifier checks access tokens issued by the upstream auth service.
type Verifier struct {
	keys     jwk.Set
	issuer   string
	audience string
	skew     time.Duration
}

// NewVerifier verifies against a fixed key set. Empty issuer or audience
// disables that check.
func NewVerifier(keys jwk.Set, issuer, audience string, skew time.Duration) *Verifier {
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &Verifier{keys: keys, issuer: issuer, audience: audience, skew: skew}
}

// NewRemoteVerifier fetches the issuer's JWKS and keeps it refreshed in the
// background for the lifetime of ctx.
func NewRemoteVerifier(ctx context.Context, jwksURL, issuer, audience string, refresh time.Duration) (*Verifier, error) {
	if strings.TrimSpace(jwksURL) == "" {
		return nil, errors.New("jwks url required")
	}
	if refresh <= 0 {
		refresh = 15 * time.Minute
	}
	c := jwk.NewCache(ctx)
	if err := c.Register(jwksURL, jwk.WithMinRefreshInterval(refresh)); err != nil {
		return nil, fmt.Errorf("register jwks: %w", err)
	}
	if _, err := c.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetch jwks %s: %w", jwksURL, err)
	}
	return NewVerifier(jwk.NewCachedSet(c, jwksURL), issuer, audience, 0), nil
}

// StaticKeySet builds a jwk.Set from RSA public keys keyed by kid.
func StaticKeySet(pubs map[string]*rsa.PublicKey) (jwk.Set, error) {
	set := jwk.NewSet()
	for kid, pub := range pubs {
		k, err := jwk.FromRaw(pub)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", kid, err)
		}
		_ = k.Set(jwk.KeyIDKey, kid)
		_ = k.Set(jwk.AlgorithmKey, jwa.RS256)
		_ = k.Set(jwk.KeyUsageKey, "sig")
		if err := set.AddKey(k); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Verify validates signature, expiry, issuer and audience and extracts Claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (Claims, error) {
	if v == nil || v.keys == nil {
		return Claims{}, errors.New("jwt: missing key set")
	}
	opts := []jwxt.ParseOption{
		jwxt.WithKeySet(v.keys),
		jwxt.WithValidate(true),
		jwxt.WithAcceptableSkew(v.skew),
		jwxt.WithContext(ctx),
	}
	if v.issuer != "" {
		opts = append(opts, jwxt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwxt.WithAudience(v.audience))
	}
	tok, err := jwxt.ParseString(raw, opts...)
	if err != nil {
		return Claims{}, err
	}
	c := Claims{UserID: tok.Subject()}
	if c.UserID == "" {
		return Claims{}, errors.New("jwt: missing subject")
	}
	if raw, ok := tok.Get("email"); ok {
		if s, ok := raw.(string); ok {
			c.Email = s
		}
	}
	if raw, ok := tok.Get("roles"); ok {
		switch rs := raw.(type) {
		case []interface{}:
			for _, r := range rs {
				if s, ok := r.(string); ok && s != "" {
					c.Roles = append(c.Roles, s)
				}
			}
		case []string:
			c.Roles = append(c.Roles, rs...)
		}
	}
	return c, nil
}
