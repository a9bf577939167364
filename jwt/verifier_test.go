package jwtkit_test

import (
	"context"
	"testing"
	"time"

	jwtkit "github.com/PaulFidika/prokit/jwt"
	authtest "github.com/PaulFidika/prokit/testing"
)

func TestVerifier_AcceptsIssuedToken(t *testing.T) {
	iss := authtest.NewTestIssuer()
	defer iss.Close()

	tok := iss.CreateTokenWithRoles("user-1", "ada@x.io", []string{"admin", "beta"})
	cl, err := iss.Verifier().Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if cl.UserID != "user-1" || cl.Email != "ada@x.io" {
		t.Fatalf("unexpected claims %+v", cl)
	}
	if len(cl.Roles) != 2 || cl.Roles[0] != "admin" {
		t.Fatalf("unexpected roles %v", cl.Roles)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	iss := authtest.NewTestIssuer()
	defer iss.Close()
	other := authtest.NewTestIssuerWithAudience("someone-else")
	defer other.Close()
	v := iss.Verifier()
	ctx := context.Background()

	if _, err := v.Verify(ctx, iss.CreateExpiredToken("u", "u@x.io")); err == nil {
		t.Fatalf("expected expired token to fail")
	}
	if _, err := v.Verify(ctx, other.CreateToken("u", "u@x.io")); err == nil {
		t.Fatalf("expected token from another key to fail")
	}
	if _, err := v.Verify(ctx, "not-a-jwt"); err == nil {
		t.Fatalf("expected garbage to fail")
	}
}

func TestRemoteVerifier_FetchesJWKS(t *testing.T) {
	iss := authtest.NewTestIssuer()
	defer iss.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := jwtkit.NewRemoteVerifier(ctx, iss.JWKSURL(), iss.URL(), iss.Audience(), time.Minute)
	if err != nil {
		t.Fatalf("remote verifier: %v", err)
	}
	if _, err := v.Verify(ctx, iss.CreateToken("u-9", "nine@x.io")); err != nil {
		t.Fatalf("verify via jwks: %v", err)
	}
	if _, err := jwtkit.NewRemoteVerifier(ctx, "", "", "", 0); err == nil {
		t.Fatalf("expected empty url to fail")
	}
}
