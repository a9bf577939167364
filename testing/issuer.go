// Package testing provides a mock token issuer for exercising prokit's HTTP
// surfaces without a real auth server.
//
//	issuer := testing.NewTestIssuer()
//	defer issuer.Close()
//	r := gin.New()
//	progin.Register(r, progin.Deps{Verifier: issuer.Verifier(), ...})
//	token := issuer.CreateToken("user-123", "test@example.com")
package testing

import (
	"context"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"time"

	jwtkit "github.com/PaulFidika/prokit/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
)

const testIssuerAudience = "prokit"

// TestIssuer signs tokens and serves the matching JWKS at /.well-known/jwks.json.
type TestIssuer struct {
	server   *httptest.Server
	signer   *jwtkit.RSASigner
	audience string
}

func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience(testIssuerAudience)
}

func NewTestIssuerWithAudience(audience string) *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, "test-key-1")
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}
	ti := &TestIssuer{signer: signer, audience: audience}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		jwtkit.ServeJWKS(w, r, jwtkit.JWKSFor(ti.signer))
	})
	ti.server = httptest.NewServer(mux)
	return ti
}

// URL is the issuer claim placed in every token.
func (ti *TestIssuer) URL() string { return ti.server.URL }

func (ti *TestIssuer) JWKSURL() string { return ti.server.URL + "/.well-known/jwks.json" }

func (ti *TestIssuer) Audience() string { return ti.audience }

func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// Verifier returns a verifier bound to this issuer's key, issuer and audience.
func (ti *TestIssuer) Verifier() *jwtkit.Verifier {
	set, err := jwtkit.StaticKeySet(map[string]*rsa.PublicKey{ti.signer.KID(): ti.signer.PublicKey()})
	if err != nil {
		panic("failed to build key set: " + err.Error())
	}
	return jwtkit.NewVerifier(set, ti.URL(), ti.audience, 0)
}

func (ti *TestIssuer) CreateToken(userID, email string) string {
	return ti.sign(jwtkit.AccessClaims(ti.URL(), ti.audience, userID, email, nil, time.Hour))
}

func (ti *TestIssuer) CreateTokenWithRoles(userID, email string, roles []string) string {
	return ti.sign(jwtkit.AccessClaims(ti.URL(), ti.audience, userID, email, roles, time.Hour))
}

// CreateExpiredToken returns a token that expired an hour ago.
func (ti *TestIssuer) CreateExpiredToken(userID, email string) string {
	c := jwtkit.AccessClaims(ti.URL(), ti.audience, userID, email, nil, time.Hour)
	c["exp"] = time.Now().Add(-time.Hour).Unix()
	return ti.sign(c)
}

func (ti *TestIssuer) sign(claims jwt.MapClaims) string {
	token, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}
