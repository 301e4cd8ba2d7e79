// Package auth resolves connection credentials into player identities.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/match"
)

// ErrUnauthorized is returned for any credential that does not resolve to a player.
var ErrUnauthorized = eris.New("unauthorized")

const signingMethod = "HS256"

// Claims carried by a player session token. The subject is the player id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Resolver validates HMAC-signed session tokens.
type Resolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewResolver(secret, issuer string) (*Resolver, error) {
	if secret == "" {
		return nil, eris.New("jwt secret cannot be empty")
	}
	return &Resolver{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// ResolveIdentity returns the player the token was issued to.
func (r *Resolver) ResolveIdentity(token string) (match.Identity, error) {
	if token == "" {
		return match.Identity{}, eris.Wrap(ErrUnauthorized, "missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return match.Identity{}, eris.Wrap(ErrUnauthorized, describe(err))
	}
	if claims.Subject == "" {
		return match.Identity{}, eris.Wrap(ErrUnauthorized, "token has no subject")
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return match.Identity{ID: claims.Subject, DisplayName: name}, nil
}

// Issue signs a token for a player. It is used by tests and local tooling.
func (r *Resolver) Issue(player match.Identity, ttl time.Duration) (string, error) {
	now := r.now()
	claims := Claims{
		Name: player.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   player.ID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", eris.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "invalid issuer"
	default:
		return "invalid token"
	}
}
