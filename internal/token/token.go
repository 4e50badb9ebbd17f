// Package token issues and verifies HS256 principal tokens.
//
// The same token is persisted by the session manager as the local principal record and
// presented to the reporting API as a bearer credential.
package token

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/sitetime/internal/model"
)

// ErrInvalid is returned for tokens that fail signature, method or time validation.
var ErrInvalid = errors.New("invalid token")

// Claims identify the principal.
type Claims struct {
	Username string `json:"usr"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the identity carried by a valid token.
type Principal struct {
	UserID    uuid.UUID
	Username  string
	Role      model.Role
	ExpiresAt time.Time
}

// Issuer signs and parses tokens with a shared key.
type Issuer struct {
	key    []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer. ttl is the token lifetime.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl, leeway: 30 * time.Second, now: time.Now}
}

// Issue creates a signed token for u.
func (i *Issuer) Issue(u model.User) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Username: u.Username,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.key)
	return signed, exp, err
}

// Parse verifies tok and returns the principal it names.
func (i *Issuer) Parse(tok string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	}, jwt.WithLeeway(i.leeway), jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalid
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Principal{}, ErrInvalid
	}
	p := Principal{UserID: id, Username: claims.Username, Role: model.Role(claims.Role)}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
