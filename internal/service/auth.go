// Package service contains the application services: authentication, sessions and the data façade.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/sitetime/internal/crypto"
	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/limiter"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/repository"
	"github.com/and161185/sitetime/internal/token"
)

// AuthService defines account and credential operations.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, username, displayName, password string, role model.Role) (model.User, error)
	// Authenticate applies rate-limiting and verifies the user's password.
	Authenticate(ctx context.Context, username, password, origin string) (model.User, error)
	// IssueToken signs an access token for u.
	IssueToken(u model.User) (model.Tokens, error)
	// Login authenticates and issues an access token.
	Login(ctx context.Context, username, password, origin string) (model.Tokens, model.User, error)
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	issuer *token.Issuer
	lim    limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, issuer *token.Issuer, lim limiter.Limiter) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Unlimited{}
	}
	return &AuthServiceImpl{users: users, issuer: issuer, lim: lim}
}

// Register creates a new user record.
func (s *AuthServiceImpl) Register(ctx context.Context, username, displayName, password string, role model.Role) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.User{}, fmt.Errorf("%w: empty username/password", errs.ErrInvalid)
	}
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return model.User{}, fmt.Errorf("%w: unknown role %q", errs.ErrInvalid, role)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, err
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = username
	}

	u := model.User{
		ID:           uid,
		Username:     username,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Authenticate verifies credentials with rate limiting by (username, origin).
func (s *AuthServiceImpl) Authenticate(ctx context.Context, username, password, origin string) (model.User, error) {
	originHash := limiter.HashOrigin(origin)

	allowed, _, err := s.lim.Allow(ctx, username, originHash)
	if err != nil {
		return model.User{}, err
	}
	if !allowed {
		return model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword(password, u.PasswordHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, originHash); ferr == nil && blocked {
			return model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same to the caller
		return model.User{}, errs.ErrUnauthorized
	}

	// best-effort reset
	_ = s.lim.Success(ctx, username, originHash)
	return *u, nil
}

// Login authenticates and issues a signed access token.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, origin string) (model.Tokens, model.User, error) {
	u, err := s.Authenticate(ctx, username, password, origin)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	tok, err := s.IssueToken(u)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, u, nil
}

// IssueToken signs an access token for u.
func (s *AuthServiceImpl) IssueToken(u model.User) (model.Tokens, error) {
	access, exp, err := s.issuer.Issue(u)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}
