package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/kv"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/repository"
	"github.com/and161185/sitetime/internal/token"
)

// PrincipalKey is the local store key holding the signed principal record.
const PrincipalKey = "session.principal"

// SessionManager owns the signed-in principal of a local process.
// The principal is persisted as a signed token so a later process can restore it.
type SessionManager struct {
	auth   AuthService
	users  repository.UserRepository
	store  kv.Store
	issuer *token.Issuer
	origin string
	log    *zap.Logger

	mu      sync.Mutex
	current *model.User
}

// NewSessionManager constructs a SessionManager. origin identifies this client to the login limiter.
func NewSessionManager(auth AuthService, users repository.UserRepository, store kv.Store, issuer *token.Issuer, origin string, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{auth: auth, users: users, store: store, issuer: issuer, origin: origin, log: log}
}

// Current returns the held principal.
func (m *SessionManager) Current() (*model.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	u := *m.current
	return &u, true
}

// RestoreSession returns the held principal or rebuilds it from the persisted record.
// The record is revalidated against the users table; an unusable record is cleared and
// reported as no session.
func (m *SessionManager) RestoreSession(ctx context.Context) (*model.User, bool) {
	if u, ok := m.Current(); ok {
		return u, true
	}

	raw, ok, err := m.store.Get(ctx, PrincipalKey)
	if err != nil {
		m.log.Warn("read persisted session", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	p, err := m.issuer.Parse(raw)
	if err != nil {
		m.log.Info("discarding persisted session", zap.Error(err))
		m.clearRecord(ctx)
		return nil, false
	}

	u, err := m.users.GetByID(ctx, p.UserID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			m.log.Warn("revalidate session", zap.String("user_id", p.UserID.String()), zap.Error(err))
		}
		m.clearRecord(ctx)
		return nil, false
	}

	m.mu.Lock()
	m.current = u
	m.mu.Unlock()
	c := *u
	return &c, true
}

// SignIn verifies credentials, persists a fresh principal record and adopts it.
// On failure the previous principal, if any, is kept.
func (m *SessionManager) SignIn(ctx context.Context, username, password string) (*model.User, error) {
	u, err := m.auth.Authenticate(ctx, username, password, m.origin)
	if err != nil {
		return nil, err
	}
	tok, err := m.auth.IssueToken(u)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, PrincipalKey, tok.AccessToken); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = &u
	m.mu.Unlock()
	c := u
	return &c, nil
}

// SignOut forgets the principal. The in-memory principal is dropped even when
// removing the persisted record fails.
func (m *SessionManager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return m.store.Remove(ctx, PrincipalKey)
}

func (m *SessionManager) clearRecord(ctx context.Context) {
	if err := m.store.Remove(ctx, PrincipalKey); err != nil {
		m.log.Warn("clear persisted session", zap.Error(err))
	}
}
