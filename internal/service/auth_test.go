package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/sitetime/internal/crypto"
	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/limiter"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/repository"
	"github.com/and161185/sitetime/internal/token"
)

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]*model.User

	createErr error
	getErr    error
	listErr   error

	listCalls  int
	getIDCalls int

	// listing blocks on release when set and signals started first.
	started chan struct{}
	release chan struct{}
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) List(_ context.Context, _ repository.Query) ([]model.User, error) {
	if f.release != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.User, 0, len(f.byName))
	for _, u := range f.byName {
		out = append(out, *u)
	}
	return out, nil
}
func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getIDCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func mustUser(t *testing.T, name, password string, role model.Role) *model.User {
	t.Helper()
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &model.User{
		ID:           uuid.Must(uuid.NewV4()),
		Username:     name,
		DisplayName:  name,
		Role:         role,
		PasswordHash: hash,
	}
}

func TestAuth_Register_Basics(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, token.NewIssuer([]byte("k"), time.Minute), &fakeLimiter{})
	ctx := context.Background()

	if _, err := s.Register(ctx, "", "", "", ""); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("want ErrInvalid on empty username/password, got %v", err)
	}
	if _, err := s.Register(ctx, "x", "", "p", "root"); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("want ErrInvalid on unknown role, got %v", err)
	}

	u, err := s.Register(ctx, " alice ", "", "pwd", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == uuid.Nil || u.Username != "alice" || u.DisplayName != "alice" || u.Role != model.RoleUser {
		t.Fatalf("bad registered user: %+v", u)
	}
	if !pkgcrypto.VerifyPassword("pwd", u.PasswordHash) {
		t.Fatalf("stored hash does not verify")
	}

	if _, err := s.Register(ctx, "alice", "", "pwd2", model.RoleUser); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate username, got %v", err)
	}

	users.createErr = errors.New("boom")
	if _, err := s.Register(ctx, "bob", "Bob", "pwd", model.RoleAdmin); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_Login_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	u := mustUser(t, "alice", "correct", model.RoleAdmin)
	users := &fakeUsers{byName: map[string]*model.User{"alice": u}}
	lim := &fakeLimiter{allowOK: true}
	iss := token.NewIssuer([]byte("secret"), 2*time.Minute)
	s := NewAuthService(users, iss, lim)
	ctx := context.Background()

	lim.allowErr = errors.New("lim-err")
	if _, _, err := s.Login(ctx, "alice", "correct", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, _, err := s.Login(ctx, "alice", "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, _, err := s.Login(ctx, "nope", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}

	lim.failBlocked = true
	if _, _, err := s.Login(ctx, "alice", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}

	lim.failBlocked = false
	if _, _, err := s.Login(ctx, "alice", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	tok, gotUser, err := s.Login(ctx, "alice", "correct", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("Login success: %v", err)
	}
	if tok.AccessToken == "" || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad token: %+v", tok)
	}
	if gotUser.ID != u.ID || !gotUser.IsAdmin() {
		t.Fatalf("bad user returned: %+v", gotUser)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}

	p, err := iss.Parse(tok.AccessToken)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if p.UserID != u.ID || p.Role != model.RoleAdmin || p.Username != "alice" {
		t.Fatalf("bad principal: %+v", p)
	}
}

func TestAuth_NilLimiterMeansUnlimited(t *testing.T) {
	t.Parallel()

	u := mustUser(t, "bob", "p", model.RoleUser)
	users := &fakeUsers{byName: map[string]*model.User{"bob": u}}
	s := NewAuthService(users, token.NewIssuer([]byte("k"), time.Second), nil)

	for i := 0; i < 3; i++ {
		if _, err := s.Authenticate(context.Background(), "bob", "bad", ""); !errors.Is(err, errs.ErrUnauthorized) {
			t.Fatalf("attempt %d: want ErrUnauthorized, got %v", i, err)
		}
	}
	got, err := s.Authenticate(context.Background(), "bob", "p", "")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("wrong user: %+v", got)
	}
}
