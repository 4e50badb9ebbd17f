package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"
)

// Querier is the part of a pgx pool the limiter uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG is a PostgreSQL-backed limiter with a sliding failure window and lockout.
// Timestamps come from the injected clock, never from the database.
type PG struct {
	db       Querier
	clock    clockwork.Clock
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

// Option configures PG.
type Option func(*PG)

// WithClock replaces the wall clock.
func WithClock(c clockwork.Clock) Option { return func(l *PG) { l.clock = c } }

// NewPG constructs a PostgreSQL-backed limiter. Failures older than window restart the count;
// maxFails failures inside the window block the pair for blockFor.
func NewPG(db Querier, window time.Duration, maxFails int, blockFor time.Duration, opts ...Option) *PG {
	l := &PG{db: db, clock: clockwork.NewRealClock(), window: window, maxFails: maxFails, blockFor: blockFor}
	for _, o := range opts {
		o(l)
	}
	return l
}

// HashOrigin returns a stable hash of the sign-in origin (peer address or host name)
// so raw addresses are never stored.
func HashOrigin(origin string) []byte {
	h := sha256.Sum256([]byte(origin))
	return h[:]
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, username string, originHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE username=$1 AND origin_hash=$2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, username, originHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if now := l.clock.Now(); blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (username, origin).
func (l *PG) Success(ctx context.Context, username string, originHash []byte) error {
	const q = `
INSERT INTO auth_limiter (username, origin_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',$3)
ON CONFLICT (username, origin_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=$3`
	_, err := l.db.Exec(ctx, q, username, originHash, l.clock.Now())
	return err
}

// Failure records a failed attempt and blocks the pair once maxFails land inside the window.
func (l *PG) Failure(ctx context.Context, username string, originHash []byte) (bool, time.Duration, error) {
	now := l.clock.Now()

	const q = `
INSERT INTO auth_limiter (username, origin_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',$4)
ON CONFLICT (username, origin_hash) DO UPDATE
SET
  fail_count = CASE WHEN $4::timestamptz - auth_limiter.updated_at > $3::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
  updated_at = $4
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRow(ctx, q, username, originHash, l.window, now).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE auth_limiter SET blocked_until=$3 WHERE username=$1 AND origin_hash=$2`
	if _, err := l.db.Exec(ctx, upd, username, originHash, now.Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
