package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/repository"
)

func TestBuildSelect(t *testing.T) {
	t.Parallel()

	allowed := map[string]bool{"user_id": true, "date": true, "start_time": true}

	sql, args, err := buildSelect("SELECT * FROM t", repository.Query{}, allowed)
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM t", sql)
	require.Empty(t, args)

	q := repository.Query{}.Filter("user_id", "u").Filter("date", "d").
		Sort("date", true).Sort("start_time", false).Take(25)
	sql, args, err = buildSelect("SELECT * FROM t", q, allowed)
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM t WHERE user_id=$1 AND date=$2 ORDER BY date DESC, start_time ASC LIMIT $3", sql)
	require.Equal(t, []any{"u", "d", 25}, args)

	_, _, err = buildSelect("SELECT * FROM t", repository.Query{}.Sort("evil", false), allowed)
	require.Error(t, err)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, notFound(pgx.ErrNoRows), errs.ErrNotFound)
	boom := errors.New("boom")
	require.Equal(t, boom, notFound(boom))
	require.ErrorIs(t, conflict(&pgconn.PgError{Code: "23505"}), errs.ErrAlreadyExists)
	require.Equal(t, boom, conflict(boom))
	require.NoError(t, conflict(nil))
}
