package postgres

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/repository"
)

// buildSelect appends WHERE / ORDER BY / LIMIT clauses for q to base.
// Columns are checked against allowed before they are spliced into the statement.
func buildSelect(base string, q repository.Query, allowed map[string]bool) (string, []any, error) {
	if err := q.Validate(allowed); err != nil {
		return "", nil, err
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(base)
	for i, w := range q.Where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, w.Value)
		sb.WriteString(w.Column)
		sb.WriteString("=$")
		sb.WriteString(strconv.Itoa(len(args)))
	}
	for i, o := range q.OrderBy {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(o.Column)
		if o.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT $")
		sb.WriteString(strconv.Itoa(len(args)))
	}
	return sb.String(), args, nil
}

// notFound maps pgx.ErrNoRows to errs.ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	return err
}

// conflict maps unique violations to errs.ErrAlreadyExists.
func conflict(err error) error {
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}
