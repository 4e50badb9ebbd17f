package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/repository"
)

const addressCols = `id, user_id, label, created_at`

var addressColumns = map[string]bool{
	repository.ColID:        true,
	repository.ColUserID:    true,
	repository.ColLabel:     true,
	repository.ColCreatedAt: true,
}

// JobAddressRepo implements JobAddressRepository using PostgreSQL.
type JobAddressRepo struct{ db *DB }

// NewJobAddressRepo constructs a job address repository.
func NewJobAddressRepo(db *DB) *JobAddressRepo { return &JobAddressRepo{db: db} }

func scanAddress(row pgx.Row) (*model.JobAddress, error) {
	var a model.JobAddress
	if err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// List selects addresses matching q.
func (r *JobAddressRepo) List(ctx context.Context, q repository.Query) ([]model.JobAddress, error) {
	sql, args, err := buildSelect(`SELECT `+addressCols+` FROM job_addresses`, q, addressColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.JobAddress{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Create inserts an address and returns the stored row.
func (r *JobAddressRepo) Create(ctx context.Context, a *model.JobAddress) (*model.JobAddress, error) {
	const q = `
INSERT INTO job_addresses (id, user_id, label)
VALUES ($1, $2, $3)
RETURNING ` + addressCols
	out, err := scanAddress(r.db.Pool.QueryRow(ctx, q, a.ID, a.UserID, a.Label))
	if err != nil {
		return nil, conflict(err)
	}
	return out, nil
}

// UpdateLabel changes an address label.
func (r *JobAddressRepo) UpdateLabel(ctx context.Context, id uuid.UUID, label string) (*model.JobAddress, error) {
	const q = `UPDATE job_addresses SET label=$2 WHERE id=$1 RETURNING ` + addressCols
	out, err := scanAddress(r.db.Pool.QueryRow(ctx, q, id, label))
	if err != nil {
		return nil, conflict(notFound(err))
	}
	return out, nil
}

// Delete removes an address.
func (r *JobAddressRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM job_addresses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
