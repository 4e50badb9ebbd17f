package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/repository"
)

const entryCols = `id, user_id, start_time, end_time, duration, job_address, csi_division, notes, date, is_manual, created_at`

var entryColumns = map[string]bool{
	repository.ColID:         true,
	repository.ColUserID:     true,
	repository.ColDate:       true,
	repository.ColStartTime:  true,
	repository.ColCreatedAt:  true,
	repository.ColDivision:   true,
	repository.ColJobAddress: true,
}

// TimeEntryRepo implements TimeEntryRepository using PostgreSQL.
type TimeEntryRepo struct{ db *DB }

// NewTimeEntryRepo constructs a time entry repository.
func NewTimeEntryRepo(db *DB) *TimeEntryRepo { return &TimeEntryRepo{db: db} }

func scanEntry(row pgx.Row) (*model.TimeEntry, error) {
	var e model.TimeEntry
	err := row.Scan(&e.ID, &e.UserID, &e.StartTime, &e.EndTime, &e.Duration,
		&e.JobAddress, &e.CSIDivision, &e.Notes, &e.Date, &e.Manual, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List selects entries matching q.
func (r *TimeEntryRepo) List(ctx context.Context, q repository.Query) ([]model.TimeEntry, error) {
	sql, args, err := buildSelect(`SELECT `+entryCols+` FROM time_entries`, q, entryColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Create inserts an entry and returns the stored row.
func (r *TimeEntryRepo) Create(ctx context.Context, e *model.TimeEntry) (*model.TimeEntry, error) {
	const q = `
INSERT INTO time_entries (id, user_id, start_time, end_time, duration, job_address, csi_division, notes, date, is_manual)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + entryCols
	row := r.db.Pool.QueryRow(ctx, q, e.ID, e.UserID, e.StartTime, e.EndTime, e.Duration,
		e.JobAddress, e.CSIDivision, e.Notes, e.Date, e.Manual)
	out, err := scanEntry(row)
	if err != nil {
		return nil, conflict(err)
	}
	return out, nil
}

// Update applies the non-nil patch fields and returns the stored row.
func (r *TimeEntryRepo) Update(ctx context.Context, id uuid.UUID, p model.TimeEntryPatch) (*model.TimeEntry, error) {
	if p.Empty() {
		return nil, errs.ErrInvalid
	}
	var (
		sets []string
		args = []any{id}
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+"=$"+strconv.Itoa(len(args)))
	}
	if p.StartTime != nil {
		set("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		set("end_time", *p.EndTime)
	}
	if p.Duration != nil {
		set("duration", *p.Duration)
	}
	if p.JobAddress != nil {
		set("job_address", *p.JobAddress)
	}
	if p.CSIDivision != nil {
		set("csi_division", *p.CSIDivision)
	}
	if p.Notes != nil {
		set("notes", *p.Notes)
	}
	if p.Date != nil {
		set("date", *p.Date)
	}

	q := `UPDATE time_entries SET ` + strings.Join(sets, ", ") + ` WHERE id=$1 RETURNING ` + entryCols
	out, err := scanEntry(r.db.Pool.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

// Delete removes an entry.
func (r *TimeEntryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM time_entries WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
