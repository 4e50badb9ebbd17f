package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/sitetime/internal/errs"
	"github.com/and161185/sitetime/internal/model"
	"github.com/and161185/sitetime/internal/repository"
)

const taskCols = `id, name, created_at`

var taskColumns = map[string]bool{
	repository.ColID:        true,
	repository.ColName:      true,
	repository.ColCreatedAt: true,
}

// TaskRepo implements TaskRepository using PostgreSQL.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a task catalog repository.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

func scanTask(row pgx.Row) (*model.CSITask, error) {
	var t model.CSITask
	if err := row.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// List selects catalog tasks matching q.
func (r *TaskRepo) List(ctx context.Context, q repository.Query) ([]model.CSITask, error) {
	sql, args, err := buildSelect(`SELECT `+taskCols+` FROM csi_tasks`, q, taskColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CSITask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Create inserts a catalog task.
func (r *TaskRepo) Create(ctx context.Context, t *model.CSITask) (*model.CSITask, error) {
	const q = `INSERT INTO csi_tasks (id, name) VALUES ($1, $2) RETURNING ` + taskCols
	out, err := scanTask(r.db.Pool.QueryRow(ctx, q, t.ID, t.Name))
	if err != nil {
		return nil, conflict(err)
	}
	return out, nil
}

// Rename updates the catalog row only. time_entries.csi_division keeps the old name.
func (r *TaskRepo) Rename(ctx context.Context, id uuid.UUID, name string) (*model.CSITask, error) {
	const q = `UPDATE csi_tasks SET name=$2 WHERE id=$1 RETURNING ` + taskCols
	out, err := scanTask(r.db.Pool.QueryRow(ctx, q, id, name))
	if err != nil {
		return nil, conflict(notFound(err))
	}
	return out, nil
}

// Delete removes a catalog task.
func (r *TaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM csi_tasks WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
