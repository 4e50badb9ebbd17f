package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sitetime/internal/model"
)

// Column names shared by the query API and the backends.
const (
	ColID         = "id"
	ColUserID     = "user_id"
	ColUsername   = "username"
	ColDate       = "date"
	ColStartTime  = "start_time"
	ColName       = "name"
	ColLabel      = "label"
	ColCreatedAt  = "created_at"
	ColDivision   = "csi_division"
	ColJobAddress = "job_address"
)

// UserRepository provides access to the users table.
type UserRepository interface {
	// List returns users matching q.
	List(ctx context.Context, q Query) ([]model.User, error)
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
}

// TimeEntryRepository provides access to the time_entries table.
type TimeEntryRepository interface {
	List(ctx context.Context, q Query) ([]model.TimeEntry, error)
	// Create inserts e and returns the stored row.
	Create(ctx context.Context, e *model.TimeEntry) (*model.TimeEntry, error)
	// Update applies p to the entry with id and returns the stored row.
	Update(ctx context.Context, id uuid.UUID, p model.TimeEntryPatch) (*model.TimeEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobAddressRepository provides access to the job_addresses table.
type JobAddressRepository interface {
	List(ctx context.Context, q Query) ([]model.JobAddress, error)
	Create(ctx context.Context, a *model.JobAddress) (*model.JobAddress, error)
	UpdateLabel(ctx context.Context, id uuid.UUID, label string) (*model.JobAddress, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TaskRepository provides access to the csi_tasks catalog.
type TaskRepository interface {
	List(ctx context.Context, q Query) ([]model.CSITask, error)
	Create(ctx context.Context, t *model.CSITask) (*model.CSITask, error)
	// Rename changes the catalog row only; entries keep the old division string.
	Rename(ctx context.Context, id uuid.UUID, name string) (*model.CSITask, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Stores bundles the repositories the data service reads and writes.
type Stores struct {
	Users        UserRepository
	Entries      TimeEntryRepository
	JobAddresses JobAddressRepository
	Tasks        TaskRepository
}
