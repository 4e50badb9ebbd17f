// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the access level of a user.
type Role string

// Known roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// User represents an account stored in the remote store. The password is never stored in plaintext.
type User struct {
	ID           uuid.UUID // PK
	Username     string    // unique
	DisplayName  string
	Role         Role
	PasswordHash string // encoded argon2id, see internal/crypto
	CreatedAt    time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// TimeEntry is a single logged block of work.
type TimeEntry struct {
	ID          uuid.UUID
	UserID      uuid.UUID // FK -> users.id
	StartTime   time.Time
	EndTime     *time.Time // nil while a timer is still running
	Duration    *int64     // seconds; nil means absent and counts as 0
	JobAddress  string
	CSIDivision string // task name, denormalized from csi_tasks.name
	Notes       string
	Date        *time.Time // calendar date; only Y/M/D are meaningful
	Manual      bool       // entered by hand instead of by the timer
	CreatedAt   time.Time
}

// DurationSeconds returns the stored duration, treating an absent value as zero.
func (e TimeEntry) DurationSeconds() int64 {
	if e.Duration == nil {
		return 0
	}
	return *e.Duration
}

// TimeEntryPatch carries the editable fields of a time entry. Nil fields are left untouched.
type TimeEntryPatch struct {
	StartTime   *time.Time
	EndTime     *time.Time
	Duration    *int64
	JobAddress  *string
	CSIDivision *string
	Notes       *string
	Date        *time.Time
}

// Empty reports whether the patch changes nothing.
func (p TimeEntryPatch) Empty() bool {
	return p.StartTime == nil && p.EndTime == nil && p.Duration == nil && p.JobAddress == nil &&
		p.CSIDivision == nil && p.Notes == nil && p.Date == nil
}

// JobAddress is a per-user job site label.
type JobAddress struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Label     string
	CreatedAt time.Time
}

// CSITask is a task/division catalog entry.
type CSITask struct {
	ID        uuid.UUID
	Name      string // unique
	CreatedAt time.Time
}

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}
