// Package database is the lifecycle store for users and their résumé
// activation windows. Two backends implement Store: PostgreSQL through pgx
// for production and SQLite through gorm for local runs and tests.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-resume-bumper/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicated entry")
)

// Store is the contract shared by the conversation handler and the renewal sweep.
type Store interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	CreateUser(ctx context.Context, userID int64) (*models.User, error)
	// GetOrCreateUser reports created=true when the user did not exist.
	GetOrCreateUser(ctx context.Context, userID int64) (user *models.User, created bool, err error)
	UpdateUser(ctx context.Context, user *models.User) error

	GetResume(ctx context.Context, resumeID string) (*models.Resume, error)
	// ActivateResume inserts or updates the résumé in one atomic statement and
	// opens a fresh activation window.
	ActivateResume(ctx context.Context, resume *models.Resume) (*models.Resume, error)
	UpdateResume(ctx context.Context, resume *models.Resume) error
	// DeactivateResume sets active=false on the owner's résumé and nothing else.
	DeactivateResume(ctx context.Context, resumeID string, ownerID int64) error
	// RefreshResume writes the board snapshot (title, status, access,
	// next_publish_at) and leaves the activation columns alone.
	RefreshResume(ctx context.Context, resume *models.Resume) error
	// MarkOwnerNotified sets owner_notified only while the window still ends at
	// validUntil. It reports false when a reactivation replaced the window.
	MarkOwnerNotified(ctx context.Context, resumeID string, validUntil time.Time) (bool, error)
	ListResumesByOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]models.Resume, error)
	ListActiveResumesWithOwner(ctx context.Context) ([]models.ActiveResume, error)

	Ping(ctx context.Context) error
	Close() error
}

type Option func(*options)

type options struct {
	now           func() time.Time
	renewalPeriod time.Duration
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithRenewalPeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.renewalPeriod = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, renewalPeriod: models.DefaultRenewalPeriod}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) utcNow() time.Time {
	return o.now().UTC()
}

// Open picks a backend from the URL scheme: postgres:// or postgresql://
// for PostgreSQL, sqlite:// for a SQLite file.
func Open(ctx context.Context, databaseURL string, opts ...Option) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return ConnectPostgres(ctx, databaseURL, opts...)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return OpenSQLite(strings.TrimPrefix(databaseURL, "sqlite://"), opts...)
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", databaseURL)
	}
}

func validateResume(r *models.Resume) error {
	if r.ResumeID == "" {
		return errors.New("resume id is required")
	}
	if r.OwnerID == 0 {
		return errors.New("resume owner is required")
	}
	return nil
}
