package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-resume-bumper/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db   *pgxpool.Pool
	opts options
}

func ConnectPostgres(ctx context.Context, connString string, opts ...Option) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	// PgBouncer in transaction mode does not keep prepared statements.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{db: pool, opts: buildOptions(opts)}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------------- USER OPERATIONS ----------------

const userColumns = `user_id, access_token, first_name, last_name, email, conversation_state, created_at, updated_at`

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	row := s.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = $1", userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, userID int64) (*models.User, error) {
	now := s.opts.utcNow()
	query := `
		INSERT INTO users (user_id, conversation_state, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING ` + userColumns
	user, err := scanUser(s.db.QueryRow(ctx, query, userID, models.StateIdle, now))
	if err != nil {
		if isPgError(err, uniqueViolation) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetOrCreateUser inserts the user unless it exists, then reads it back.
// DO NOTHING returns no row when the user was already there.
func (s *PostgresStore) GetOrCreateUser(ctx context.Context, userID int64) (*models.User, bool, error) {
	now := s.opts.utcNow()
	query := `
		INSERT INTO users (user_id, conversation_state, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + userColumns
	user, err := scanUser(s.db.QueryRow(ctx, query, userID, models.StateIdle, now))
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to get or create user: %w", err)
	}

	user, err = s.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	now := s.opts.utcNow()
	query := `
		UPDATE users
		SET access_token = $2, first_name = $3, last_name = $4, email = $5,
		    conversation_state = $6, updated_at = $7
		WHERE user_id = $1`
	tag, err := s.db.Exec(ctx, query,
		user.UserID, user.AccessToken, user.FirstName, user.LastName, user.Email,
		user.ConversationState, now)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	user.UpdatedAt = now
	return nil
}

// ---------------- RESUME OPERATIONS ----------------

const resumeColumns = `resume_id, owner_id, title, status, access, next_publish_at, active, valid_until, owner_notified, created_at, updated_at`

func (s *PostgresStore) GetResume(ctx context.Context, resumeID string) (*models.Resume, error) {
	row := s.db.QueryRow(ctx, "SELECT "+resumeColumns+" FROM resumes WHERE resume_id = $1", resumeID)
	resume, err := scanResume(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resume: %w", err)
	}
	return resume, nil
}

// ActivateResume is a single INSERT ... ON CONFLICT so two activations of the
// same résumé cannot race into two rows. The window keeps the later end.
func (s *PostgresStore) ActivateResume(ctx context.Context, resume *models.Resume) (*models.Resume, error) {
	if err := validateResume(resume); err != nil {
		return nil, err
	}

	now := s.opts.utcNow()
	r := *resume
	r.Activate(now, s.opts.renewalPeriod)

	query := `
		INSERT INTO resumes (resume_id, owner_id, title, status, access, next_publish_at,
		                     active, valid_until, owner_notified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, FALSE, $8, $8)
		ON CONFLICT (resume_id)
		DO UPDATE SET owner_id = EXCLUDED.owner_id, title = EXCLUDED.title, status = EXCLUDED.status,
		              access = EXCLUDED.access, next_publish_at = EXCLUDED.next_publish_at,
		              active = TRUE, valid_until = GREATEST(resumes.valid_until, EXCLUDED.valid_until),
		              owner_notified = FALSE, updated_at = EXCLUDED.updated_at
		RETURNING ` + resumeColumns

	saved, err := scanResume(s.db.QueryRow(ctx, query,
		r.ResumeID, r.OwnerID, r.Title, r.Status, r.Access, r.NextPublishAt.UTC(), r.ValidUntil, now))
	if err != nil {
		return nil, fmt.Errorf("failed to activate resume: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) UpdateResume(ctx context.Context, resume *models.Resume) error {
	if err := validateResume(resume); err != nil {
		return err
	}

	now := s.opts.utcNow()
	query := `
		UPDATE resumes
		SET owner_id = $2, title = $3, status = $4, access = $5, next_publish_at = $6,
		    active = $7, valid_until = $8, owner_notified = $9, updated_at = $10
		WHERE resume_id = $1`
	tag, err := s.db.Exec(ctx, query,
		resume.ResumeID, resume.OwnerID, resume.Title, resume.Status, resume.Access,
		resume.NextPublishAt.UTC(), resume.Active, resume.ValidUntil.UTC(), resume.OwnerNotified, now)
	if err != nil {
		return fmt.Errorf("failed to update resume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	resume.UpdatedAt = now
	return nil
}

func (s *PostgresStore) DeactivateResume(ctx context.Context, resumeID string, ownerID int64) error {
	query := `UPDATE resumes SET active = FALSE, updated_at = $3 WHERE resume_id = $1 AND owner_id = $2`
	tag, err := s.db.Exec(ctx, query, resumeID, ownerID, s.opts.utcNow())
	if err != nil {
		return fmt.Errorf("failed to deactivate resume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RefreshResume(ctx context.Context, resume *models.Resume) error {
	if err := validateResume(resume); err != nil {
		return err
	}

	now := s.opts.utcNow()
	query := `
		UPDATE resumes
		SET title = $2, status = $3, access = $4, next_publish_at = $5, updated_at = $6
		WHERE resume_id = $1`
	tag, err := s.db.Exec(ctx, query,
		resume.ResumeID, resume.Title, resume.Status, resume.Access, resume.NextPublishAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("failed to refresh resume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	resume.UpdatedAt = now
	return nil
}

func (s *PostgresStore) MarkOwnerNotified(ctx context.Context, resumeID string, validUntil time.Time) (bool, error) {
	query := `
		UPDATE resumes SET owner_notified = TRUE, updated_at = $3
		WHERE resume_id = $1 AND valid_until = $2 AND active`
	tag, err := s.db.Exec(ctx, query, resumeID, validUntil.UTC(), s.opts.utcNow())
	if err != nil {
		return false, fmt.Errorf("failed to mark owner notified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListResumesByOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]models.Resume, error) {
	query := "SELECT " + resumeColumns + " FROM resumes WHERE owner_id = $1"
	args := []any{ownerID}
	if activeOnly {
		query += " AND active AND valid_until > $2"
		args = append(args, s.opts.utcNow())
	}
	query += " ORDER BY title, resume_id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resumes: %w", err)
	}
	defer rows.Close()

	resumes := make([]models.Resume, 0)
	for rows.Next() {
		r, err := scanResume(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resume: %w", err)
		}
		resumes = append(resumes, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resumes: %w", err)
	}
	return resumes, nil
}

func (s *PostgresStore) ListActiveResumesWithOwner(ctx context.Context) ([]models.ActiveResume, error) {
	query := `
		SELECT r.resume_id, r.owner_id, r.title, r.status, r.access, r.next_publish_at, r.active,
		       r.valid_until, r.owner_notified, r.created_at, r.updated_at, u.access_token
		FROM resumes r
		JOIN users u ON u.user_id = r.owner_id
		WHERE r.active AND r.valid_until > $1 AND u.access_token IS NOT NULL
		ORDER BY r.owner_id, r.resume_id`

	rows, err := s.db.Query(ctx, query, s.opts.utcNow())
	if err != nil {
		return nil, fmt.Errorf("failed to list active resumes: %w", err)
	}
	defer rows.Close()

	active := make([]models.ActiveResume, 0)
	for rows.Next() {
		var a models.ActiveResume
		err := rows.Scan(&a.ResumeID, &a.OwnerID, &a.Title, &a.Status, &a.Access, &a.NextPublishAt,
			&a.Active, &a.ValidUntil, &a.OwnerNotified, &a.CreatedAt, &a.UpdatedAt, &a.OwnerToken)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active resume: %w", err)
		}
		active = append(active, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active resumes: %w", err)
	}
	return active, nil
}

// ---------------- HELPERS ----------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.AccessToken, &u.FirstName, &u.LastName, &u.Email,
		&u.ConversationState, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanResume(row rowScanner) (*models.Resume, error) {
	var r models.Resume
	err := row.Scan(&r.ResumeID, &r.OwnerID, &r.Title, &r.Status, &r.Access, &r.NextPublishAt,
		&r.Active, &r.ValidUntil, &r.OwnerNotified, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
