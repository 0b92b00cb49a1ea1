package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-resume-bumper/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id            INTEGER PRIMARY KEY,
		access_token       TEXT,
		first_name         TEXT,
		last_name          TEXT,
		email              TEXT,
		conversation_state TEXT NOT NULL DEFAULT 'idle'
			CHECK (conversation_state IN ('idle', 'awaiting_token')),
		created_at         DATETIME NOT NULL,
		updated_at         DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS resumes (
		resume_id       TEXT PRIMARY KEY,
		owner_id        INTEGER NOT NULL REFERENCES users (user_id) ON DELETE CASCADE,
		title           TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT '',
		access          TEXT NOT NULL DEFAULT '',
		next_publish_at DATETIME NOT NULL,
		active          BOOLEAN NOT NULL DEFAULT 0,
		valid_until     DATETIME NOT NULL,
		owner_notified  BOOLEAN NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL,
		updated_at      DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS resumes_owner_idx ON resumes (owner_id)`,
}

type userRecord struct {
	UserID            int64   `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	AccessToken       *string `gorm:"column:access_token"`
	FirstName         *string `gorm:"column:first_name"`
	LastName          *string `gorm:"column:last_name"`
	Email             *string `gorm:"column:email"`
	ConversationState string  `gorm:"column:conversation_state"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (userRecord) TableName() string { return "users" }

type resumeRecord struct {
	ResumeID      string `gorm:"column:resume_id;primaryKey"`
	OwnerID       int64  `gorm:"column:owner_id"`
	Title         string `gorm:"column:title"`
	Status        string `gorm:"column:status"`
	Access        string `gorm:"column:access"`
	NextPublishAt time.Time
	Active        bool `gorm:"column:active"`
	ValidUntil    time.Time
	OwnerNotified bool `gorm:"column:owner_notified"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (resumeRecord) TableName() string { return "resumes" }

type activeResumeRecord struct {
	Resume     resumeRecord `gorm:"embedded"`
	OwnerToken string       `gorm:"column:owner_token"`
}

// SQLiteStore keeps the lifecycle data in a single SQLite file.
type SQLiteStore struct {
	db   *gorm.DB
	opts options
}

func OpenSQLite(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	o := buildOptions(opts)
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", dbPath)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:        o.utcNow,
		TranslateError: true,
		Logger: gormlogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if err := database.Exec(stmt).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}

	return &SQLiteStore{db: database, opts: o}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return rec.toModel(), nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, userID int64) (*models.User, error) {
	rec := userRecord{UserID: userID, ConversationState: string(models.StateIdle)}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return rec.toModel(), nil
}

func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, userID int64) (*models.User, bool, error) {
	rec := userRecord{UserID: userID, ConversationState: string(models.StateIdle)}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if result.Error != nil {
		return nil, false, fmt.Errorf("get or create user: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return rec.toModel(), true, nil
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	now := s.opts.utcNow()
	result := s.db.WithContext(ctx).Model(&userRecord{}).
		Where("user_id = ?", user.UserID).
		Updates(map[string]any{
			"access_token":       user.AccessToken,
			"first_name":         user.FirstName,
			"last_name":          user.LastName,
			"email":              user.Email,
			"conversation_state": string(user.ConversationState),
			"updated_at":         now,
		})
	if result.Error != nil {
		return fmt.Errorf("update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	user.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetResume(ctx context.Context, resumeID string) (*models.Resume, error) {
	var rec resumeRecord
	if err := s.db.WithContext(ctx).First(&rec, "resume_id = ?", resumeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get resume: %w", err)
	}
	return rec.toModel(), nil
}

// ActivateResume upserts with one INSERT ... ON CONFLICT DO UPDATE and reads
// the row back inside the same transaction.
func (s *SQLiteStore) ActivateResume(ctx context.Context, resume *models.Resume) (*models.Resume, error) {
	if err := validateResume(resume); err != nil {
		return nil, err
	}

	now := s.opts.utcNow()
	r := *resume
	r.Activate(now, s.opts.renewalPeriod)
	rec := resumeRecordFrom(&r)
	rec.CreatedAt = now
	rec.UpdatedAt = now

	upsert := clause.OnConflict{
		Columns: []clause.Column{{Name: "resume_id"}},
		DoUpdates: append(
			clause.AssignmentColumns([]string{
				"owner_id", "title", "status", "access", "next_publish_at",
				"active", "owner_notified", "updated_at",
			}),
			clause.Assignment{
				Column: clause.Column{Name: "valid_until"},
				Value:  gorm.Expr("MAX(resumes.valid_until, excluded.valid_until)"),
			},
		),
	}

	var saved resumeRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(upsert).Create(&rec).Error; err != nil {
			return err
		}
		return tx.First(&saved, "resume_id = ?", rec.ResumeID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("activate resume: %w", err)
	}
	return saved.toModel(), nil
}

func (s *SQLiteStore) UpdateResume(ctx context.Context, resume *models.Resume) error {
	if err := validateResume(resume); err != nil {
		return err
	}

	now := s.opts.utcNow()
	result := s.db.WithContext(ctx).Model(&resumeRecord{}).
		Where("resume_id = ?", resume.ResumeID).
		Updates(map[string]any{
			"owner_id":        resume.OwnerID,
			"title":           resume.Title,
			"status":          resume.Status,
			"access":          resume.Access,
			"next_publish_at": resume.NextPublishAt.UTC(),
			"active":          resume.Active,
			"valid_until":     resume.ValidUntil.UTC(),
			"owner_notified":  resume.OwnerNotified,
			"updated_at":      now,
		})
	if result.Error != nil {
		return fmt.Errorf("update resume: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	resume.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) DeactivateResume(ctx context.Context, resumeID string, ownerID int64) error {
	result := s.db.WithContext(ctx).Model(&resumeRecord{}).
		Where("resume_id = ? AND owner_id = ?", resumeID, ownerID).
		Updates(map[string]any{
			"active":     false,
			"updated_at": s.opts.utcNow(),
		})
	if result.Error != nil {
		return fmt.Errorf("deactivate resume: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RefreshResume(ctx context.Context, resume *models.Resume) error {
	if err := validateResume(resume); err != nil {
		return err
	}

	now := s.opts.utcNow()
	result := s.db.WithContext(ctx).Model(&resumeRecord{}).
		Where("resume_id = ?", resume.ResumeID).
		Updates(map[string]any{
			"title":           resume.Title,
			"status":          resume.Status,
			"access":          resume.Access,
			"next_publish_at": resume.NextPublishAt.UTC(),
			"updated_at":      now,
		})
	if result.Error != nil {
		return fmt.Errorf("refresh resume: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	resume.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) MarkOwnerNotified(ctx context.Context, resumeID string, validUntil time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&resumeRecord{}).
		Where("resume_id = ? AND valid_until = ? AND active = ?", resumeID, validUntil.UTC(), true).
		Updates(map[string]any{
			"owner_notified": true,
			"updated_at":     s.opts.utcNow(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("mark owner notified: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *SQLiteStore) ListResumesByOwner(ctx context.Context, ownerID int64, activeOnly bool) ([]models.Resume, error) {
	query := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if activeOnly {
		query = query.Where("active = ? AND valid_until > ?", true, s.opts.utcNow())
	}

	records := make([]resumeRecord, 0)
	if err := query.Order("title ASC, resume_id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}

	resumes := make([]models.Resume, 0, len(records))
	for i := range records {
		resumes = append(resumes, *records[i].toModel())
	}
	return resumes, nil
}

func (s *SQLiteStore) ListActiveResumesWithOwner(ctx context.Context) ([]models.ActiveResume, error) {
	records := make([]activeResumeRecord, 0)
	err := s.db.WithContext(ctx).
		Table("resumes AS r").
		Select("r.*, u.access_token AS owner_token").
		Joins("JOIN users AS u ON u.user_id = r.owner_id").
		Where("r.active = ? AND r.valid_until > ? AND u.access_token IS NOT NULL", true, s.opts.utcNow()).
		Order("r.owner_id ASC, r.resume_id ASC").
		Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list active resumes: %w", err)
	}

	active := make([]models.ActiveResume, 0, len(records))
	for i := range records {
		active = append(active, models.ActiveResume{
			Resume:     *records[i].Resume.toModel(),
			OwnerToken: records[i].OwnerToken,
		})
	}
	return active, nil
}

func (rec *userRecord) toModel() *models.User {
	return &models.User{
		UserID:            rec.UserID,
		AccessToken:       rec.AccessToken,
		FirstName:         rec.FirstName,
		LastName:          rec.LastName,
		Email:             rec.Email,
		ConversationState: models.ConversationState(rec.ConversationState),
		CreatedAt:         rec.CreatedAt.UTC(),
		UpdatedAt:         rec.UpdatedAt.UTC(),
	}
}

func resumeRecordFrom(r *models.Resume) resumeRecord {
	return resumeRecord{
		ResumeID:      r.ResumeID,
		OwnerID:       r.OwnerID,
		Title:         r.Title,
		Status:        r.Status,
		Access:        r.Access,
		NextPublishAt: r.NextPublishAt.UTC(),
		Active:        r.Active,
		ValidUntil:    r.ValidUntil.UTC(),
		OwnerNotified: r.OwnerNotified,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (rec *resumeRecord) toModel() *models.Resume {
	return &models.Resume{
		ResumeID:      rec.ResumeID,
		OwnerID:       rec.OwnerID,
		Title:         rec.Title,
		Status:        rec.Status,
		Access:        rec.Access,
		NextPublishAt: rec.NextPublishAt.UTC(),
		Active:        rec.Active,
		ValidUntil:    rec.ValidUntil.UTC(),
		OwnerNotified: rec.OwnerNotified,
		CreatedAt:     rec.CreatedAt.UTC(),
		UpdatedAt:     rec.UpdatedAt.UTC(),
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
