package renewal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-resume-bumper/internal/database"
	"go-resume-bumper/internal/jobboard"
	"go-resume-bumper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	goodToken    = strings.Repeat("G", 64)
	revokedToken = strings.Repeat("R", 64)
	sweepAt      = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

type board struct {
	mu         sync.Mutex
	remote     map[string]jobboard.Resume
	publishErr map[string]error
	published  []string
}

func (b *board) WithSession(ctx context.Context, token string, fn func(jobboard.Session) error) error {
	if token != goodToken {
		return fmt.Errorf("validate: %w", jobboard.ErrUnauthorized)
	}
	return fn(b)
}

func (b *board) Profile() jobboard.Profile { return jobboard.Profile{} }

func (b *board) Resumes(ctx context.Context) ([]jobboard.Resume, error) { return nil, nil }

func (b *board) Resume(ctx context.Context, id string) (jobboard.Resume, error) {
	r, ok := b.remote[id]
	if !ok {
		return jobboard.Resume{}, jobboard.ErrResumeNotFound
	}
	return r, nil
}

func (b *board) Publish(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.publishErr[id]; err != nil {
		return err
	}
	b.published = append(b.published, id)
	return nil
}

type notice struct {
	chatID int64
	text   string
}

type notifier struct {
	mu      sync.Mutex
	notices []notice
	err     error
}

func (n *notifier) Notify(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notice{chatID: chatID, text: text})
	return nil
}

type fixture struct {
	store    *database.SQLiteStore
	now      time.Time
	board    *board
	notifier *notifier
	renewer  *Renewer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now: sweepAt,
		board: &board{
			remote:     make(map[string]jobboard.Resume),
			publishErr: make(map[string]error),
		},
		notifier: &notifier{},
	}
	store, err := database.OpenSQLite(filepath.Join(t.TempDir(), "bumper.db"),
		database.WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f.store = store
	f.renewer = NewRenewer(store, f.board, f.notifier, 24*time.Hour, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) owner(t *testing.T, id int64, token string) {
	t.Helper()
	user, _, err := f.store.GetOrCreateUser(context.Background(), id)
	require.NoError(t, err)
	if token != "" {
		user.AccessToken = &token
		require.NoError(t, f.store.UpdateUser(context.Background(), user))
	}
}

// activate opens the window as if the owner had asked at activatedAt.
func (f *fixture) activate(t *testing.T, id string, owner int64, nextPublish, activatedAt time.Time) {
	t.Helper()
	saved := f.now
	f.now = activatedAt
	defer func() { f.now = saved }()

	_, err := f.store.ActivateResume(context.Background(), &models.Resume{
		ResumeID:      id,
		OwnerID:       owner,
		Title:         "Résumé " + id,
		Status:        "published",
		Access:        "everyone",
		NextPublishAt: nextPublish,
	})
	require.NoError(t, err)
}

func (f *fixture) resume(t *testing.T, id string) *models.Resume {
	t.Helper()
	r, err := f.store.GetResume(context.Background(), id)
	require.NoError(t, err)
	return r
}

func TestRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.owner(t, 1, goodToken)
	f.owner(t, 2, revokedToken)
	f.owner(t, 3, "")

	f.activate(t, "due", 1, sweepAt.Add(-time.Hour), sweepAt.Add(-time.Hour))
	f.activate(t, "early", 1, sweepAt.Add(-time.Minute), sweepAt.Add(-time.Hour))
	f.activate(t, "closing", 1, sweepAt.Add(3*time.Hour), sweepAt.Add(-(7*24-12)*time.Hour))
	f.activate(t, "revoked", 2, sweepAt.Add(-time.Hour), sweepAt.Add(-time.Hour))
	f.activate(t, "tokenless", 3, sweepAt.Add(-time.Hour), sweepAt.Add(-time.Hour))

	f.board.remote["due"] = jobboard.Resume{ID: "due", Title: "Go developer", Status: "published", Access: "everyone", NextPublishAt: sweepAt.Add(4 * time.Hour)}
	f.board.publishErr["early"] = jobboard.ErrTooEarly

	stats, err := f.renewer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Owners: 2, Resumes: 4, Published: 1, TooEarly: 1, Notified: 1, SkippedOwners: 1}, stats)
	assert.Equal(t, []string{"due"}, f.board.published)

	due := f.resume(t, "due")
	assert.Equal(t, "Go developer", due.Title)
	assert.True(t, due.NextPublishAt.Equal(sweepAt.Add(4*time.Hour)))
	assert.True(t, due.Active)

	closing := f.resume(t, "closing")
	assert.True(t, closing.OwnerNotified)
	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, int64(1), f.notifier.notices[0].chatID)
	assert.Contains(t, f.notifier.notices[0].text, "/resume_closing")

	revoked := f.resume(t, "revoked")
	assert.True(t, revoked.Active, "auth failure never deactivates")
	assert.False(t, revoked.OwnerNotified)

	stats, err = f.renewer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Notified, "owner is warned once per window")
	assert.Len(t, f.notifier.notices, 1)
}

func TestRunOnceRetriesFailedNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.owner(t, 1, goodToken)
	f.activate(t, "closing", 1, sweepAt.Add(3*time.Hour), sweepAt.Add(-(7*24-1)*time.Hour))

	f.notifier.err = errors.New("bot blocked")
	stats, err := f.renewer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Notified)
	assert.False(t, f.resume(t, "closing").OwnerNotified)

	f.notifier.err = nil
	stats, err = f.renewer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Notified)
	assert.True(t, f.resume(t, "closing").OwnerNotified)
}

func TestRunOnceKeepsConcurrentDeactivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.owner(t, 1, goodToken)
	f.activate(t, "due", 1, sweepAt.Add(-time.Hour), sweepAt.Add(-time.Hour))
	f.board.remote["due"] = jobboard.Resume{ID: "due", Title: "Renamed", NextPublishAt: sweepAt.Add(4 * time.Hour)}

	f.renewer.board = deactivatingBoard{board: f.board, store: f.store}
	_, err := f.renewer.RunOnce(ctx)
	require.NoError(t, err)

	r := f.resume(t, "due")
	assert.False(t, r.Active)
	assert.Equal(t, "Renamed", r.Title)
}

// deactivatingBoard deactivates the résumé while the owner's session is open.
type deactivatingBoard struct {
	*board
	store database.Store
}

func (b deactivatingBoard) WithSession(ctx context.Context, token string, fn func(jobboard.Session) error) error {
	if err := b.store.DeactivateResume(ctx, "due", 1); err != nil {
		return err
	}
	return b.board.WithSession(ctx, token, fn)
}

func TestRunOnceKeepsConcurrentActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.owner(t, 1, goodToken)
	f.activate(t, "due", 1, sweepAt.Add(-time.Hour), sweepAt.Add(-time.Hour))
	f.board.remote["due"] = jobboard.Resume{ID: "due", Title: "Renamed", NextPublishAt: sweepAt.Add(4 * time.Hour)}

	f.renewer.store = activatingStore{SQLiteStore: f.store}
	stats, err := f.renewer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Failed)

	r := f.resume(t, "due")
	assert.True(t, r.Active)
	assert.Equal(t, "Renamed", r.Title)
	assert.True(t, r.ValidUntil.Equal(sweepAt.Add(models.DefaultRenewalPeriod)), "window of the later activation is kept, got %s", r.ValidUntil)
}

// activatingStore re-activates the résumé right before the sweep saves its snapshot.
type activatingStore struct {
	*database.SQLiteStore
}

func (s activatingStore) RefreshResume(ctx context.Context, resume *models.Resume) error {
	again := *resume
	if _, err := s.ActivateResume(ctx, &again); err != nil {
		return err
	}
	return s.SQLiteStore.RefreshResume(ctx, resume)
}

func TestRunOnceReactivationClearsWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.owner(t, 1, goodToken)
	f.activate(t, "closing", 1, sweepAt.Add(3*time.Hour), sweepAt.Add(-(7*24-12)*time.Hour))

	f.renewer.board = reactivatingBoard{board: f.board, store: f.store}
	stats, err := f.renewer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Notified)
	assert.Zero(t, stats.Failed)

	r := f.resume(t, "closing")
	assert.True(t, r.ValidUntil.Equal(sweepAt.Add(models.DefaultRenewalPeriod)))
	assert.False(t, r.OwnerNotified, "the fresh window has not been warned about")
}

// reactivatingBoard re-activates the closing résumé while the owner's session is open.
type reactivatingBoard struct {
	*board
	store database.Store
}

func (b reactivatingBoard) WithSession(ctx context.Context, token string, fn func(jobboard.Session) error) error {
	r, err := b.store.GetResume(ctx, "closing")
	if err != nil {
		return err
	}
	if _, err := b.store.ActivateResume(ctx, r); err != nil {
		return err
	}
	return b.board.WithSession(ctx, token, fn)
}

func TestRunOnceEmpty(t *testing.T) {
	f := newFixture(t)

	stats, err := f.renewer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}
