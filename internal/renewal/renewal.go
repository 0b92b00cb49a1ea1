// Package renewal runs one sweep over the active résumés: it bumps those the
// board allows to be published and warns owners whose window is closing.
// The cadence comes from outside (cron, a systemd timer).
package renewal

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"time"

	"go-resume-bumper/internal/database"
	"go-resume-bumper/internal/jobboard"
	"go-resume-bumper/internal/models"
)

const windowEndingMessage = "Bumping of résumé <b>\"%s\"</b> stops on %s. " +
	"Send /resume_%s to keep it going for another week."

const windowDateLayout = "02 Jan 2006 15:04 MST"

// Notifier delivers a message to the owner's private chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type Reporter interface {
	CaptureException(err error)
}

type nopReporter struct{}

func (nopReporter) CaptureException(error) {}

// Stats summarises one sweep.
type Stats struct {
	Owners        int
	Resumes       int
	Published     int
	TooEarly      int
	Notified      int
	SkippedOwners int
	Failed        int
}

func (s Stats) String() string {
	return fmt.Sprintf("owners=%d resumes=%d published=%d too_early=%d notified=%d skipped_owners=%d failed=%d",
		s.Owners, s.Resumes, s.Published, s.TooEarly, s.Notified, s.SkippedOwners, s.Failed)
}

type Renewer struct {
	store      database.Store
	board      jobboard.Client
	notifier   Notifier
	reporter   Reporter
	warnBefore time.Duration
	now        func() time.Time
}

type Option func(*Renewer)

func WithReporter(r Reporter) Option {
	return func(rn *Renewer) {
		if r != nil {
			rn.reporter = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(rn *Renewer) { rn.now = now }
}

func NewRenewer(store database.Store, board jobboard.Client, notifier Notifier, warnBefore time.Duration, opts ...Option) *Renewer {
	r := &Renewer{
		store:      store,
		board:      board,
		notifier:   notifier,
		reporter:   nopReporter{},
		warnBefore: warnBefore,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// item tracks the sweep's changes to one résumé.
type item struct {
	resume  models.Resume
	changed bool
}

// RunOnce performs one sweep. It fails only when the active list cannot be
// read; per-owner and per-résumé failures are counted in Stats.
func (r *Renewer) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	active, err := r.store.ListActiveResumesWithOwner(ctx)
	if err != nil {
		return stats, fmt.Errorf("load active resumes: %w", err)
	}
	stats.Resumes = len(active)

	owners, groups := groupByOwner(active)
	stats.Owners = len(owners)
	log.Printf("🔄 Renewal sweep: %d active résumés of %d owners", stats.Resumes, stats.Owners)

	for _, ownerID := range owners {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		r.sweepOwner(ctx, ownerID, groups[ownerID], &stats)
	}

	log.Printf("✅ Renewal sweep done: %s", stats)
	return stats, nil
}

type ownerGroup struct {
	token string
	items []*item
}

func groupByOwner(active []models.ActiveResume) ([]int64, map[int64]*ownerGroup) {
	var owners []int64
	groups := make(map[int64]*ownerGroup)
	for _, a := range active {
		g, ok := groups[a.OwnerID]
		if !ok {
			g = &ownerGroup{token: a.OwnerToken}
			groups[a.OwnerID] = g
			owners = append(owners, a.OwnerID)
		}
		g.items = append(g.items, &item{resume: a.Resume})
	}
	return owners, groups
}

func (r *Renewer) sweepOwner(ctx context.Context, ownerID int64, g *ownerGroup, stats *Stats) {
	err := r.board.WithSession(ctx, g.token, func(s jobboard.Session) error {
		for _, it := range g.items {
			if err := r.bump(ctx, s, it, stats); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case err == nil:
	case jobboard.IsUnauthorized(err):
		log.Printf("🔑 Token of user %d (%s) rejected, skipping", ownerID, models.MaskToken(g.token))
		stats.SkippedOwners++
	case jobboard.IsTransport(err):
		log.Printf("⚠️ Job board unavailable for user %d: %v", ownerID, err)
		stats.SkippedOwners++
	default:
		log.Printf("❌ Sweep of user %d failed: %v", ownerID, err)
		r.reporter.CaptureException(err)
		stats.SkippedOwners++
	}

	for _, it := range g.items {
		if it.changed {
			r.persist(ctx, it, stats)
		}
		r.warn(ctx, ownerID, it, stats)
	}
}

// bump publishes a due résumé and refreshes its snapshot. Only an
// authorization failure aborts the owner's remaining résumés.
func (r *Renewer) bump(ctx context.Context, s jobboard.Session, it *item, stats *Stats) error {
	id := it.resume.ResumeID
	if it.resume.NextPublishAt.After(r.now()) {
		return nil
	}

	err := s.Publish(ctx, id)
	switch {
	case err == nil:
		stats.Published++
		log.Printf("📈 Published résumé %s", id)
	case errors.Is(err, jobboard.ErrTooEarly):
		stats.TooEarly++
	case jobboard.IsUnauthorized(err):
		return err
	default:
		log.Printf("⚠️ Failed to publish résumé %s: %v", id, err)
		stats.Failed++
		return nil
	}

	remote, err := s.Resume(ctx, id)
	if err != nil {
		if jobboard.IsUnauthorized(err) {
			return err
		}
		log.Printf("⚠️ Failed to refresh résumé %s: %v", id, err)
		return nil
	}
	if remote.Title != "" {
		it.resume.Title = remote.Title
	}
	it.resume.Status = remote.Status
	it.resume.Access = remote.Access
	it.resume.NextPublishAt = remote.NextPublishAt
	it.changed = true
	return nil
}

func (r *Renewer) warn(ctx context.Context, ownerID int64, it *item, stats *Stats) {
	res := &it.resume
	if res.OwnerNotified || res.ValidUntil.Sub(r.now()) > r.warnBefore {
		return
	}

	text := fmt.Sprintf(windowEndingMessage, html.EscapeString(res.Title), res.ValidUntil.Format(windowDateLayout), res.ResumeID)
	if err := r.notifier.Notify(ctx, ownerID, text); err != nil {
		log.Printf("⚠️ Failed to warn user %d about résumé %s: %v", ownerID, res.ResumeID, err)
		return
	}
	stats.Notified++

	marked, err := r.store.MarkOwnerNotified(ctx, res.ResumeID, res.ValidUntil)
	switch {
	case err != nil:
		r.fail(stats, fmt.Errorf("mark resume %s notified: %w", res.ResumeID, err))
	case !marked:
		log.Printf("🔁 Résumé %s was re-activated during the sweep, warning flag left unset", res.ResumeID)
	default:
		res.OwnerNotified = true
	}
}

// persist writes only the board snapshot, so an activation or deactivation
// that raced the sweep is kept.
func (r *Renewer) persist(ctx context.Context, it *item, stats *Stats) {
	if err := r.store.RefreshResume(ctx, &it.resume); err != nil {
		r.fail(stats, fmt.Errorf("save resume %s: %w", it.resume.ResumeID, err))
	}
}

func (r *Renewer) fail(stats *Stats, err error) {
	log.Printf("❌ %v", err)
	r.reporter.CaptureException(err)
	stats.Failed++
}
