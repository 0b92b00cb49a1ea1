package models

import (
	"time"
)

// DefaultRenewalPeriod is the length of one activation window.
const DefaultRenewalPeriod = 7 * 24 * time.Hour

// Resume is a job-board résumé tracked for recurring renewal.
type Resume struct {
	ResumeID      string    `json:"resume_id"`
	OwnerID       int64     `json:"owner_id"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	Access        string    `json:"access"`
	NextPublishAt time.Time `json:"next_publish_at"`
	Active        bool      `json:"active"`
	ValidUntil    time.Time `json:"valid_until"`
	OwnerNotified bool      `json:"owner_notified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsActive reports whether the résumé is inside its activation window.
// The flag alone goes stale once valid_until passes.
func (r *Resume) IsActive(now time.Time) bool {
	return r.Active && r.ValidUntil.After(now)
}

// Activate opens a fresh activation window starting at now.
func (r *Resume) Activate(now time.Time, period time.Duration) {
	r.Active = true
	r.ValidUntil = now.Add(period).UTC()
	r.OwnerNotified = false
}

// Deactivate stops renewal but keeps the last snapshot and window.
func (r *Resume) Deactivate() {
	r.Active = false
}

// ActiveResume pairs an active résumé with its owner's current token.
// It is what the renewal sweep consumes.
type ActiveResume struct {
	Resume
	OwnerToken string `json:"-"`
}
