// Package reporter ships unexpected failures to Sentry.
package reporter

import (
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryReporter is a no-op until initialised with a DSN.
type SentryReporter struct {
	initialized bool
}

// NewSentryReporter initialises the Sentry client. An empty dsn, or a failed
// init, yields a reporter that drops everything.
func NewSentryReporter(dsn, environment string) *SentryReporter {
	if dsn == "" {
		log.Println("SENTRY_DSN not set, Sentry disabled")
		return &SentryReporter{}
	}
	if environment == "" {
		environment = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		log.Printf("⚠️ Sentry initialization failed: %v", err)
		return &SentryReporter{}
	}

	log.Println("🛰️ Sentry initialized")
	return &SentryReporter{initialized: true}
}

func (s *SentryReporter) Enabled() bool {
	return s.initialized
}

func (s *SentryReporter) CaptureException(err error) {
	if !s.initialized || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CaptureMessage records a notable event that is not an error, e.g. a sweep
// that skipped owners.
func (s *SentryReporter) CaptureMessage(message string) {
	if !s.initialized {
		return
	}
	sentry.CaptureMessage(message)
}

// Close flushes buffered events.
func (s *SentryReporter) Close() {
	if !s.initialized {
		return
	}
	sentry.Flush(2 * time.Second)
}
