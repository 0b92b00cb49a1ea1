// Package jobboard talks to the hh.ru API on behalf of a user.
//
// Every call runs inside a session opened with Client.WithSession. Opening a
// session validates the access token and loads the owner's profile; the
// session is released when the callback returns, whatever the exit path.
package jobboard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized means the board rejected the token (invalid, revoked or expired).
	ErrUnauthorized = errors.New("job board rejected access token")
	// ErrResumeNotFound means the résumé id is unknown to the board.
	ErrResumeNotFound = errors.New("resume not found on job board")
	// ErrTooEarly means the board does not allow publishing the résumé yet.
	ErrTooEarly      = errors.New("resume cannot be published yet")
	ErrSessionClosed = errors.New("job board session is closed")
)

// TransportError is any failure that says nothing about the token:
// network errors, 5xx responses, unreadable bodies.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("job board %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("job board %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Profile is the identity behind a token.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Resume is the board's view of one résumé.
type Resume struct {
	ID            string
	Title         string
	Status        string
	Access        string
	NextPublishAt time.Time
}

// Client opens sessions for a token.
type Client interface {
	WithSession(ctx context.Context, token string, fn func(Session) error) error
}

// Session is valid only inside the WithSession callback.
type Session interface {
	Profile() Profile
	Resumes(ctx context.Context) ([]Resume, error)
	Resume(ctx context.Context, id string) (Resume, error)
	Publish(ctx context.Context, id string) error
}
