package models

import (
	"errors"
	"fmt"
	"time"
)

// ConversationState governs how the next free-text message from a user is read.
type ConversationState string

const (
	StateIdle          ConversationState = "idle"
	StateAwaitingToken ConversationState = "awaiting_token"
)

var ErrInvalidState = errors.New("invalid conversation state")

func (s ConversationState) Valid() bool {
	return s == StateIdle || s == StateAwaitingToken
}

// User is a Telegram user of the bot. Profile fields come from the job board
// after a token is accepted and are informational only.
type User struct {
	UserID            int64             `json:"user_id"`
	AccessToken       *string           `json:"-"`
	FirstName         *string           `json:"first_name,omitempty"`
	LastName          *string           `json:"last_name,omitempty"`
	Email             *string           `json:"email,omitempty"`
	ConversationState ConversationState `json:"conversation_state"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// NewUser returns a user as it looks on first contact.
func NewUser(userID int64) *User {
	return &User{
		UserID:            userID,
		ConversationState: StateIdle,
	}
}

func (u *User) HasToken() bool {
	return u.AccessToken != nil && *u.AccessToken != ""
}

func (u *User) Token() string {
	if u.AccessToken == nil {
		return ""
	}
	return *u.AccessToken
}

// Validate checks the invariants every store enforces before writing a user.
func (u *User) Validate() error {
	if !u.ConversationState.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, u.ConversationState)
	}
	if u.AccessToken != nil {
		if err := ValidateToken(*u.AccessToken); err != nil {
			return err
		}
	}
	return nil
}
