// Package conversation turns one inbound chat message into at most one reply,
// driving the lifecycle store and the job board along the way.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"math/rand"
	"strings"

	"go-resume-bumper/internal/database"
	"go-resume-bumper/internal/jobboard"
	"go-resume-bumper/internal/models"
)

const (
	activatePrefix   = "/resume_"
	deactivatePrefix = "/deactivate_"
)

// Message is one inbound chat event, already stripped of transport details.
type Message struct {
	UserID  int64
	ChatID  int64
	Private bool
	IsText  bool
	Text    string
}

type Reply struct {
	ChatID int64
	Text   string
}

// Reporter receives failures that are not the user's fault.
type Reporter interface {
	CaptureException(err error)
}

type nopReporter struct{}

func (nopReporter) CaptureException(error) {}

type Handler struct {
	store    database.Store
	board    jobboard.Client
	reporter Reporter
	intn     func(n int) int
}

type HandlerOption func(*Handler)

func WithReporter(r Reporter) HandlerOption {
	return func(h *Handler) {
		if r != nil {
			h.reporter = r
		}
	}
}

// WithRandom replaces the source used to pick unknown-input replies.
func WithRandom(intn func(n int) int) HandlerOption {
	return func(h *Handler) { h.intn = intn }
}

func NewHandler(store database.Store, board jobboard.Client, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:    store,
		board:    board,
		reporter: nopReporter{},
		intn:     rand.Intn,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one message. It returns nil when the message is dropped
// (group chats, non-text content) and exactly one reply otherwise.
func (h *Handler) Handle(ctx context.Context, msg Message) *Reply {
	if !msg.Private {
		return nil
	}
	if !msg.IsText {
		return nil
	}

	user, created, err := h.store.GetOrCreateUser(ctx, msg.UserID)
	if err != nil {
		return h.reply(msg, h.internalError(fmt.Errorf("load user %d: %w", msg.UserID, err)))
	}
	if created {
		log.Printf("👋 New user: %d", msg.UserID)
		return h.reply(msg, welcomeMessage)
	}

	return h.reply(msg, h.respond(ctx, user, msg.Text))
}

func (h *Handler) reply(msg Message, text string) *Reply {
	return &Reply{ChatID: msg.ChatID, Text: text}
}

func (h *Handler) respond(ctx context.Context, user *models.User, text string) string {
	command := parseCommand(text)
	lower := strings.ToLower(command)

	switch {
	case lower == "/start":
		return welcomeMessage
	case lower == "/help":
		return helpMessage
	case lower == "/token":
		return h.setState(ctx, user, models.StateAwaitingToken, tokenPromptMessage)
	case lower == "/cancel":
		return h.setState(ctx, user, models.StateIdle, tokenCancelMessage)
	case lower == "/resumes":
		return h.listResumes(ctx, user)
	case lower == "/active":
		return h.listActive(ctx, user)
	case strings.HasPrefix(lower, activatePrefix) && len(command) > len(activatePrefix):
		return h.activate(ctx, user, command[len(activatePrefix):])
	case strings.HasPrefix(lower, deactivatePrefix) && len(command) > len(deactivatePrefix):
		return h.deactivate(ctx, user, command[len(deactivatePrefix):])
	case user.ConversationState == models.StateAwaitingToken:
		return h.submitToken(ctx, user, text)
	default:
		return UnknownReplies[h.intn(len(UnknownReplies))]
	}
}

// parseCommand keeps the first word of a command, without arguments or the
// @botname that Telegram appends to commands picked from the menu.
func parseCommand(text string) string {
	command := strings.TrimSpace(text)
	if !strings.HasPrefix(command, "/") {
		return command
	}
	if i := strings.IndexAny(command, " \t\n"); i >= 0 {
		command = command[:i]
	}
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return command
}

func (h *Handler) setState(ctx context.Context, user *models.User, state models.ConversationState, text string) string {
	if user.ConversationState == state {
		return text
	}

	updated := *user
	updated.ConversationState = state
	if err := h.store.UpdateUser(ctx, &updated); err != nil {
		return h.internalError(fmt.Errorf("set state %s for user %d: %w", state, user.UserID, err))
	}
	*user = updated
	return text
}

// submitToken validates the pasted token and, on success, continues straight
// into the résumé list within the same event.
func (h *Handler) submitToken(ctx context.Context, user *models.User, raw string) string {
	token := models.NormalizeToken(raw)
	if err := models.ValidateToken(token); err != nil {
		log.Printf("🔑 Token for user %d did not match pattern", user.UserID)
		return tokenIncorrectMessage
	}

	var profile jobboard.Profile
	err := h.board.WithSession(ctx, token, func(s jobboard.Session) error {
		profile = s.Profile()
		return nil
	})
	if err != nil {
		return h.boardFailure(user, err)
	}

	updated := *user
	updated.AccessToken = &token
	updated.FirstName = optional(profile.FirstName)
	updated.LastName = optional(profile.LastName)
	updated.Email = optional(profile.Email)
	updated.ConversationState = models.StateIdle
	if err := h.store.UpdateUser(ctx, &updated); err != nil {
		return h.internalError(fmt.Errorf("save token for user %d: %w", user.UserID, err))
	}
	*user = updated
	log.Printf("🔑 Token accepted for user %d (%s)", user.UserID, models.MaskToken(token))

	return h.listResumes(ctx, user)
}

func (h *Handler) listResumes(ctx context.Context, user *models.User) string {
	if !user.HasToken() {
		return tokenMissingMessage
	}

	var resumes []jobboard.Resume
	err := h.board.WithSession(ctx, user.Token(), func(s jobboard.Session) error {
		var err error
		resumes, err = s.Resumes(ctx)
		return err
	})
	if err != nil {
		return h.boardFailure(user, err)
	}

	if len(resumes) == 0 {
		return noResumesMessage
	}

	items := make([]string, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, fmt.Sprintf("<b>%s</b>\n%s%s", html.EscapeString(r.Title), activatePrefix, r.ID))
	}
	return selectResumeMessage + strings.Join(items, "\n\n")
}

func (h *Handler) listActive(ctx context.Context, user *models.User) string {
	resumes, err := h.store.ListResumesByOwner(ctx, user.UserID, true)
	if err != nil {
		return h.internalError(fmt.Errorf("list active resumes for user %d: %w", user.UserID, err))
	}

	if len(resumes) == 0 {
		return noActiveResumesMessage
	}

	items := make([]string, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, fmt.Sprintf("<b>%s</b> (until %s)\n%s%s",
			html.EscapeString(r.Title), r.ValidUntil.Format(windowDateLayout), deactivatePrefix, r.ResumeID))
	}
	return activeResumesMessage + strings.Join(items, "\n\n")
}

// activate fetches the résumé from the board first; the store is written only
// after the board call has returned.
func (h *Handler) activate(ctx context.Context, user *models.User, resumeID string) string {
	if !user.HasToken() {
		return tokenMissingMessage
	}

	var remote jobboard.Resume
	err := h.board.WithSession(ctx, user.Token(), func(s jobboard.Session) error {
		var err error
		remote, err = s.Resume(ctx, resumeID)
		return err
	})
	if err != nil {
		return h.boardFailure(user, err)
	}

	id := remote.ID
	if id == "" {
		id = resumeID
	}
	saved, err := h.store.ActivateResume(ctx, &models.Resume{
		ResumeID:      id,
		OwnerID:       user.UserID,
		Title:         remote.Title,
		Status:        remote.Status,
		Access:        remote.Access,
		NextPublishAt: remote.NextPublishAt,
	})
	if err != nil {
		return h.internalError(fmt.Errorf("activate resume %s for user %d: %w", id, user.UserID, err))
	}

	log.Printf("✅ Resume %s activated for user %d until %s", saved.ResumeID, user.UserID, saved.ValidUntil.Format(windowDateLayout))
	return fmt.Sprintf(resumeSelectedMessage, html.EscapeString(saved.Title), saved.ValidUntil.Format(windowDateLayout))
}

func (h *Handler) deactivate(ctx context.Context, user *models.User, resumeID string) string {
	resume, err := h.store.GetResume(ctx, resumeID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && resume.OwnerID != user.UserID) {
		return resumeNotFoundMessage
	}
	if err != nil {
		return h.internalError(fmt.Errorf("load resume %s: %w", resumeID, err))
	}

	err = h.store.DeactivateResume(ctx, resumeID, user.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return resumeNotFoundMessage
	}
	if err != nil {
		return h.internalError(fmt.Errorf("deactivate resume %s: %w", resumeID, err))
	}

	log.Printf("⏹️ Resume %s deactivated by user %d", resumeID, user.UserID)
	return fmt.Sprintf(deactivatedMessage, html.EscapeString(resume.Title))
}

// boardFailure maps job-board errors to replies. Only an authorization
// failure is reported to the user as a bad token.
func (h *Handler) boardFailure(user *models.User, err error) string {
	switch {
	case jobboard.IsUnauthorized(err):
		log.Printf("🔑 Job board rejected token of user %d", user.UserID)
		return tokenIncorrectMessage
	case errors.Is(err, jobboard.ErrResumeNotFound):
		return resumeNotFoundMessage
	case jobboard.IsTransport(err):
		log.Printf("⚠️ Job board unavailable for user %d: %v", user.UserID, err)
		return boardUnavailableMessage
	default:
		return h.internalError(err)
	}
}

func (h *Handler) internalError(err error) string {
	log.Printf("❌ %v", err)
	h.reporter.CaptureException(err)
	return internalErrorMessage
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
