package jobboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

const (
	DefaultBaseURL   = "https://api.hh.ru"
	DefaultUserAgent = "resume-bumper/1.0 (bumper@example.com)"

	// hh.ru sends offsets without a colon, e.g. 2018-02-14T10:57:58+0300.
	hhTimeLayout = "2006-01-02T15:04:05-0700"
)

type HHClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

type HHOption func(*HHClient)

func WithBaseURL(baseURL string) HHOption {
	return func(c *HHClient) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithUserAgent sets HH-User-Agent, which the API requires.
func WithUserAgent(ua string) HHOption {
	return func(c *HHClient) { c.userAgent = ua }
}

func WithHTTPClient(hc *http.Client) HHOption {
	return func(c *HHClient) { c.httpClient = hc }
}

// NewHHClient creates a client for the hh.ru applicant API
func NewHHClient(opts ...HHOption) *HHClient {
	c := &HHClient{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithSession validates the token via /me, runs fn and releases the session
// on every exit path.
func (c *HHClient) WithSession(ctx context.Context, token string, fn func(Session) error) error {
	s := &hhSession{client: c, token: token}
	defer s.release()

	if err := c.get(ctx, token, "validate", "/me", &s.profile); err != nil {
		return err
	}
	return fn(s)
}

type hhSession struct {
	client  *HHClient
	token   string
	profile Profile
	closed  atomic.Bool
}

func (s *hhSession) release() {
	s.closed.Store(true)
}

func (s *hhSession) Profile() Profile {
	return s.profile
}

type hhNamed struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type hhResume struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Status hhNamed `json:"status"`
	Access struct {
		Type hhNamed `json:"type"`
	} `json:"access"`
	NextPublishAt string `json:"next_publish_at"`
}

type hhResumeList struct {
	Items []hhResume `json:"items"`
}

func (s *hhSession) Resumes(ctx context.Context) ([]Resume, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	var list hhResumeList
	if err := s.client.get(ctx, s.token, "list resumes", "/resumes/mine", &list); err != nil {
		return nil, err
	}

	resumes := make([]Resume, 0, len(list.Items))
	for _, item := range list.Items {
		resumes = append(resumes, item.toResume())
	}
	return resumes, nil
}

func (s *hhSession) Resume(ctx context.Context, id string) (Resume, error) {
	if s.closed.Load() {
		return Resume{}, ErrSessionClosed
	}

	var item hhResume
	if err := s.client.get(ctx, s.token, "get resume", "/resumes/"+url.PathEscape(id), &item); err != nil {
		return Resume{}, err
	}
	return item.toResume(), nil
}

// Publish bumps the résumé in search results.
func (s *hhSession) Publish(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.client.do(ctx, s.token, "publish resume", http.MethodPost, "/resumes/"+url.PathEscape(id)+"/publish", nil)
}

func (r hhResume) toResume() Resume {
	return Resume{
		ID:            r.ID,
		Title:         r.Title,
		Status:        r.Status.ID,
		Access:        r.Access.Type.ID,
		NextPublishAt: parseHHTime(r.NextPublishAt),
	}
}

func parseHHTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(hhTimeLayout, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func (c *HHClient) get(ctx context.Context, token, op, path string, out any) error {
	return c.do(ctx, token, op, http.MethodGet, path, out)
}

func (c *HHClient) do(ctx context.Context, token, op, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to create http request: %w", err)}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("HH-User-Agent", c.userAgent)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrResumeNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", op, ErrTooEarly)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(snippet(bodyBytes))}
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
