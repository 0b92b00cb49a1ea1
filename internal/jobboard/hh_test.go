package jobboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodToken = "GOODTOKEN"

func newBoard(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+goodToken {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":[{"type":"oauth","value":"bad_authorization"}]}`))
			return
		}
		assert.NotEmpty(t, r.Header.Get("HH-User-Agent"))
		_, _ = w.Write([]byte(`{"first_name":"Anna","last_name":"Petrova","email":"anna@example.com"}`))
	})
	mux.HandleFunc("/resumes/mine", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[
			{"id":"a1","title":"Go developer","status":{"id":"published","name":"published"},
			 "access":{"type":{"id":"everyone","name":"everyone"}},"next_publish_at":"2026-03-01T13:00:00+0300"},
			{"id":"b2","title":"SRE","status":{"id":"not_published"},"access":{"type":{"id":"no_one"}},
			 "next_publish_at":"2026-03-02T10:00:00Z"}
		]}`))
	})
	mux.HandleFunc("/resumes/a1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"a1","title":"Go developer","status":{"id":"published"},
			"access":{"type":{"id":"everyone"}},"next_publish_at":"2026-03-01T13:00:00+0300"}`))
	})
	mux.HandleFunc("/resumes/a1/publish", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/resumes/b2/publish", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/resumes/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWithSessionValidatesToken(t *testing.T) {
	srv := newBoard(t)
	client := NewHHClient(WithBaseURL(srv.URL))

	called := false
	err := client.WithSession(context.Background(), "BADTOKEN", func(s Session) error {
		called = true
		return nil
	})
	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsTransport(err))
	assert.False(t, called, "callback must not run for a rejected token")

	err = client.WithSession(context.Background(), goodToken, func(s Session) error {
		assert.Equal(t, Profile{FirstName: "Anna", LastName: "Petrova", Email: "anna@example.com"}, s.Profile())
		return nil
	})
	assert.NoError(t, err)
}

func TestSessionResumes(t *testing.T) {
	srv := newBoard(t)
	client := NewHHClient(WithBaseURL(srv.URL))

	err := client.WithSession(context.Background(), goodToken, func(s Session) error {
		resumes, err := s.Resumes(context.Background())
		require.NoError(t, err)
		require.Len(t, resumes, 2)

		assert.Equal(t, "a1", resumes[0].ID)
		assert.Equal(t, "published", resumes[0].Status)
		assert.Equal(t, "everyone", resumes[0].Access)
		assert.True(t, resumes[0].NextPublishAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
		assert.True(t, resumes[1].NextPublishAt.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))

		one, err := s.Resume(context.Background(), "a1")
		require.NoError(t, err)
		assert.Equal(t, "Go developer", one.Title)

		_, err = s.Resume(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrResumeNotFound)

		_, err = s.Resume(context.Background(), "broken")
		assert.True(t, IsTransport(err))
		assert.False(t, IsUnauthorized(err))

		assert.NoError(t, s.Publish(context.Background(), "a1"))
		assert.ErrorIs(t, s.Publish(context.Background(), "b2"), ErrTooEarly)
		return nil
	})
	assert.NoError(t, err)
}

func TestSessionReleasedOnEveryExit(t *testing.T) {
	srv := newBoard(t)
	client := NewHHClient(WithBaseURL(srv.URL))

	var leaked Session
	wantErr := errors.New("boom")
	err := client.WithSession(context.Background(), goodToken, func(s Session) error {
		leaked = s
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, err = leaked.Resumes(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.Panics(t, func() {
		_ = client.WithSession(context.Background(), goodToken, func(s Session) error {
			leaked = s
			panic("callback panic")
		})
	})
	assert.ErrorIs(t, leaked.Publish(context.Background(), "a1"), ErrSessionClosed)
}

func TestTransportFailure(t *testing.T) {
	srv := newBoard(t)
	srv.Close()

	client := NewHHClient(WithBaseURL(srv.URL))
	err := client.WithSession(context.Background(), goodToken, func(s Session) error { return nil })
	assert.True(t, IsTransport(err))
	assert.False(t, IsUnauthorized(err))
}
