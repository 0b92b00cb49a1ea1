// Package server exposes the Telegram webhook and health endpoints.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go-resume-bumper/internal/conversation"
	"go-resume-bumper/internal/dedup"
	"go-resume-bumper/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Pinger is satisfied by the lifecycle store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Submitter is satisfied by the conversation dispatcher.
type Submitter interface {
	Submit(msg conversation.Message) error
}

type Server struct {
	store  Pinger
	submit Submitter
	seen   *dedup.UpdateCache
	secret string
	router *gin.Engine
}

func NewServer(store Pinger, submit Submitter, seen *dedup.UpdateCache, secret string) *Server {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		store:  store,
		submit: submit,
		seen:   seen,
		secret: secret,
		router: router,
	}

	router.GET("/", s.handleIndex)
	router.GET("/healthz", s.handleHealth)
	router.POST("/webhook/telegram/:secret", s.handleWebhook)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Resume bumper is running!",
		"status":  "healthy",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		log.Printf("⚠️ Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "up", "database": "up"})
}

// handleWebhook acknowledges every well-formed update so Telegram does not
// redeliver it; the reply is sent later by the dispatcher.
func (s *Server) handleWebhook(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(s.secret)) != 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}

	if s.seen.Seen(update.UpdateID) {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	msg, ok := telegram.MessageFromUpdate(update)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := s.submit.Submit(msg); err != nil {
		log.Printf("⚠️ Failed to submit update %d: %v", update.UpdateID, err)
		s.seen.Forget(update.UpdateID)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🌐 Server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("🛑 Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
