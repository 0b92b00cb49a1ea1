package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Sender delivers a reply to the chat.
type Sender interface {
	Send(ctx context.Context, reply Reply) error
}

// Dispatcher runs the handler with one mailbox per user: events of one user
// are handled and answered in arrival order, distinct users run in parallel.
type Dispatcher struct {
	handler  *Handler
	sender   Sender
	reporter Reporter

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	mailboxes map[int64][]Message
	closed    bool
	wg        sync.WaitGroup
}

func NewDispatcher(handler *Handler, sender Sender, reporter Reporter) *Dispatcher {
	if reporter == nil {
		reporter = nopReporter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler:   handler,
		sender:    sender,
		reporter:  reporter,
		ctx:       ctx,
		cancel:    cancel,
		mailboxes: make(map[int64][]Message),
	}
}

// Submit queues the message and returns immediately.
func (d *Dispatcher) Submit(msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	queue, running := d.mailboxes[msg.UserID]
	d.mailboxes[msg.UserID] = append(queue, msg)
	if !running {
		d.wg.Add(1)
		go d.drain(msg.UserID)
	}
	return nil
}

// drain handles the user's mailbox until it is empty, then removes it.
func (d *Dispatcher) drain(userID int64) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.mailboxes[userID]
		if len(queue) == 0 {
			delete(d.mailboxes, userID)
			d.mu.Unlock()
			return
		}
		msg := queue[0]
		d.mailboxes[userID] = queue[1:]
		d.mu.Unlock()

		d.process(msg)
	}
}

func (d *Dispatcher) process(msg Message) {
	traceID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic handling message of user %d [%s]: %v", msg.UserID, traceID, r)
			log.Printf("🔥 %v", err)
			d.reporter.CaptureException(err)
		}
	}()

	log.Printf("📨 [%s] Message from user %d", traceID, msg.UserID)

	reply := d.handler.Handle(d.ctx, msg)
	if reply == nil {
		log.Printf("🙈 [%s] Dropped", traceID)
		return
	}

	if err := d.sender.Send(d.ctx, *reply); err != nil {
		log.Printf("⚠️ [%s] Failed to send reply to chat %d: %v", traceID, reply.ChatID, err)
		return
	}
	log.Printf("📤 [%s] Replied to chat %d", traceID, reply.ChatID)
}

// Close stops intake and waits for queued messages to be handled. When ctx
// expires first, in-flight calls are cancelled and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
