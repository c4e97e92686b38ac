// Package publisher fans audit events out to a store, synchronously or
// through a bounded in-process buffer.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "ezweb/pkg/platform/audit"
)

// ErrBufferFull is returned by Emit in async mode when the buffer is saturated.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher emits audit events. In sync mode Emit blocks until the store
// accepted the event; in async mode events are queued and drained by a
// single goroutine, and dropped (with ErrBufferFull) when the queue is full.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer  chan audit.Event
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a queue of the given size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets the logger used to report store failures in async mode.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit stamps the event with an id and timestamp when missing and hands it
// to the store.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}

	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return errors.New("audit publisher closed")
	}
	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events and waits for queued events to be written.
func (p *Publisher) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.closeMu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"action", string(event.Action),
				"event_id", event.ID.String(),
				"error", err,
			)
		}
	}
}
