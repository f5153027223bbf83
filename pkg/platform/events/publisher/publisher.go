// Package publisher emits runtime events synchronously or through a bounded
// async buffer.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"anagolay/pkg/domain"
	"anagolay/pkg/platform/events"
	"anagolay/pkg/platform/events/worker"
)

// ErrBufferFull is returned by Emit in async mode when the buffer has no room.
var ErrBufferFull = errors.New("event buffer full")

type Publisher struct {
	store  events.Store
	sinks  []events.Sink
	logger *slog.Logger
	now    func() time.Time

	bufferSize int
	inbox      chan events.Event
	worker     *worker.Worker
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

// WithSink forwards every event to sink in addition to the store.
func WithSink(sink events.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store events.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.worker = worker.NewWorker(store, nil, p.logger, p.sinks...)
	if p.bufferSize > 0 {
		p.inbox = make(chan events.Event, p.bufferSize)
		p.worker = worker.NewWorker(store, p.inbox, p.logger, p.sinks...)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			_ = p.worker.Run(context.Background())
		}()
	}
	return p
}

// Emit stamps the event with an ID and timestamp (when unset) and publishes it.
func (p *Publisher) Emit(ctx context.Context, event events.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}

	if p.inbox == nil {
		if err := p.store.Append(ctx, event); err != nil {
			return err
		}
		for _, sink := range p.sinks {
			if err := sink.Append(ctx, event); err != nil {
				p.logger.WarnContext(ctx, "failed to forward event to sink",
					"kind", string(event.Kind),
					"error", err,
				)
			}
		}
		return nil
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.WarnContext(ctx, "event buffer full, dropping event",
			"kind", string(event.Kind),
		)
		return ErrBufferFull
	}
}

// List returns the events recorded for account.
func (p *Publisher) List(ctx context.Context, account domain.AccountID) ([]events.Event, error) {
	return p.store.ListByAccount(ctx, account)
}

// Close drains the async buffer. It is safe to call more than once.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}
