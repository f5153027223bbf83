package worker

import (
	"context"
	"log/slog"

	"anagolay/pkg/platform/events"
)

// Worker drains events from a channel into a store and any extra sinks. The
// publisher runs one in async mode; it stops when the inbox is closed.
type Worker struct {
	store  events.Store
	sinks  []events.Sink
	inbox  <-chan events.Event
	logger *slog.Logger
}

func NewWorker(store events.Store, inbox <-chan events.Event, logger *slog.Logger, sinks ...events.Sink) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, sinks: sinks, inbox: inbox, logger: logger}
}

// Run processes events until the inbox is closed or ctx is cancelled. Store
// failures are logged and do not stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.Deliver(ctx, event)
		}
	}
}

// Deliver writes one event to the store and every sink.
func (w *Worker) Deliver(ctx context.Context, event events.Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to persist event",
			"kind", string(event.Kind),
			"error", err,
		)
	}
	for _, sink := range w.sinks {
		if err := sink.Append(ctx, event); err != nil {
			w.logger.WarnContext(ctx, "failed to forward event to sink",
				"kind", string(event.Kind),
				"error", err,
			)
		}
	}
}
