package audit

import (
	"context"
	"log/slog"
)

// Worker forwards queued entries to a sink. Sink failures are logged and
// skipped: the entry is already in the store, which stays authoritative.
type Worker struct {
	sink   Sink
	inbox  <-chan Entry
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Entry, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.ErrorContext(ctx, "audit sink publish failed",
					"audit_id", entry.ID.String(),
					"error", err,
				)
			}
		}
	}
}
