package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pidgate/pkg/domain"
)

// Sink receives entries after they are durably stored, e.g. a Kafka topic
// feeding downstream compliance tooling.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Publisher records audit entries. Emit returns only after the store has
// accepted the entry; fan-out to the sink happens in the background and
// never blocks or fails the caller.
type Publisher struct {
	store  Store
	queue  chan Entry
	logger *slog.Logger
	now    func() time.Time
}

type PublisherOption func(*Publisher)

// WithQueue enables sink fan-out through a buffered queue of the given size.
// Entries are dropped, and logged, when the queue is full.
func WithQueue(size int) PublisherOption {
	return func(p *Publisher) {
		p.queue = make(chan Entry, size)
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit assigns an id and timestamp if missing and appends the entry.
func (p *Publisher) Emit(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID.IsNil() {
		entry.ID = domain.NewAuditEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = p.now().UTC()
	}
	if err := p.store.Append(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	if p.queue != nil {
		select {
		case p.queue <- entry:
		default:
			p.logger.WarnContext(ctx, "audit sink queue full, entry not forwarded", "audit_id", entry.ID.String())
		}
	}
	return entry, nil
}

func (p *Publisher) ListByPID(ctx context.Context, pid string) ([]Entry, error) {
	return p.store.ListByPID(ctx, pid)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	return p.store.ListRecent(ctx, limit)
}

// Queue exposes the fan-out queue for a Worker. It is nil unless WithQueue
// was given.
func (p *Publisher) Queue() <-chan Entry {
	return p.queue
}
