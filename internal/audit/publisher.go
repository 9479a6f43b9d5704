package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher hands events to a Store, either inline or through a bounded
// queue drained by one goroutine. A full queue drops the event rather than
// stall the request that produced it.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	queue   chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer queues up to size events for background persistence.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan Event, size)
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// WithPublisherClock stamps events that arrive without a timestamp.
func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer close(p.done)
	for ev := range p.queue {
		if err := p.store.Append(context.Background(), ev); err != nil {
			p.warn("audit append failed", ev, err)
		}
	}
}

// Emit records ev. In async mode it never blocks and never fails.
func (p *Publisher) Emit(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now().UTC()
	}
	if p.queue == nil {
		return p.store.Append(ctx, ev)
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
		p.warn("audit queue full, event dropped", ev, nil)
	}
	return nil
}

// Dropped counts events discarded because the queue was full.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Close stops accepting queued events and waits for the queue to drain.
// Emit must not be called after Close in async mode.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.once.Do(func() {
		close(p.queue)
		<-p.done
	})
}

// List returns the events recorded for subject.
func (p *Publisher) List(ctx context.Context, subject string) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

func (p *Publisher) warn(msg string, ev Event, err error) {
	if p.logger == nil {
		return
	}
	attrs := []any{"action", ev.Action, "subject", ev.Subject}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	p.logger.Warn(msg, attrs...)
}
