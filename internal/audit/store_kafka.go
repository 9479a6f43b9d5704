package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"consentis/internal/platform/kafka/producer"
	"consentis/pkg/platform/circuit"
)

// Sink receives mirrored events.
type Sink interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// MirrorStore appends to a local Store and copies every event to a Kafka
// topic keyed by subject. The local store stays authoritative: mirror
// failures are logged and counted by a breaker, never returned.
type MirrorStore struct {
	local   Store
	sink    Sink
	topic   string
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type MirrorOption func(*MirrorStore)

// WithMirrorBreaker replaces the default breaker.
func WithMirrorBreaker(b *circuit.Breaker) MirrorOption {
	return func(m *MirrorStore) { m.breaker = b }
}

// WithMirrorTimeout bounds each produce call. Default 5s.
func WithMirrorTimeout(d time.Duration) MirrorOption {
	return func(m *MirrorStore) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func NewMirrorStore(local Store, sink Sink, topic string, logger *slog.Logger, opts ...MirrorOption) *MirrorStore {
	m := &MirrorStore{
		local:   local,
		sink:    sink,
		topic:   topic,
		timeout: 5 * time.Second,
		breaker: circuit.New("audit_mirror"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MirrorStore) Append(ctx context.Context, event Event) error {
	if err := m.local.Append(ctx, event); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	msg := &producer.Message{
		Topic: m.topic,
		Key:   []byte(event.Subject),
		Value: value,
		Headers: map[string]string{
			"action": string(event.Action),
			"caller": event.Caller,
		},
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	switch tr, err := m.breaker.Do(func() error { return m.sink.Produce(pctx, msg) }); {
	case tr == circuit.Opened:
		m.logger.Warn("audit mirror unavailable, events kept locally only", "topic", m.topic, "error", err)
	case tr == circuit.Closed:
		m.logger.Info("audit mirror recovered", "topic", m.topic)
	case err != nil:
		m.logger.Debug("audit mirror produce failed", "subject", event.Subject, "error", err)
	}
	return nil
}

func (m *MirrorStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	return m.local.ListBySubject(ctx, subject)
}

// Health reports an error while the breaker is open.
func (m *MirrorStore) Health(context.Context) error {
	if m.breaker.State() == circuit.StateOpen {
		return fmt.Errorf("audit mirror to %s is failing", m.topic)
	}
	return nil
}
