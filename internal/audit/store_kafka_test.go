package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentis/internal/platform/kafka/producer"
	"consentis/internal/platform/logger"
	"consentis/pkg/platform/circuit"
)

type fakeSink struct {
	mu   sync.Mutex
	fail bool
	msgs []*producer.Message
}

func (f *fakeSink) Produce(_ context.Context, msg *producer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestMirrorStoreCopiesEvents(t *testing.T) {
	local := NewInMemoryStore()
	sink := &fakeSink{}
	m := NewMirrorStore(local, sink, "consentis.audit", logger.Discard())

	ev := Event{Caller: "Org1MSP", Subject: "vc-1", Action: ActionAnchorCreated, Ledger: true}
	require.NoError(t, m.Append(context.Background(), ev))

	got, err := m.ListBySubject(context.Background(), "vc-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Len(t, sink.msgs, 1)
	msg := sink.msgs[0]
	assert.Equal(t, "consentis.audit", msg.Topic)
	assert.Equal(t, []byte("vc-1"), msg.Key)
	assert.Equal(t, "anchor_created", msg.Headers["action"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "Org1MSP", decoded["caller"])
	assert.Equal(t, true, decoded["ledger"])
	assert.NotContains(t, decoded, "reason")
}

func TestMirrorStoreKeepsLocalCopyWhenSinkFails(t *testing.T) {
	local := NewInMemoryStore()
	sink := &fakeSink{fail: true}
	m := NewMirrorStore(local, sink, "consentis.audit", logger.Discard(),
		WithMirrorBreaker(circuit.New("audit_mirror", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))),
	)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, Event{Subject: "did:fabric:1", Action: ActionDIDStored}))
	require.NoError(t, m.Health(ctx))
	require.NoError(t, m.Append(ctx, Event{Subject: "did:fabric:1", Action: ActionDIDRevoked}))
	require.Error(t, m.Health(ctx), "breaker opens after two failures")
	assert.Len(t, local.All(), 2)

	sink.fail = false
	require.NoError(t, m.Append(ctx, Event{Subject: "did:fabric:1", Action: ActionDIDStored}))
	require.NoError(t, m.Health(ctx))
	assert.Len(t, sink.msgs, 1)
}
