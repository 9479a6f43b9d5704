package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingStore struct {
	*InMemoryStore
	release chan struct{}
}

func (b *blockingStore) Append(ctx context.Context, ev Event) error {
	<-b.release
	return b.InMemoryStore.Append(ctx, ev)
}

func TestPublisherSyncStampsTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	fixed := time.Date(2026, 4, 1, 9, 0, 0, 0, time.FixedZone("X", 7200))
	p := NewPublisher(store, WithPublisherClock(func() time.Time { return fixed }))

	require.NoError(t, p.Emit(context.Background(), Event{Subject: "vc-1", Action: ActionAnchorCreated}))
	got, err := p.List(context.Background(), "vc-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fixed.UTC(), got[0].Timestamp)
	p.Close()
}

func TestPublisherAsyncDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	p := NewPublisher(store, WithAsyncBuffer(8))
	for range 5 {
		require.NoError(t, p.Emit(context.Background(), Event{Subject: "vc-1", Action: ActionAccessVerified}))
	}
	p.Close()
	p.Close()
	assert.Len(t, store.All(), 5)
	assert.Zero(t, p.Dropped())
}

func TestPublisherAsyncDropsWhenFull(t *testing.T) {
	store := &blockingStore{InMemoryStore: NewInMemoryStore(), release: make(chan struct{})}
	p := NewPublisher(store, WithAsyncBuffer(1))

	// the drain goroutine may hold one event while blocked, the queue holds one more
	for range 4 {
		require.NoError(t, p.Emit(context.Background(), Event{Subject: "vc-1"}))
	}
	assert.GreaterOrEqual(t, p.Dropped(), uint64(2))

	close(store.release)
	p.Close()
	assert.Equal(t, 4, len(store.All())+int(p.Dropped()))
}
