package sync

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSerializesOneKey(t *testing.T) {
	m := NewShardedMutex()
	var inside, peak atomic.Int32
	hits := 0

	var wg sync.WaitGroup
	for range 64 {
		wg.Go(func() {
			_ = m.Do("8f4e9a", func() error {
				n := inside.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				hits++
				inside.Add(-1)
				return nil
			})
		})
	}
	wg.Wait()

	assert.Equal(t, 64, hits)
	assert.Equal(t, int32(1), peak.Load())
}

func TestDoReleasesOnError(t *testing.T) {
	m := NewShardedMutex()
	errSave := errors.New("save failed")
	require.ErrorIs(t, m.Do("8f4e9a", func() error { return errSave }), errSave)
	require.NoError(t, m.Do("8f4e9a", func() error { return nil }))
}

func TestEmptyKeyUsesFirstShard(t *testing.T) {
	m := NewShardedMutex()
	assert.Zero(t, m.shardFor(""))
	m.Lock("")
	m.Unlock("")
}

func TestPolicyHashesSpreadAcrossShards(t *testing.T) {
	m := NewShardedMutex()
	used := map[int]struct{}{}
	for i := range 64 {
		used[m.shardFor(fmt.Sprintf("%064x", i))] = struct{}{}
	}
	assert.Greater(t, len(used), shardCount/2)
}
