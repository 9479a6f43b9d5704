package service

import (
	"cmp"
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "consentis/pkg/domain-errors"
	platformsync "consentis/pkg/platform/sync"
)

var (
	policyLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consentis_policy_shard_lock_wait_seconds",
		Help:    "Time spent waiting for the shard lock of a policy hash",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 9),
	})
	policyLockHeld = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consentis_policy_shard_lock_acquisitions_total",
		Help: "Policy shard locks acquired",
	})
)

// PolicyStoreTx serializes read-then-write sequences on one policy hash.
// Implementations may wrap a database transaction or, in-memory, a lock.
type PolicyStoreTx interface {
	RunInTx(ctx context.Context, policyHash string, fn func(store PolicyStore) error) error
}

const defaultPolicyTxTimeout = 5 * time.Second

// shardedPolicyTx makes "exists? then save" atomic per policy hash across
// goroutines of this process. It gives no guarantee across replicas; the
// stores' own insert-if-absent covers that.
type shardedPolicyTx struct {
	mu      *platformsync.ShardedMutex
	store   PolicyStore
	timeout time.Duration
}

func (t *shardedPolicyTx) RunInTx(ctx context.Context, policyHash string, fn func(store PolicyStore) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmp.Or(t.timeout, defaultPolicyTxTimeout))
		defer cancel()
	}
	if err := txAlive(ctx); err != nil {
		return err
	}

	waitFrom := time.Now()
	return t.mu.Do(policyHash, func() error {
		policyLockWait.Observe(time.Since(waitFrom).Seconds())
		policyLockHeld.Inc()
		// the wait may have outlived the caller
		if err := txAlive(ctx); err != nil {
			return err
		}
		return fn(t.store)
	})
}

func txAlive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "policy transaction aborted")
	}
	return nil
}
