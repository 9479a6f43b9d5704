// Package memory is a single-process ledger runtime with Fabric semantics:
// transactions are simulated against committed state, then validated with
// multi-version concurrency control at commit. Reads whose version moved and
// range scans whose result set changed (phantoms) invalidate the
// transaction.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/fabric-protos-go-apiv2/ledger/queryresult"

	"consentis/internal/ledger"
	dErrors "consentis/pkg/domain-errors"
)

// Chaincode dispatches a named transaction.
type Chaincode interface {
	Invoke(ctx ledger.TxContext, fn string, args []string) ([]byte, error)
}

// Event is a chaincode event delivered after its transaction commits.
type Event struct {
	TxID        string
	BlockNumber uint64
	Name        string
	Payload     []byte
}

type versioned struct {
	value   []byte
	version uint64
}

// Ledger holds the committed world state.
type Ledger struct {
	mu     sync.RWMutex
	state  map[string]versioned
	height uint64

	chaincode Chaincode
	clock     func() time.Time
	logger    *slog.Logger
	metrics   *Metrics

	subMu sync.Mutex
	subs  map[int]chan Event
	subID int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the source of transaction timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates an empty ledger running cc.
func New(cc Chaincode, opts ...Option) *Ledger {
	l := &Ledger{
		state:     make(map[string]versioned),
		chaincode: cc,
		clock:     time.Now,
		logger:    slog.Default(),
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Proposal is a simulated, not yet committed, transaction.
type Proposal struct {
	TxID     string
	Function string
	Payload  []byte
	sim      *stub
}

// Simulate executes fn as caller without committing.
func (l *Ledger) Simulate(ctx context.Context, caller, fn string, args ...string) (*Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "invocation cancelled")
	}
	s := &stub{
		ledger:    l,
		txID:      newTxID(caller),
		timestamp: l.clock().UTC(),
		reads:     make(map[string]uint64),
		writes:    make(map[string][]byte),
	}
	payload, err := l.chaincode.Invoke(&txContext{stub: s, identity: identity(caller)}, fn, args)
	if err == nil && s.openIter != 0 {
		err = dErrors.New(dErrors.CodeInternal, "transaction left a query iterator open")
	}
	if err != nil {
		l.metrics.observeTx(fn, "rejected")
		l.logger.DebugContext(ctx, "transaction rejected", "tx", s.txID, "function", fn, "error", err)
		return nil, err
	}
	return &Proposal{TxID: s.txID, Function: fn, Payload: payload, sim: s}, nil
}

// Commit validates p against current state and applies its writes.
func (l *Ledger) Commit(ctx context.Context, p *Proposal) error {
	l.mu.Lock()
	if err := l.validate(p.sim); err != nil {
		l.mu.Unlock()
		l.metrics.observeTx(p.Function, "mvcc_conflict")
		l.logger.InfoContext(ctx, "transaction invalidated", "tx", p.TxID, "function", p.Function, "error", err)
		return err
	}
	l.height++
	block := l.height
	for _, key := range sortedKeys(p.sim.writes) {
		value := p.sim.writes[key]
		if value == nil {
			delete(l.state, key)
			continue
		}
		l.state[key] = versioned{value: value, version: block}
	}
	l.mu.Unlock()

	l.metrics.observeTx(p.Function, "committed")
	l.metrics.setHeight(block)
	if ev := p.sim.event; ev != nil {
		l.publish(Event{TxID: p.TxID, BlockNumber: block, Name: ev.Name, Payload: ev.Payload})
	}
	return nil
}

// Submit simulates and commits in one step.
func (l *Ledger) Submit(ctx context.Context, caller, name string, args ...string) ([]byte, error) {
	p, err := l.Simulate(ctx, caller, name, args...)
	if err != nil {
		return nil, err
	}
	if err := l.Commit(ctx, p); err != nil {
		return nil, err
	}
	return p.Payload, nil
}

// Evaluate simulates and discards writes.
func (l *Ledger) Evaluate(ctx context.Context, caller, name string, args ...string) ([]byte, error) {
	p, err := l.Simulate(ctx, caller, name, args...)
	if err != nil {
		return nil, err
	}
	return p.Payload, nil
}

// Height is the number of committed transactions.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// Get returns the committed value of key.
func (l *Ledger) Get(key string) ([]byte, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.state[key]
	return v.value, ok
}

// Subscribe delivers committed chaincode events. Slow subscribers miss
// events once their buffer is full. Call the returned func to unsubscribe.
func (l *Ledger) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	l.subMu.Lock()
	id := l.subID
	l.subID++
	l.subs[id] = ch
	l.subMu.Unlock()
	return ch, func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
	}
}

func (l *Ledger) publish(ev Event) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			l.logger.Warn("dropping chaincode event for slow subscriber", "tx", ev.TxID, "event", ev.Name)
		}
	}
}

var errMVCC = dErrors.New(dErrors.CodeConflict, "MVCC_READ_CONFLICT")

func (l *Ledger) validate(s *stub) error {
	for key, ver := range s.reads {
		if l.state[key].version != ver {
			return dErrors.Wrap(errMVCC, dErrors.CodeConflict, "read conflict on "+printable(key))
		}
	}
	for _, r := range s.ranges {
		_, now := l.scanLocked(r.start, r.end)
		if !slices.Equal(now, r.results) {
			return dErrors.Wrap(errMVCC, dErrors.CodeConflict, "phantom read conflict")
		}
	}
	return nil
}

func (l *Ledger) read(key string) ([]byte, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.state[key]
	if !ok {
		return nil, 0
	}
	return bytes.Clone(v.value), v.version
}

func (l *Ledger) scan(start, end string) ([]*queryresult.KV, []readVersion) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scanLocked(start, end)
}

func (l *Ledger) scanLocked(start, end string) ([]*queryresult.KV, []readVersion) {
	keys := make([]string, 0)
	for k := range l.state {
		if k >= start && (end == "" || k < end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	kvs := make([]*queryresult.KV, 0, len(keys))
	versions := make([]readVersion, 0, len(keys))
	for _, k := range keys {
		v := l.state[k]
		kvs = append(kvs, &queryresult.KV{Key: k, Value: bytes.Clone(v.value)})
		versions = append(versions, readVersion{key: k, version: v.version})
	}
	return kvs, versions
}

func newTxID(caller string) string {
	nonce := uuid.New()
	sum := sha256.Sum256(append(nonce[:], caller...))
	return hex.EncodeToString(sum[:])
}

func printable(key string) string {
	return string(bytes.ReplaceAll([]byte(key), []byte{0}, []byte{'|'}))
}

type identity string

func (i identity) GetMSPID() (string, error) {
	if i == "" {
		return "", errors.New("no client identity")
	}
	return string(i), nil
}

type txContext struct {
	stub     *stub
	identity identity
}

func (c *txContext) GetStub() ledger.Stub               { return c.stub }
func (c *txContext) GetClientIdentity() ledger.Identity { return c.identity }

var _ ledger.Client = (*Ledger)(nil)
