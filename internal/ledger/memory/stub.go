package memory

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-protos-go-apiv2/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	compositeKeyNamespace = "\x00"
	minUnicodeRuneValue   = 0
	maxUnicodeRuneValue   = utf8.MaxRune
	emptyKeySubstitute    = "\x01"
)

// rangeRead records a scan so it can be replayed at commit time.
type rangeRead struct {
	start, end string
	results    []readVersion
}

type readVersion struct {
	key     string
	version uint64
}

// stub simulates one transaction against committed state. Reads record the
// version they saw; writes are buffered until commit.
type stub struct {
	ledger    *Ledger
	txID      string
	timestamp time.Time

	reads    map[string]uint64
	ranges   []rangeRead
	writes   map[string][]byte // nil value marks a delete
	event    *Event
	openIter int
}

func (s *stub) GetTxID() string { return s.txID }

func (s *stub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.timestamp), nil
}

func (s *stub) GetState(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key must not be an empty string")
	}
	if v, ok := s.writes[key]; ok {
		return v, nil
	}
	val, ver := s.ledger.read(key)
	if _, seen := s.reads[key]; !seen {
		s.reads[key] = ver
	}
	return val, nil
}

// PutState buffers a write. As on a Fabric peer, an empty value is
// recorded as a delete, so index entries need a non-empty marker value.
func (s *stub) PutState(key string, value []byte) error {
	if key == "" {
		return errors.New("key must not be an empty string")
	}
	if len(value) == 0 {
		s.writes[key] = nil
		return nil
	}
	s.writes[key] = bytes.Clone(value)
	return nil
}

func (s *stub) DelState(key string) error {
	if key == "" {
		return errors.New("key must not be an empty string")
	}
	s.writes[key] = nil
	return nil
}

func (s *stub) SetEvent(name string, payload []byte) error {
	if name == "" {
		return errors.New("event name can not be empty string")
	}
	s.event = &Event{Name: name, Payload: append([]byte(nil), payload...)}
	return nil
}

// GetStateByRange scans simple keys in [startKey, endKey). An empty start
// skips composite keys; an empty end is unbounded. Results reflect committed
// state only, as on a Fabric peer.
func (s *stub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	if startKey == "" {
		startKey = emptyKeySubstitute
	}
	for _, k := range []string{startKey, endKey} {
		if strings.HasPrefix(k, compositeKeyNamespace) {
			return nil, fmt.Errorf("range key %q must not be a composite key", k)
		}
	}
	return s.scan(startKey, endKey), nil
}

func (s *stub) GetStateByPartialCompositeKey(objectType string, attributes []string) (shim.StateQueryIteratorInterface, error) {
	start, err := s.CreateCompositeKey(objectType, attributes)
	if err != nil {
		return nil, err
	}
	return s.scan(start, start+string(rune(maxUnicodeRuneValue))), nil
}

func (s *stub) scan(start, end string) *iterator {
	kvs, versions := s.ledger.scan(start, end)
	s.ranges = append(s.ranges, rangeRead{start: start, end: end, results: versions})
	s.openIter++
	return &iterator{items: kvs, onClose: func() { s.openIter-- }}
}

// CreateCompositeKey uses the Fabric encoding: a 0x00 namespace byte, then
// the object type and every attribute each followed by 0x00.
func (s *stub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	if err := validateCompositeKeyAttribute(objectType); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(compositeKeyNamespace)
	b.WriteString(objectType)
	b.WriteRune(minUnicodeRuneValue)
	for _, att := range attributes {
		if err := validateCompositeKeyAttribute(att); err != nil {
			return "", err
		}
		b.WriteString(att)
		b.WriteRune(minUnicodeRuneValue)
	}
	return b.String(), nil
}

func (s *stub) SplitCompositeKey(compositeKey string) (string, []string, error) {
	if !strings.HasPrefix(compositeKey, compositeKeyNamespace) {
		return "", nil, fmt.Errorf("%q is not a composite key", compositeKey)
	}
	parts := strings.Split(compositeKey[1:], string(rune(minUnicodeRuneValue)))
	if len(parts) < 2 || parts[len(parts)-1] != "" {
		return "", nil, fmt.Errorf("malformed composite key %q", compositeKey)
	}
	parts = parts[:len(parts)-1]
	return parts[0], parts[1:], nil
}

func validateCompositeKeyAttribute(str string) error {
	if !utf8.ValidString(str) {
		return fmt.Errorf("not a valid utf8 string: [%x]", str)
	}
	for index, runeValue := range str {
		if runeValue == minUnicodeRuneValue || runeValue == maxUnicodeRuneValue {
			return fmt.Errorf("input contains unicode %#U starting at position [%d]. %#U and %#U are not allowed in the input attribute of a composite key",
				runeValue, index, minUnicodeRuneValue, maxUnicodeRuneValue)
		}
	}
	return nil
}

// iterator is a materialized result set. Callers must Close it.
type iterator struct {
	items   []*queryresult.KV
	pos     int
	closed  bool
	onClose func()
}

func (it *iterator) HasNext() bool {
	return !it.closed && it.pos < len(it.items)
}

func (it *iterator) Next() (*queryresult.KV, error) {
	if it.closed {
		return nil, errors.New("iterator is closed")
	}
	if it.pos >= len(it.items) {
		return nil, errors.New("no more items")
	}
	kv := it.items[it.pos]
	it.pos++
	return kv, nil
}

func (it *iterator) Close() error {
	if !it.closed {
		it.closed = true
		it.onClose()
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
