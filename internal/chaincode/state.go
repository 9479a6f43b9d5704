package chaincode

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"consentis/internal/ledger"
	"consentis/pkg/canonicaljson"
	dErrors "consentis/pkg/domain-errors"
)

const (
	isoMillis = "2006-01-02T15:04:05.000Z"

	// maxEpochMs bounds the inverted timestamp (year 2286).
	maxEpochMs = 9999999999999

	idxDidActive = "IDX:DID:ACTIVE"
)

// txClock is the transaction timestamp at millisecond precision.
type txClock struct {
	ms  int64
	iso string
}

func now(stub ledger.Stub) (txClock, error) {
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return txClock{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read transaction timestamp")
	}
	ms := ts.GetSeconds()*1000 + int64(math.Round(float64(ts.GetNanos())/1e6))
	return clockAt(ms), nil
}

func clockAt(ms int64) txClock {
	return txClock{ms: ms, iso: time.UnixMilli(ms).UTC().Format(isoMillis)}
}

func parseISO(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// invertedTimestamp encodes ms so that lexicographic order is newest first.
func invertedTimestamp(ms int64) string {
	return fmt.Sprintf("%013d", maxEpochMs-ms)
}

func activeIndexKey(stub ledger.Stub, creator, createdTimestamp, didID string) (string, error) {
	ms, err := parseISO(createdTimestamp)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "invalid createdTimestamp")
	}
	key, err := stub.CreateCompositeKey(idxDidActive, []string{creator, invertedTimestamp(ms), didID})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid index key")
	}
	return key, nil
}

func putRecord(stub ledger.Stub, key string, v any) error {
	b, err := canonicaljson.Marshal(v)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode record")
	}
	if err := stub.PutState(key, b); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write state")
	}
	return nil
}

// getRecord reads key into v, reporting false when the key is absent.
func getRecord(stub ledger.Stub, key string, v any) (bool, error) {
	b, err := stub.GetState(key)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read state")
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "stored record is corrupt")
	}
	return true, nil
}

func docTypeOf(b []byte) string {
	var head struct {
		DocType string `json:"docType"`
	}
	if json.Unmarshal(b, &head) != nil {
		return ""
	}
	return head.DocType
}

func ptr[T any](v T) *T { return &v }
