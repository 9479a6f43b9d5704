// Package ledger defines the narrow runtime surface the contract executes
// against and the client surface off-ledger code uses to invoke it.
//
// Stub is a strict subset of shim.ChaincodeStubInterface, so a Fabric peer
// stub satisfies it unchanged; the in-memory runtime in ledger/memory
// implements the same surface for local networks and tests.
package ledger

import (
	"context"

	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Stub is the per-transaction state accessor.
type Stub interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	DelState(key string) error
	GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error)
	GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error)
	CreateCompositeKey(objectType string, attributes []string) (string, error)
	SplitCompositeKey(compositeKey string) (string, []string, error)
	GetTxID() string
	GetTxTimestamp() (*timestamppb.Timestamp, error)
	SetEvent(name string, payload []byte) error
}

// Identity exposes the already-authenticated submitter.
type Identity interface {
	GetMSPID() (string, error)
}

// TxContext bundles the stub and caller identity for one invocation.
type TxContext interface {
	GetStub() Stub
	GetClientIdentity() Identity
}

// Client invokes contract transactions by name with string arguments.
// Submit commits; Evaluate runs read-only against current state. Caller
// selects the submitting identity (an MSP id or a configured profile).
type Client interface {
	Submit(ctx context.Context, caller, name string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, caller, name string, args ...string) ([]byte, error)
}
