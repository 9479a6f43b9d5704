package chaincode

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/suite"

	"consentis/contracts/records"
	"consentis/internal/ledger/memory"
	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/edkeys"
)

const (
	issuer   = "Org1MSP"
	holder   = "Org2MSP"
	verifier = "Org3MSP"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// ContractSuite runs the contract on the in-memory ledger with a manual clock.
type ContractSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *memory.ManualClock
	ledger   *memory.Ledger
	contract *Contract
}

func (s *ContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = memory.NewManualClock(epoch)
	s.contract = New()
	s.ledger = memory.New(s.contract, memory.WithClock(s.clock.Now))
}

func (s *ContractSuite) submit(caller, fn string, args ...string) ([]byte, error) {
	return s.ledger.Submit(s.ctx, caller, fn, args...)
}

func (s *ContractSuite) mustSubmit(caller, fn string, args ...string) []byte {
	out, err := s.submit(caller, fn, args...)
	s.Require().NoError(err, "%s failed", fn)
	return out
}

func (s *ContractSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Require().True(dErrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func (s *ContractSuite) newKey(kt edkeys.KeyType) (edkeys.PrivateKey, string) {
	priv, err := edkeys.GenerateKey(kt, rand.Reader)
	s.Require().NoError(err)
	text, err := priv.Public().PEM()
	s.Require().NoError(err)
	return priv, text
}

func (s *ContractSuite) verkey() string {
	priv, _ := s.newKey(edkeys.Ed25519)
	return base58.Encode(priv.Public().Key)
}

type anchorArgs struct {
	assetID    string
	pem        string
	duration   string
	assurance  string
	purposes   []string
	operations []string
}

func (s *ContractSuite) createAnchor(a anchorArgs) error {
	if a.duration == "" {
		a.duration = strconv.Itoa(30 * 24 * 3600)
	}
	p, err := json.Marshal(a.purposes)
	s.Require().NoError(err)
	o, err := json.Marshal(a.operations)
	s.Require().NoError(err)
	_, err = s.submit(issuer, TxCreateVcAnchor, a.assetID, a.pem, "policy-hash", "template-hash", a.duration, a.assurance, string(p), string(o))
	return err
}

// seedAnchor creates an Ed25519-bound anchor allowing research/analytics
// purposes and read/aggregate operations.
func (s *ContractSuite) seedAnchor(assetID string) edkeys.PrivateKey {
	priv, pem := s.newKey(edkeys.Ed25519)
	s.Require().NoError(s.createAnchor(anchorArgs{
		assetID:    assetID,
		pem:        pem,
		assurance:  "AL2",
		purposes:   []string{"Research", "analytics"},
		operations: []string{"read", "aggregate"},
	}))
	return priv
}

func (s *ContractSuite) readAnchor(assetID string) records.VcAnchor {
	var a records.VcAnchor
	raw, err := s.ledger.Evaluate(s.ctx, issuer, TxReadVcAnchor, assetID)
	s.Require().NoError(err)
	s.Require().NoError(json.Unmarshal(raw, &a))
	return a
}

func (s *ContractSuite) storedAnchor(assetID string) records.VcAnchor {
	raw, ok := s.ledger.Get(assetID)
	s.Require().True(ok)
	var a records.VcAnchor
	s.Require().NoError(json.Unmarshal(raw, &a))
	return a
}

func (s *ContractSuite) access(assetID, req string) records.AccessDecision {
	var d records.AccessDecision
	s.Require().NoError(json.Unmarshal(s.mustSubmit(verifier, TxVerifyAndLogAccess, assetID, req), &d))
	return d
}

func (s *ContractSuite) revokeSignature(priv edkeys.PrivateKey, assetID string) string {
	created := s.storedAnchor(assetID).CreatedTimestamp
	return priv.SignBase64(edkeys.RevocationMessage(assetID, created))
}

func (s *ContractSuite) publicPEM(priv edkeys.PrivateKey) string {
	text, err := priv.Public().PEM()
	s.Require().NoError(err)
	return text
}

// SetupLedgerWith replaces the ledger with a fresh one running c.
func (s *ContractSuite) SetupLedgerWith(c *Contract) {
	s.ledger = memory.New(c, memory.WithClock(s.clock.Now))
}
