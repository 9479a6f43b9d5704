package chaincode

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "consentis/pkg/domain-errors"
)

type DispatchSuite struct {
	ContractSuite
}

func TestDispatchSuite(t *testing.T) {
	suite.Run(t, new(DispatchSuite))
}

func (s *DispatchSuite) TestUnknownTransaction() {
	_, err := s.submit(issuer, "DeleteEverything")
	s.requireCode(err, dErrors.CodeBadRequest)
}

func (s *DispatchSuite) TestArity() {
	cases := map[string][]string{
		TxStoreDidKey:        {"a", "b"},
		TxReadDidKey:         {},
		TxCreateVcAnchor:     {"a", "b", "c", "d"},
		TxRevokeVc:           {"a", "b"},
		TxGetAllVcAnchors:    {"extra"},
		TxVerifyAndLogAccess: {"a"},
	}
	for fn, args := range cases {
		s.Run(fn, func() {
			_, err := s.submit(issuer, fn, args...)
			s.requireCode(err, dErrors.CodeBadRequest)
		})
	}
}

func (s *DispatchSuite) TestAssetExists() {
	s.Equal("false", string(s.mustSubmit(verifier, TxAssetExists, "consent-1")))
	s.seedAnchor("consent-1")
	s.Equal("true", string(s.mustSubmit(verifier, TxAssetExists, "consent-1")))
}

func (s *DispatchSuite) TestTypedExistence() {
	s.seedAnchor("consent-1")
	s.mustSubmit(issuer, TxStoreDidKey, "did:fabric:1", s.verkey(), "", "")

	s.Equal("true", string(s.mustSubmit(verifier, TxAnchorExists, "consent-1")))
	s.Equal("false", string(s.mustSubmit(verifier, TxDidExists, "consent-1")))
	s.Equal("true", string(s.mustSubmit(verifier, TxDidExists, "did:fabric:1")))
	s.Equal("false", string(s.mustSubmit(verifier, TxAnchorExists, "did:fabric:1")))
	s.Equal("false", string(s.mustSubmit(verifier, TxDidExists, "did:fabric:2")))
}

func (s *DispatchSuite) TestOptionalAnchorArguments() {
	_, pem := s.newKey("ed25519")
	s.mustSubmit(issuer, TxCreateVcAnchor, "bare", pem, "p", "t", "60")

	a := s.readAnchor("bare")
	s.Empty(a.AssuranceLevel)
	s.Empty(a.AllowedPurposeHash)
	s.Empty(a.AllowedOperationHash)

	d := s.access("bare", `{"purpose":"anything"}`)
	s.False(d.Result)
}

func (s *DispatchSuite) TestCustomRoleMapping() {
	s.contract = New(WithRoleMSPs(map[string]Role{"IssuerMSP": RoleIssuer}))
	s.SetupLedgerWith(s.contract)

	s.mustSubmit("IssuerMSP", TxStoreDidKey, "did:x", s.verkey(), "")
	_, err := s.submit(issuer, TxStoreDidKey, "did:y", s.verkey(), "")
	s.requireCode(err, dErrors.CodeRoleDenied)

	id, err := s.ledger.Evaluate(s.ctx, "IssuerMSP", TxLatestActiveDid, "Issuer")
	s.Require().NoError(err)
	s.Contains(string(id), `"didID":"did:x"`)
}
