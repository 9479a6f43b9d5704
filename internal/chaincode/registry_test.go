package chaincode

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"consentis/contracts/records"
	dErrors "consentis/pkg/domain-errors"
)

type RegistrySuite struct {
	ContractSuite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) readDID(didID string) records.DID {
	raw, err := s.ledger.Evaluate(s.ctx, verifier, TxReadDidKey, didID)
	s.Require().NoError(err)
	var d records.DID
	s.Require().NoError(json.Unmarshal(raw, &d))
	return d
}

func (s *RegistrySuite) latest(creator string) (string, error) {
	raw, err := s.ledger.Evaluate(s.ctx, holder, TxLatestActiveDid, creator)
	if err != nil {
		return "", err
	}
	var d records.DID
	s.Require().NoError(json.Unmarshal(raw, &d))
	return d.DidID, nil
}

func (s *RegistrySuite) TestStoreDidKeyCreates() {
	key, bbs := s.verkey(), s.verkey()
	out := s.mustSubmit(issuer, TxStoreDidKey, "did:fabric:1", key, bbs, "https://agent.example/didcomm")
	s.Equal("DID for did:fabric:1 created.", string(out))

	d := s.readDID("did:fabric:1")
	s.Equal(records.DocTypeDID, d.DocType)
	s.Equal("Org1", d.Creator)
	s.False(d.Revoked)
	s.Equal(key, d.PublicKeyBase58)
	s.Equal(bbs, *d.BbsPublicKeyBase58)
	s.Equal("https://agent.example/didcomm", d.ServiceEndpoint)
	s.Equal("2025-01-01T00:00:00.000Z", d.CreatedTimestamp)
	s.Require().Len(d.AuditTrail, 1)
	s.Equal(records.DIDActionCreated, d.AuditTrail[0].Action)
	s.Equal(key, *d.AuditTrail[0].PublicKeyBase58)
}

func (s *RegistrySuite) TestStoreDidKeyRejections() {
	s.Run("issuer only", func() {
		_, err := s.submit(holder, TxStoreDidKey, "did:fabric:1", s.verkey(), "", "")
		s.requireCode(err, dErrors.CodeRoleDenied)
	})

	s.Run("bad base58", func() {
		_, err := s.submit(issuer, TxStoreDidKey, "did:fabric:1", "0OIl", "", "")
		s.requireCode(err, dErrors.CodeInvalidInput)
		_, err = s.submit(issuer, TxStoreDidKey, "did:fabric:1", s.verkey(), "0OIl", "")
		s.requireCode(err, dErrors.CodeInvalidInput)
	})

	s.Run("null BBS key is absent", func() {
		s.mustSubmit(issuer, TxStoreDidKey, "did:fabric:null", s.verkey(), "null", "")
		s.Nil(s.readDID("did:fabric:null").BbsPublicKeyBase58)
	})
}

func (s *RegistrySuite) TestRotation() {
	first, second := s.verkey(), s.verkey()
	bbs := s.verkey()
	s.mustSubmit(issuer, TxStoreDidKey, "did:fabric:1", first, bbs, "https://a")

	s.clock.Advance(time.Hour)
	out := s.mustSubmit(issuer, TxStoreDidKey, "did:fabric:1", second, "", "https://b")
	s.Equal("DID for did:fabric:1 updated.", string(out))

	d := s.readDID("did:fabric:1")
	s.Equal(second, d.PublicKeyBase58)
	s.Nil(d.BbsPublicKeyBase58)
	s.Equal("https://b", d.ServiceEndpoint)
	s.Equal("2025-01-01T00:00:00.000Z", d.CreatedTimestamp, "rotation keeps creation time")

	s.Require().Len(d.AuditTrail, 2)
	rot := d.AuditTrail[1]
	s.Equal(records.DIDActionRotated, rot.Action)
	s.Equal("2025-01-01T01:00:00.000Z", rot.Timestamp)
	s.Equal(first, *rot.PreviousPublicKeyBase58)
	s.Equal(bbs, *rot.PreviousBbsPublicKeyBase58)
	s.Equal("https://a", *rot.PreviousServiceEndpoint)
	s.Equal(second, *rot.PublicKeyBase58)
	s.Nil(rot.BbsPublicKeyBase58)

	id, err := s.latest("Org1")
	s.Require().NoError(err)
	s.Equal("did:fabric:1", id)

	s.Run("revoked DIDs cannot rotate", func() {
		s.mustSubmit(issuer, TxRevokeDidKey, "did:fabric:1")
		_, err := s.submit(issuer, TxStoreDidKey, "did:fabric:1", first, "", "")
		s.requireCode(err, dErrors.CodeDidRevoked)
	})
}

func (s *RegistrySuite) TestRevoke() {
	s.mustSubmit(issuer, TxStoreDidKey, "did:fabric:1", s.verkey(), "", "")

	s.Run("issuer only", func() {
		_, err := s.submit(verifier, TxRevokeDidKey, "did:fabric:1")
		s.requireCode(err, dErrors.CodeRoleDenied)
	})

	s.Run("revokes once", func() {
		s.clock.Advance(time.Minute)
		out := s.mustSubmit(issuer, TxRevokeDidKey, "did:fabric:1")
		s.Equal("DID key did:fabric:1 revoked at 2025-01-01T00:01:00.000Z", string(out))

		d := s.readDID("did:fabric:1")
		s.True(d.Revoked)
		s.Equal("2025-01-01T00:01:00.000Z", *d.RevokedTimestamp)
		s.Equal(records.DIDActionRevoked, d.AuditTrail[len(d.AuditTrail)-1].Action)

		_, err := s.submit(issuer, TxRevokeDidKey, "did:fabric:1")
		s.requireCode(err, dErrors.CodeAlreadyRevoked)
	})

	s.Run("missing DID", func() {
		_, err := s.submit(issuer, TxRevokeDidKey, "did:fabric:none")
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("read is public and verbatim", func() {
		raw, err := s.ledger.Evaluate(s.ctx, "AnyOrgMSP", TxReadDidKey, "did:fabric:1")
		s.Require().NoError(err)
		stored, _ := s.ledger.Get("did:fabric:1")
		s.Equal(stored, raw)
	})
}

func (s *RegistrySuite) TestActiveIndex() {
	s.mustSubmit(issuer, TxStoreDidKey, "d1", s.verkey(), "", "")
	s.clock.Advance(time.Millisecond)
	s.mustSubmit(issuer, TxStoreDidKey, "d2", s.verkey(), "", "")

	id, err := s.latest("Org1")
	s.Require().NoError(err)
	s.Equal("d2", id)

	s.mustSubmit(issuer, TxRevokeDidKey, "d2")
	id, err = s.latest("Org1")
	s.Require().NoError(err)
	s.Equal("d1", id)

	s.mustSubmit(issuer, TxRevokeDidKey, "d1")
	_, err = s.latest("Org1")
	s.requireCode(err, dErrors.CodeNoActiveDid)

	s.Run("creators are isolated", func() {
		_, err := s.latest("Org")
		s.requireCode(err, dErrors.CodeNoActiveDid)
	})
}

func (s *RegistrySuite) TestIndexKeyLayout() {
	s.mustSubmit(issuer, TxStoreDidKey, "d1", s.verkey(), "", "")
	key := "\x00IDX:DID:ACTIVE\x00Org1\x00" + invertedTimestamp(epoch.UnixMilli()) + "\x00d1\x00"
	v, ok := s.ledger.Get(key)
	s.Require().True(ok)
	s.NotEmpty(v)
	s.Equal("8264310399999", invertedTimestamp(epoch.UnixMilli()))
}

func (s *RegistrySuite) TestStoreDidDocument() {
	doc := `{"id":"did:fabric:doc","verificationMethod":[]}`
	out := s.mustSubmit(issuer, TxStoreDidDocument, "did:fabric:doc", doc)
	s.Equal("DID doc for did:fabric:doc created.", string(out))

	d := s.readDID("did:fabric:doc")
	s.JSONEq(doc, string(d.DIDDocument))
	s.Empty(d.PublicKeyBase58)

	id, err := s.latest("Org1")
	s.Require().NoError(err)
	s.Equal("did:fabric:doc", id)

	s.Run("rejections", func() {
		_, err := s.submit(issuer, TxStoreDidDocument, "did:fabric:doc", doc)
		s.requireCode(err, dErrors.CodeAlreadyExists)

		_, err = s.submit(issuer, TxStoreDidDocument, "did:fabric:x", `{"id":"did:fabric:y"}`)
		s.requireCode(err, dErrors.CodeInvalidInput)

		_, err = s.submit(issuer, TxStoreDidDocument, "did:fabric:x", `not json`)
		s.requireCode(err, dErrors.CodeInvalidInput)

		_, err = s.submit(holder, TxStoreDidDocument, "did:fabric:x", `{"id":"did:fabric:x"}`)
		s.requireCode(err, dErrors.CodeRoleDenied)
	})
}
