package service

import (
	"context"
	"encoding/json"
	"strings"

	"consentis/contracts/records"
	"consentis/internal/audit"
	"consentis/internal/chaincode"
	"consentis/internal/consent/models"
	"consentis/pkg/didkey"
	dErrors "consentis/pkg/domain-errors"
)

const (
	didContext         = "https://w3id.org/did/v1"
	ed25519KeyType     = "Ed25519VerificationKey2018"
	bbsKeyType         = "Bls12381G2Key2020"
	didCommServiceType = "did-communication"
	didCommV2Type      = "DIDCommMessaging"
)

// StoreDID registers or rotates DID key material.
func (s *Service) StoreDID(ctx context.Context, caller string, req models.StoreDIDRequest) (string, error) {
	bbs := ""
	if req.BbsPublicKeyBase58 != nil {
		bbs = *req.BbsPublicKeyBase58
	}
	out, err := s.submit(ctx, caller, chaincode.TxStoreDidKey, req.DidID, req.PublicKeyBase58, bbs, req.ServiceEndpoint)
	if err != nil {
		return "", err
	}
	s.didWritten(ctx, caller, req.DidID, "store", audit.ActionDIDStored)
	return string(out), nil
}

// StoreDIDDocument registers a DID backed by a full document.
func (s *Service) StoreDIDDocument(ctx context.Context, caller string, req models.StoreDIDDocumentRequest) (string, error) {
	out, err := s.submit(ctx, caller, chaincode.TxStoreDidDocument, req.DidID, string(req.Document))
	if err != nil {
		return "", err
	}
	s.didWritten(ctx, caller, req.DidID, "store_document", audit.ActionDIDStored)
	return string(out), nil
}

// ReadDID returns the registry record of did.
func (s *Service) ReadDID(ctx context.Context, caller, did string) (*records.DID, error) {
	out, err := s.evaluate(ctx, caller, chaincode.TxReadDidKey, did)
	if err != nil {
		return nil, err
	}
	return decode[records.DID](out, "DID record")
}

// RevokeDID terminally revokes did.
func (s *Service) RevokeDID(ctx context.Context, caller, did string) (string, error) {
	out, err := s.submit(ctx, caller, chaincode.TxRevokeDidKey, did)
	if err != nil {
		return "", err
	}
	s.didWritten(ctx, caller, did, "revoke", audit.ActionDIDRevoked)
	return string(out), nil
}

// LatestActiveDID returns the most recently created active DID of creator,
// an organization name such as "Org1".
func (s *Service) LatestActiveDID(ctx context.Context, caller, creator string) (*records.DID, error) {
	out, err := s.evaluate(ctx, caller, chaincode.TxLatestActiveDid, creator)
	if err != nil {
		return nil, err
	}
	return decode[records.DID](out, "DID record")
}

// ResolveDID builds the DID document of a did:fabric: or did:key:
// identifier from its registry record. Records stored as full documents are
// returned as stored.
func (s *Service) ResolveDID(ctx context.Context, caller, did string) (*models.ResolveResult, error) {
	if !strings.HasPrefix(did, "did:fabric:") && !strings.HasPrefix(did, "did:key:") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported_did")
	}
	record, err := s.ReadDID(ctx, caller, did)
	if err != nil {
		return nil, err
	}
	if len(record.DIDDocument) > 0 {
		return &models.ResolveResult{DIDDocument: record.DIDDocument}, nil
	}
	if record.PublicKeyBase58 == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "did_not_found_or_incomplete")
	}

	doc := buildDIDDocument(did, record)
	if record.ServiceEndpoint != "" {
		recipients := []string{record.PublicKeyBase58}
		didKey, err := didkey.FromVerkey(record.PublicKeyBase58)
		if err == nil {
			recipients = append(recipients, didKey)
		} else {
			s.logger.WarnContext(ctx, "verkey has no did:key form", "did", did, "error", err)
		}
		doc.Service = didCommServices(did, record.ServiceEndpoint, recipients, didKey)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode DID document")
	}
	return &models.ResolveResult{DIDDocument: raw}, nil
}

func buildDIDDocument(did string, record *records.DID) *models.DIDDocument {
	key := models.VerificationMethod{
		ID:              did + "#keys-1",
		Type:            ed25519KeyType,
		Controller:      did,
		PublicKeyBase58: record.PublicKeyBase58,
	}
	doc := &models.DIDDocument{
		Context:            didContext,
		ID:                 did,
		PublicKey:          []models.VerificationMethod{key},
		VerificationMethod: []models.VerificationMethod{key},
		Authentication:     []string{key.ID},
	}
	if record.BbsPublicKeyBase58 != nil && *record.BbsPublicKeyBase58 != "" {
		bbs := models.VerificationMethod{
			ID:              did + "#bbs-1",
			Type:            bbsKeyType,
			Controller:      did,
			PublicKeyBase58: *record.BbsPublicKeyBase58,
		}
		doc.PublicKey = append(doc.PublicKey, bbs)
		doc.VerificationMethod = append(doc.VerificationMethod, bbs)
		doc.AssertionMethod = []string{bbs.ID}
	}
	return doc
}

// didCommServices advertises the endpoint for DIDComm v1 (raw verkey and
// did:key recipients) and v2 (did:key only).
func didCommServices(did, endpoint string, recipients []string, didKey string) []models.Service {
	priority := 0
	services := []models.Service{{
		ID:              did + "#did-communication",
		Type:            didCommServiceType,
		Priority:        &priority,
		RecipientKeys:   recipients,
		RoutingKeys:     []string{},
		ServiceEndpoint: endpoint,
		Accept:          []string{"didcomm/aip2;env=rfc19", "didcomm/aip1", "didcomm/v2"},
	}}
	if didKey != "" {
		services = append(services, models.Service{
			ID:            did + "#didcomm-1",
			Type:          didCommV2Type,
			RecipientKeys: []string{didKey},
			RoutingKeys:   []string{},
			ServiceEndpoint: map[string]any{
				"uri":         endpoint,
				"accept":      []string{"didcomm/v2"},
				"routingKeys": []string{},
			},
		})
	}
	return services
}

func (s *Service) didWritten(ctx context.Context, caller, did, op string, action audit.Action) {
	if s.metrics != nil {
		s.metrics.IncrementDIDOperation(op)
	}
	s.emit(ctx, audit.Event{
		Caller:  caller,
		Subject: did,
		Action:  action,
		Ledger:  true,
	})
}
