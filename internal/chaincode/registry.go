package chaincode

import (
	"encoding/json"
	"fmt"
	"strings"

	"consentis/contracts/records"
	"consentis/internal/ledger"
	"consentis/pkg/didkey"
	dErrors "consentis/pkg/domain-errors"
)

// AssetExists reports whether any record is stored under id.
func (c *Contract) AssetExists(ctx ledger.TxContext, id string) (bool, error) {
	b, err := ctx.GetStub().GetState(id)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read state")
	}
	return len(b) > 0, nil
}

// AnchorExists reports whether id holds a consent anchor.
func (c *Contract) AnchorExists(ctx ledger.TxContext, id string) (bool, error) {
	return c.existsAs(ctx, id, records.DocTypeVcAnchor)
}

// DidExists reports whether id holds a DID record.
func (c *Contract) DidExists(ctx ledger.TxContext, id string) (bool, error) {
	return c.existsAs(ctx, id, records.DocTypeDID)
}

func (c *Contract) existsAs(ctx ledger.TxContext, id, docType string) (bool, error) {
	b, err := ctx.GetStub().GetState(id)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read state")
	}
	return len(b) > 0 && docTypeOf(b) == docType, nil
}

// StoreDidKey creates a DID key record or rotates the key material of an
// existing, unrevoked one. Rotation keeps the creation time and therefore the
// record's position in the active index. An empty or "null" bbsPublicKey means
// no BBS key.
func (c *Contract) StoreDidKey(ctx ledger.TxContext, didID, publicKeyBase58, bbsPublicKeyBase58, serviceEndpoint string) (string, error) {
	who, err := c.require(ctx, RoleIssuer, "Only an issuer can store a DID key")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(didID) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "didID is required")
	}
	if !didkey.ValidBase58(publicKeyBase58) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "publicKeyBase58 must be base58 encoded")
	}
	var bbs *string
	if bbsPublicKeyBase58 != "" && bbsPublicKeyBase58 != "null" {
		if !didkey.ValidBase58(bbsPublicKeyBase58) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "bbsPublicKeyBase58 must be base58 encoded")
		}
		bbs = ptr(bbsPublicKeyBase58)
	}

	stub := ctx.GetStub()
	clock, err := now(stub)
	if err != nil {
		return "", err
	}

	var existing records.DID
	found, err := getRecord(stub, didID, &existing)
	if err != nil {
		return "", err
	}
	if found {
		if existing.DocType != records.DocTypeDID {
			return "", dErrors.New(dErrors.CodeAlreadyExists, fmt.Sprintf("%s is not a DID record", didID))
		}
		if existing.Revoked {
			return "", dErrors.New(dErrors.CodeDidRevoked, "DID key is revoked.")
		}
		existing.AuditTrail = append(existing.AuditTrail, records.DIDAuditEvent{
			Timestamp:                  clock.iso,
			TxID:                       stub.GetTxID(),
			Action:                     records.DIDActionRotated,
			PublicKeyBase58:            ptr(publicKeyBase58),
			BbsPublicKeyBase58:         bbs,
			ServiceEndpoint:            ptr(serviceEndpoint),
			PreviousPublicKeyBase58:    ptr(existing.PublicKeyBase58),
			PreviousBbsPublicKeyBase58: existing.BbsPublicKeyBase58,
			PreviousServiceEndpoint:    ptr(existing.ServiceEndpoint),
		})
		existing.PublicKeyBase58 = publicKeyBase58
		existing.BbsPublicKeyBase58 = bbs
		existing.ServiceEndpoint = serviceEndpoint
		if err := putRecord(stub, didID, existing); err != nil {
			return "", err
		}
		c.logger.Debug("did rotated", "did", didID, "tx", stub.GetTxID())
		return fmt.Sprintf("DID for %s updated.", didID), nil
	}

	record := records.DID{
		DocType:            records.DocTypeDID,
		DidID:              didID,
		Creator:            who.Org,
		CreatedTimestamp:   clock.iso,
		PublicKeyBase58:    publicKeyBase58,
		BbsPublicKeyBase58: bbs,
		ServiceEndpoint:    serviceEndpoint,
		AuditTrail: []records.DIDAuditEvent{{
			Timestamp:          clock.iso,
			TxID:               stub.GetTxID(),
			Action:             records.DIDActionCreated,
			Revoked:            ptr(false),
			PublicKeyBase58:    ptr(publicKeyBase58),
			BbsPublicKeyBase58: bbs,
			ServiceEndpoint:    ptr(serviceEndpoint),
		}},
	}
	if err := c.createDID(stub, record); err != nil {
		return "", err
	}
	return fmt.Sprintf("DID for %s created.", didID), nil
}

// StoreDidDocument registers a DID whose key material lives in a full DID
// document. The document's id must equal didID.
func (c *Contract) StoreDidDocument(ctx ledger.TxContext, didID, didDocJSON string) (string, error) {
	who, err := c.require(ctx, RoleIssuer, "Only an issuer can store a DID doc")
	if err != nil {
		return "", err
	}
	stub := ctx.GetStub()
	exists, err := c.AssetExists(ctx, didID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", dErrors.New(dErrors.CodeAlreadyExists, fmt.Sprintf("DID %s already exists", didID))
	}

	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(didDocJSON), &doc); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "Invalid didDocJson")
	}
	if doc.ID == "" || doc.ID != didID {
		return "", dErrors.New(dErrors.CodeInvalidInput, "didDocument.id must match didID")
	}

	clock, err := now(stub)
	if err != nil {
		return "", err
	}
	record := records.DID{
		DocType:          records.DocTypeDID,
		DidID:            didID,
		Creator:          who.Org,
		CreatedTimestamp: clock.iso,
		DIDDocument:      json.RawMessage(didDocJSON),
		AuditTrail: []records.DIDAuditEvent{{
			Timestamp: clock.iso,
			TxID:      stub.GetTxID(),
			Action:    records.DIDActionCreated,
			Revoked:   ptr(false),
		}},
	}
	if err := c.createDID(stub, record); err != nil {
		return "", err
	}
	return fmt.Sprintf("DID doc for %s created.", didID), nil
}

func (c *Contract) createDID(stub ledger.Stub, record records.DID) error {
	idx, err := activeIndexKey(stub, record.Creator, record.CreatedTimestamp, record.DidID)
	if err != nil {
		return err
	}
	if err := putRecord(stub, record.DidID, record); err != nil {
		return err
	}
	if err := stub.PutState(idx, []byte{0}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write index")
	}
	c.logger.Debug("did created", "did", record.DidID, "tx", stub.GetTxID())
	return nil
}

// ReadDidKey returns the stored DID record bytes verbatim.
func (c *Contract) ReadDidKey(ctx ledger.TxContext, didID string) ([]byte, error) {
	b, err := ctx.GetStub().GetState(didID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read state")
	}
	if len(b) == 0 || docTypeOf(b) != records.DocTypeDID {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("DID key %s does not exist", didID))
	}
	return b, nil
}

// RevokeDidKey terminally revokes a DID and drops it from the active index.
func (c *Contract) RevokeDidKey(ctx ledger.TxContext, didID string) (string, error) {
	if _, err := c.require(ctx, RoleIssuer, "Only an issuer can revoke a DID key"); err != nil {
		return "", err
	}
	stub := ctx.GetStub()
	var record records.DID
	found, err := getRecord(stub, didID, &record)
	if err != nil {
		return "", err
	}
	if !found || record.DocType != records.DocTypeDID {
		return "", dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("DID %s does not exist", didID))
	}
	if record.Revoked {
		return "", dErrors.New(dErrors.CodeAlreadyRevoked, "DID key already revoked.")
	}

	// A missing index entry is not an error.
	if idx, err := activeIndexKey(stub, record.Creator, record.CreatedTimestamp, didID); err == nil {
		if err := stub.DelState(idx); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete index entry")
		}
	}

	clock, err := now(stub)
	if err != nil {
		return "", err
	}
	record.Revoked = true
	record.RevokedTimestamp = ptr(clock.iso)
	record.AuditTrail = append(record.AuditTrail, records.DIDAuditEvent{
		Timestamp: clock.iso,
		TxID:      stub.GetTxID(),
		Action:    records.DIDActionRevoked,
		Revoked:   ptr(true),
	})
	if err := putRecord(stub, didID, record); err != nil {
		return "", err
	}
	return fmt.Sprintf("DID key %s revoked at %s", didID, clock.iso), nil
}

// LatestActiveDid returns the most recently created active DID of creator.
func (c *Contract) LatestActiveDid(ctx ledger.TxContext, creator string) ([]byte, error) {
	stub := ctx.GetStub()
	iter, err := stub.GetStateByPartialCompositeKey(idxDidActive, []string{creator})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid creator")
	}
	defer iter.Close()

	if !iter.HasNext() {
		return nil, dErrors.New(dErrors.CodeNoActiveDid, "No active DID for creator")
	}
	kv, err := iter.Next()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read index")
	}
	_, attrs, err := stub.SplitCompositeKey(kv.GetKey())
	if err != nil || len(attrs) != 3 {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "malformed index key")
	}
	return c.ReadDidKey(ctx, attrs[2])
}
