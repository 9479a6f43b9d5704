package chaincode

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"consentis/contracts/records"
	"consentis/internal/ledger"
	"consentis/pkg/canonicaljson"
	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/edkeys"
	pstrings "consentis/pkg/platform/strings"
)

// CreateVcAnchor anchors a consent decision bound to an EdDSA holder key.
// allowedPurposeJSON and allowedOperationJSON are JSON string arrays; empty
// arguments mean no entries. Only hashes of the normalized entries are stored.
func (c *Contract) CreateVcAnchor(
	ctx ledger.TxContext,
	assetID, publicKeyPEM, policyHash, templateHash, durationSecs, assuranceLevel,
	allowedPurposeJSON, allowedOperationJSON string,
) (string, error) {
	who, err := c.require(ctx, RoleIssuer, "Only an issuer can create a VC anchor")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(assetID) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "assetId is required")
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(durationSecs), 64)
	if err != nil || math.IsInf(duration, 0) || math.IsNaN(duration) || duration <= 0 {
		return "", dErrors.New(dErrors.CodeInvalidDuration, "Invalid durationSecs")
	}
	duration = math.Min(duration, c.maxDurationSec)

	exists, err := c.AssetExists(ctx, assetID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", dErrors.New(dErrors.CodeAlreadyExists, fmt.Sprintf("VC Anchor for assetId %s already exists", assetID))
	}

	binding, err := holderBinding(publicKeyPEM)
	if err != nil {
		return "", err
	}
	purposes, err := hashedAllowList(allowedPurposeJSON, "allowedPurpose")
	if err != nil {
		return "", err
	}
	operations, err := hashedAllowList(allowedOperationJSON, "allowedOperation")
	if err != nil {
		return "", err
	}

	stub := ctx.GetStub()
	clock, err := now(stub)
	if err != nil {
		return "", err
	}
	if assuranceLevel == "null" {
		assuranceLevel = ""
	}
	anchor := records.VcAnchor{
		DocType:              records.DocTypeVcAnchor,
		AssetID:              assetID,
		Creator:              who.Org,
		HolderBindingHash:    binding,
		PolicyHash:           policyHash,
		TemplateHash:         templateHash,
		ValidUntil:           clockAt(clock.ms + int64(duration*1000)).iso,
		Status:               records.StatusActive,
		AssuranceLevel:       assuranceLevel,
		AllowedPurposeHash:   purposes,
		AllowedOperationHash: operations,
		CreatedTimestamp:     clock.iso,
		AuditTrail: []records.AuditEvent{{
			Timestamp: clock.iso,
			Revoked:   ptr(false),
			TxID:      stub.GetTxID(),
		}},
	}
	if err := putRecord(stub, assetID, anchor); err != nil {
		return "", err
	}
	c.logger.Debug("anchor created", "asset_id", assetID, "tx", stub.GetTxID())
	return fmt.Sprintf("VC anchor for %s created.", assetID), nil
}

// RevokeVc revokes an active anchor. The caller must present the bound key
// and a signature over "<assetId>|<createdTimestamp>".
func (c *Contract) RevokeVc(ctx ledger.TxContext, assetID, publicKeyPEM, signature string) (string, error) {
	if _, err := c.require(ctx, RoleHolder, "Only a holder can revoke a VC anchor"); err != nil {
		return "", err
	}
	stub := ctx.GetStub()
	anchor, err := loadAnchor(stub, assetID)
	if err != nil {
		return "", err
	}
	clock, err := now(stub)
	if err != nil {
		return "", err
	}
	if effectiveStatus(anchor, clock) != records.StatusActive {
		return "", dErrors.New(dErrors.CodeNotActive, "VC anchor not active.")
	}

	key, err := edkeys.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return "", keyError(err)
	}
	provided, err := key.Fingerprint()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to fingerprint key")
	}
	if provided != anchor.HolderBindingHash {
		return "", dErrors.New(dErrors.CodeKeyMismatch, "Provided public key does not match the bound hash.")
	}
	sig, err := edkeys.DecodeSignature(signature)
	if err != nil || !key.Verify(edkeys.RevocationMessage(assetID, anchor.CreatedTimestamp), sig) {
		return "", dErrors.New(dErrors.CodeInvalidSignature, "Signature invalid. Only private key holder can revoke.")
	}

	anchor.Status = records.StatusRevoked
	anchor.RevokedTimestamp = ptr(clock.iso)
	anchor.AuditTrail = append(anchor.AuditTrail, records.AuditEvent{
		Timestamp: clock.iso,
		Revoked:   ptr(true),
		TxID:      stub.GetTxID(),
	})
	if err := putRecord(stub, assetID, anchor); err != nil {
		return "", err
	}
	c.logger.Debug("anchor revoked", "asset_id", assetID, "tx", stub.GetTxID())
	return fmt.Sprintf("VC anchor %s revoked at %s", assetID, clock.iso), nil
}

// ReadVcAnchor returns an anchor to any non-verifier caller. A time-expired
// anchor is reported as expired; the stored record is not modified.
func (c *Contract) ReadVcAnchor(ctx ledger.TxContext, assetID string) (*records.VcAnchor, error) {
	if _, err := c.forbid(ctx, RoleVerifier, "Verifiers need to use VerifyAndLogAccess function"); err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	anchor, err := loadAnchor(stub, assetID)
	if err != nil {
		return nil, err
	}
	clock, err := now(stub)
	if err != nil {
		return nil, err
	}
	anchor.Status = effectiveStatus(anchor, clock)
	return anchor, nil
}

// GetAllVcAnchors lists every anchor in key order.
func (c *Contract) GetAllVcAnchors(ctx ledger.TxContext) ([]records.VcAnchor, error) {
	if _, err := c.forbid(ctx, RoleVerifier, "Verifiers cant use this function"); err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	clock, err := now(stub)
	if err != nil {
		return nil, err
	}
	iter, err := stub.GetStateByRange("", "")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open range query")
	}
	defer iter.Close()

	out := make([]records.VcAnchor, 0)
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to iterate state")
		}
		if docTypeOf(kv.GetValue()) != records.DocTypeVcAnchor {
			continue
		}
		var anchor records.VcAnchor
		if err := json.Unmarshal(kv.GetValue(), &anchor); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored record is corrupt")
		}
		anchor.Status = effectiveStatus(&anchor, clock)
		out = append(out, anchor)
	}
	return out, nil
}

func loadAnchor(stub ledger.Stub, assetID string) (*records.VcAnchor, error) {
	var anchor records.VcAnchor
	found, err := getRecord(stub, assetID, &anchor)
	if err != nil {
		return nil, err
	}
	if !found || anchor.DocType != records.DocTypeVcAnchor {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("VC anchor %s does not exist", assetID))
	}
	return &anchor, nil
}

// effectiveStatus applies the lazy active to expired transition.
func effectiveStatus(anchor *records.VcAnchor, clock txClock) records.Status {
	if anchor.Status != records.StatusActive {
		return anchor.Status
	}
	until, err := parseISO(anchor.ValidUntil)
	if err == nil && clock.ms > until {
		return records.StatusExpired
	}
	return records.StatusActive
}

func holderBinding(publicKeyPEM string) (string, error) {
	key, err := edkeys.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return "", keyError(err)
	}
	fp, err := key.Fingerprint()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to fingerprint key")
	}
	return fp, nil
}

func keyError(err error) error {
	if errors.Is(err, edkeys.ErrUnsupportedKeyType) {
		return dErrors.Wrap(err, dErrors.CodeUnsupportedKeyType, "Only EdDSA keys are supported (Ed25519 or Ed448)")
	}
	return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid public key")
}

// hashedAllowList decodes a JSON string array and returns the sorted,
// de-duplicated SHA-256 hashes of its normalized entries.
func hashedAllowList(raw, field string) ([]string, error) {
	var values []string
	if s := strings.TrimSpace(raw); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &values); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" must be a JSON array of strings")
		}
	}
	return hashTerms(pstrings.NormalizeSet(values)), nil
}

func hashTerms(normalized []string) []string {
	out := make([]string, 0, len(normalized))
	for _, v := range normalized {
		out = append(out, canonicaljson.SHA256Hex([]byte(v)))
	}
	return out
}
