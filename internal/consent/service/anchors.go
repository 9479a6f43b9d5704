package service

import (
	"context"
	"encoding/json"
	"maps"
	"strconv"

	"consentis/contracts/records"
	"consentis/internal/audit"
	"consentis/internal/chaincode"
	"consentis/internal/consent/models"
	"consentis/internal/platform/tracer"
	"consentis/internal/policy"
	dErrors "consentis/pkg/domain-errors"
	pstrings "consentis/pkg/platform/strings"
)

// CreateAnchor resolves req.PolicyHash from the store, applies the
// deployment guards and submits CreateVcAnchor with the policy's
// normalized allow-lists. The committed anchor is read back for the result
// when caller may read it.
func (s *Service) CreateAnchor(ctx context.Context, caller string, req models.CreateAnchorRequest) (*models.AnchorResult, error) {
	doc, stored, err := s.resolvePolicy(ctx, req.PolicyHash)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Unknown policyHash")
		}
		return nil, err
	}
	if err := policy.ValidateForDeployment(doc, s.maxDurationSecs); err != nil {
		return nil, err
	}

	args, err := anchorArgs(req, doc, stored.TemplateHash)
	if err != nil {
		return nil, err
	}
	msg, err := s.submit(ctx, caller, chaincode.TxCreateVcAnchor, args...)
	if err != nil {
		s.logger.WarnContext(ctx, "anchor creation rejected",
			"asset_id", req.AssetID,
			"error", err,
		)
		return nil, err
	}

	result := &models.AnchorResult{AssetID: req.AssetID, Message: string(msg)}
	if anchor, err := s.ReadAnchor(ctx, caller, req.AssetID); err == nil {
		result.Anchor = anchor
	} else {
		s.logger.DebugContext(ctx, "created anchor not readable by caller",
			"asset_id", req.AssetID,
			"error", err,
		)
	}

	if s.metrics != nil {
		s.metrics.IncrementAnchorsCreated()
	}
	s.emit(ctx, audit.Event{
		Caller:  caller,
		Subject: req.AssetID,
		Action:  audit.ActionAnchorCreated,
		Ledger:  true,
	})
	s.logger.InfoContext(ctx, "anchor created",
		"asset_id", req.AssetID,
		"policy_hash", req.PolicyHash,
	)
	return result, nil
}

// anchorArgs builds the CreateVcAnchor arguments from a stored policy.
func anchorArgs(req models.CreateAnchorRequest, doc policy.Document, storedTemplateHash string) ([]string, error) {
	purposes, err := json.Marshal(pstrings.NormalizeSet(doc.Purposes()))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode purposes")
	}
	operations, err := json.Marshal(pstrings.NormalizeSet(doc.Operations()))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode operations")
	}
	templateHash, _ := doc["templateHash"].(string)
	if templateHash == "" {
		templateHash = storedTemplateHash
	}
	secs, _ := doc.DurationSecs()
	return []string{
		req.AssetID,
		req.PublicKeyPEM,
		req.PolicyHash,
		templateHash,
		strconv.FormatFloat(secs, 'f', -1, 64),
		doc.AssuranceLevel(),
		string(purposes),
		string(operations),
	}, nil
}

// ProvisionAnchor upserts the policy in req and anchors it. The assurance
// level defaults to AL1 when the template declares one and the policy
// omits it.
func (s *Service) ProvisionAnchor(ctx context.Context, caller string, req models.ProvisionAnchorRequest) (*models.AnchorResult, error) {
	doc := maps.Clone(req.Policy)
	if doc == nil {
		doc = policy.Document{}
	}
	if _, ok := doc["assuranceLevel"]; !ok {
		doc["assuranceLevel"] = models.DefaultAssuranceLevel
	}

	pol, err := s.UpsertPolicy(ctx, models.UpsertPolicyRequest{Version: req.Version, Policy: doc})
	if err != nil {
		return nil, err
	}
	result, err := s.CreateAnchor(ctx, caller, models.CreateAnchorRequest{
		AssetID:      req.AssetID,
		PublicKeyPEM: req.PublicKeyPEM,
		PolicyHash:   pol.PolicyHash,
	})
	if err != nil {
		return nil, err
	}
	result.Policy = pol
	return result, nil
}

// RevokeAnchor submits the holder's signed revocation.
func (s *Service) RevokeAnchor(ctx context.Context, caller string, req models.RevokeAnchorRequest) (string, error) {
	msg, err := s.submit(ctx, caller, chaincode.TxRevokeVc, req.AssetID, req.PublicKeyPEM, req.Signature)
	if err != nil {
		s.logger.WarnContext(ctx, "anchor revocation rejected",
			"asset_id", req.AssetID,
			"error", err,
		)
		return "", err
	}
	if s.metrics != nil {
		s.metrics.IncrementAnchorsRevoked()
	}
	s.emit(ctx, audit.Event{
		Caller:  caller,
		Subject: req.AssetID,
		Action:  audit.ActionAnchorRevoked,
		Ledger:  true,
	})
	return string(msg), nil
}

// ReadAnchor evaluates ReadVcAnchor. Verifiers are refused by the contract.
func (s *Service) ReadAnchor(ctx context.Context, caller, assetID string) (*records.VcAnchor, error) {
	out, err := s.evaluate(ctx, caller, chaincode.TxReadVcAnchor, assetID)
	if err != nil {
		return nil, err
	}
	return decode[records.VcAnchor](out, "anchor")
}

// ListAnchors evaluates GetAllVcAnchors.
func (s *Service) ListAnchors(ctx context.Context, caller string) ([]records.VcAnchor, error) {
	out, err := s.evaluate(ctx, caller, chaincode.TxGetAllVcAnchors)
	if err != nil {
		return nil, err
	}
	anchors, err := decode[[]records.VcAnchor](out, "anchors")
	if err != nil {
		return nil, err
	}
	return *anchors, nil
}

// VerifyAccess submits VerifyAndLogAccess. A denial is a committed result,
// not an error.
func (s *Service) VerifyAccess(ctx context.Context, caller string, req models.AccessRequest) (*records.AccessDecision, error) {
	out, err := s.submit(ctx, caller, chaincode.TxVerifyAndLogAccess, req.AssetID, req.RequestJSON())
	if err != nil {
		return nil, err
	}
	decision, err := decode[records.AccessDecision](out, "access decision")
	if err != nil {
		return nil, err
	}

	reason := ""
	if decision.Reason != nil {
		reason = *decision.Reason
	}
	if s.metrics != nil {
		s.metrics.IncrementAccessDecision(decision.Result, reason)
	}
	event := audit.Event{
		Caller:   caller,
		Subject:  req.AssetID,
		Action:   audit.ActionAccessVerified,
		Decision: audit.DecisionAllowed,
		Reason:   reason,
		Ledger:   true,
	}
	if !decision.Result {
		event.Decision = audit.DecisionDenied
	}
	s.emit(ctx, event)
	s.logger.InfoContext(ctx, "access verified",
		"asset_hash", tracer.HashID(req.AssetID),
		"result", decision.Result,
		"reason", reason,
	)
	return decision, nil
}
