package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"consentis/contracts/records"
	"consentis/internal/audit"
	"consentis/internal/consent/models"
	"consentis/internal/platform/tracer"
	"consentis/internal/policy"
	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/platform/sentinel"
	pstrings "consentis/pkg/platform/strings"
)

var assuranceOrder = []string{"AL1", "AL2", "AL3"}

// Precheck decides off-ledger whether an anchor would allow purpose and
// operation. It reads the anchor as caller and matches the request against
// the stored policy's constraint atoms; nothing is written to the ledger.
// Only ledger failures other than a missing anchor are errors.
func (s *Service) Precheck(ctx context.Context, caller string, req models.PrecheckRequest) (result *models.PrecheckResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanPrecheck,
		tracer.String(tracer.AttrAssetID, tracer.HashID(req.AssetID)),
	)
	defer func() {
		if result != nil {
			span.SetAttributes(
				tracer.Bool(tracer.AttrResult, result.Allowed),
				tracer.String(tracer.AttrReason, result.Reason),
			)
			s.recordPrecheck(ctx, caller, req.AssetID, result)
		}
		span.End(err)
	}()

	anchor, err := s.ReadAnchor(ctx, caller, req.AssetID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return &models.PrecheckResult{Reason: models.ReasonAnchorNotFound}, nil
		}
		return nil, err
	}

	if anchor.Status != records.StatusActive || s.pastValidity(anchor.ValidUntil) {
		return &models.PrecheckResult{
			Reason: models.ReasonRevokedOrExpired,
			AnchorSummary: &models.AnchorSummary{
				Status:     anchor.Status,
				ValidUntil: anchor.ValidUntil,
			},
		}, nil
	}

	stored, err := s.store.GetByHash(ctx, anchor.PolicyHash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.PrecheckResult{Reason: models.ReasonPolicyNotFound}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read policy")
	}
	doc, err := policy.ParseDocument(stored.PolicyJSON)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored policy is corrupt")
	}

	requested := []string{
		policy.Atom("purpose", pstrings.Normalize(req.Purpose)),
		policy.Atom("operation", pstrings.Normalize(req.Operation)),
	}
	if !policy.MatchAtoms(policy.ConstraintsSet(doc), requested) {
		return &models.PrecheckResult{Reason: models.ReasonPurposeOrOperationNotAllowed}, nil
	}

	have := anchor.AssuranceLevel
	if have == "" {
		have = doc.AssuranceLevel()
	}
	if req.MinAssuranceLevel != "" {
		effective := have
		if effective == "" {
			effective = models.DefaultAssuranceLevel
		}
		if assuranceRank(effective) < assuranceRank(req.MinAssuranceLevel) {
			return &models.PrecheckResult{
				Reason: models.ReasonAssuranceTooLow,
				Have:   effective,
				Need:   req.MinAssuranceLevel,
			}, nil
		}
	}

	summary := &models.AnchorSummary{
		AssetID:    anchor.AssetID,
		Status:     anchor.Status,
		ValidUntil: anchor.ValidUntil,
	}
	if have != "" {
		summary.AssuranceLevel = &have
	}
	return &models.PrecheckResult{
		Allowed:       true,
		Reason:        models.ReasonOK,
		AnchorSummary: summary,
		PolicySummary: &models.PolicySummary{
			Hash:         anchor.PolicyHash,
			TemplateHash: anchor.TemplateHash,
		},
	}, nil
}

// pastValidity reports whether the wall clock has passed validUntil. An
// unparseable timestamp counts as expired.
func (s *Service) pastValidity(validUntil string) bool {
	t, err := time.Parse(time.RFC3339Nano, validUntil)
	if err != nil {
		return true
	}
	return s.clock().After(t)
}

// assuranceRank orders AL1 < AL2 < AL3; unknown labels rank below AL1.
func assuranceRank(level string) int {
	return slices.Index(assuranceOrder, level)
}

func (s *Service) recordPrecheck(ctx context.Context, caller, assetID string, result *models.PrecheckResult) {
	if s.metrics != nil {
		s.metrics.IncrementPrecheck(result.Reason)
	}
	decision := audit.DecisionDenied
	if result.Allowed {
		decision = audit.DecisionAllowed
	}
	s.emit(ctx, audit.Event{
		Caller:   caller,
		Subject:  assetID,
		Action:   audit.ActionAccessPrechecked,
		Decision: decision,
		Reason:   result.Reason,
	})
}
