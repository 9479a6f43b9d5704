package service

import (
	"context"
	"errors"
	"time"

	"consentis/internal/audit"
	"consentis/internal/consent/models"
	"consentis/internal/platform/tracer"
	"consentis/internal/policy"
	policystore "consentis/internal/policy/store"
	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/platform/sentinel"
)

// UpsertPolicy canonicalizes req.Policy and saves it under its hash. A
// policy already stored under the hash is kept and returned with Existed
// set; nothing is overwritten.
func (s *Service) UpsertPolicy(ctx context.Context, req models.UpsertPolicyRequest) (result *models.PolicyResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanPolicyUpsert)
	defer func() { span.End(err) }()

	canon, err := s.canonicalizer.Canonicalize(req.Version, req.Policy)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrPolicyHash, canon.PolicyHash))

	var stored *policystore.Document
	err = s.tx.RunInTx(ctx, canon.PolicyHash, func(store PolicyStore) error {
		start := time.Now()
		existing, err := store.GetByHash(ctx, canon.PolicyHash)
		s.observeStore("get", start)
		switch {
		case err == nil:
			stored = existing
			return nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read policy")
		}

		start = time.Now()
		err = store.Save(ctx, &policystore.Document{
			PolicyHash:      canon.PolicyHash,
			PolicyJSON:      canon.PolicyJSON,
			TemplateHash:    canon.TemplateHash,
			TemplateVersion: canon.TemplateVersion,
			CreatedAt:       s.clock().UTC(),
		})
		s.observeStore("save", start)
		if errors.Is(err, sentinel.ErrConflict) {
			// another writer stored the same hash first
			stored, err = store.GetByHash(ctx, canon.PolicyHash)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save policy")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result = &models.PolicyResult{
		PolicyJSON:      canon.PolicyJSON,
		PolicyHash:      canon.PolicyHash,
		TemplateHash:    canon.TemplateHash,
		TemplateVersion: canon.TemplateVersion,
		DurationSecs:    canon.DurationSecs,
		AssuranceLevel:  canon.AssuranceLevel,
		ConstraintsSet:  canon.ConstraintsSet,
	}
	if stored != nil {
		result.Existed = true
		result.PolicyJSON = stored.PolicyJSON
		if stored.TemplateHash != "" {
			result.TemplateHash = stored.TemplateHash
		}
	}

	if s.metrics != nil {
		s.metrics.IncrementPolicyUpserted(canon.TemplateVersion, result.Existed)
	}
	s.emit(ctx, audit.Event{
		Subject: canon.PolicyHash,
		Action:  audit.ActionPolicyUpserted,
		Reason:  canon.TemplateVersion,
	})
	s.logger.InfoContext(ctx, "policy upserted",
		"policy_hash", canon.PolicyHash,
		"template_version", canon.TemplateVersion,
		"existed", result.Existed,
	)
	return result, nil
}

// GetPolicy returns the stored policy for policyHash.
func (s *Service) GetPolicy(ctx context.Context, policyHash string) (*policystore.Document, error) {
	start := time.Now()
	doc, err := s.store.GetByHash(ctx, policyHash)
	s.observeStore("get", start)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "policy not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read policy")
	}
	return doc, nil
}

// DeletePolicy removes the stored policy. Anchors referencing it keep
// their hash; prechecks against them report policy_not_found.
func (s *Service) DeletePolicy(ctx context.Context, policyHash string) error {
	start := time.Now()
	err := s.store.Delete(ctx, policyHash)
	s.observeStore("delete", start)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "policy not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete policy")
	}
	s.emit(ctx, audit.Event{
		Subject: policyHash,
		Action:  audit.ActionPolicyDeleted,
	})
	return nil
}

// resolvePolicy loads and parses the stored policy for policyHash.
func (s *Service) resolvePolicy(ctx context.Context, policyHash string) (policy.Document, *policystore.Document, error) {
	stored, err := s.GetPolicy(ctx, policyHash)
	if err != nil {
		return nil, nil, err
	}
	doc, err := policy.ParseDocument(stored.PolicyJSON)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored policy is corrupt")
	}
	return doc, stored, nil
}

// GenerateDescriptor builds the dataset-scoped contract descriptor of a
// stored policy.
func (s *Service) GenerateDescriptor(ctx context.Context, req models.DescriptorRequest) (*policy.DescriptorResult, error) {
	doc, stored, err := s.resolvePolicy(ctx, req.PolicyHash)
	if err != nil {
		return nil, err
	}
	return policy.GenerateContractDescriptor(policy.DescriptorInput{
		Policy:            doc,
		PolicyHash:        stored.PolicyHash,
		TemplateHash:      stored.TemplateHash,
		TemplateVersion:   stored.TemplateVersion,
		DatasetIDs:        req.DatasetIDs,
		IssuerOrgID:       req.IssuerOrgID,
		Context:           req.Context,
		DescriptorVersion: req.DescriptorVersion,
	}, s.clock())
}
