package policy

import (
	"encoding/json"
	"time"

	"consentis/pkg/canonicaljson"
	dErrors "consentis/pkg/domain-errors"
	pstrings "consentis/pkg/platform/strings"
)

const (
	DescriptorType           = "ConsentContractDescriptor"
	DefaultDescriptorVersion = "v1"
)

// DescriptorInput scopes a canonical policy to concrete datasets.
type DescriptorInput struct {
	Policy            Document
	PolicyHash        string
	TemplateHash      string
	TemplateVersion   string
	DatasetIDs        []string
	IssuerOrgID       *string
	Context           any
	DescriptorVersion string
}

// Descriptor is the dataset-scoped contract derived from a policy. Absent
// optional members are omitted so the hash only covers what was supplied.
type Descriptor struct {
	Context           any            `json:"@context,omitempty"`
	Type              string         `json:"type"`
	DescriptorVersion string         `json:"descriptorVersion"`
	PolicyHash        string         `json:"policyHash"`
	TemplateHash      string         `json:"templateHash,omitempty"`
	TemplateVersion   string         `json:"templateVersion,omitempty"`
	DatasetIDs        []string       `json:"datasetIds"`
	Purposes          []string       `json:"purposes"`
	Operations        []string       `json:"operations"`
	DurationSecs      *float64       `json:"durationSecs,omitempty"`
	AssuranceLevel    *string        `json:"assuranceLevel"`
	LegalFlags        map[string]any `json:"legalFlags,omitempty"`
	IssuerOrgID       *string        `json:"issuerOrgId"`
	CreatedAt         string         `json:"createdAt"`
}

// DescriptorResult carries the canonical descriptor and its hash.
type DescriptorResult struct {
	DescriptorJSON json.RawMessage `json:"descriptorJson"`
	DescriptorHash string          `json:"descriptorHash"`
	Descriptor     *Descriptor     `json:"-"`
}

// GenerateContractDescriptor builds and hashes a descriptor stamped with now.
func GenerateContractDescriptor(in DescriptorInput, now time.Time) (*DescriptorResult, error) {
	datasets := pstrings.DedupeAndTrim(in.DatasetIDs)
	if len(datasets) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "datasetIds are required for a contract descriptor")
	}
	if in.PolicyHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policyHash is required for a contract descriptor")
	}
	version := in.DescriptorVersion
	if version == "" {
		version = DefaultDescriptorVersion
	}

	d := &Descriptor{
		Context:           in.Context,
		Type:              DescriptorType,
		DescriptorVersion: version,
		PolicyHash:        in.PolicyHash,
		TemplateHash:      in.TemplateHash,
		TemplateVersion:   in.TemplateVersion,
		DatasetIDs:        datasets,
		Purposes:          pstrings.DedupeAndTrim(in.Policy.Purposes()),
		Operations:        pstrings.DedupeAndTrim(in.Policy.Operations()),
		LegalFlags:        in.Policy.LegalFlags(),
		IssuerOrgID:       in.IssuerOrgID,
		CreatedAt:         now.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	if secs, ok := in.Policy.DurationSecs(); ok {
		d.DurationSecs = &secs
	}
	if al := in.Policy.AssuranceLevel(); al != "" {
		d.AssuranceLevel = &al
	}

	hash, canonical, err := canonicaljson.Digest(d)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to canonicalize contract descriptor")
	}
	return &DescriptorResult{DescriptorJSON: canonical, DescriptorHash: hash, Descriptor: d}, nil
}
