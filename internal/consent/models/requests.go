package models

import (
	"encoding/json"
	"strings"

	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/validation"
)

func (r *UpsertPolicyRequest) Normalize() {
	r.Version = strings.TrimSpace(r.Version)
}

func (r *UpsertPolicyRequest) Validate() error {
	if r.Policy == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "policy is required")
	}
	if err := validation.CheckSliceCount("purposes", len(r.Policy.Purposes()), validation.MaxPurposes); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("operations", len(r.Policy.Operations()), validation.MaxOperations); err != nil {
		return err
	}
	return validation.CheckStringLength("version", r.Version, 8)
}

func (r *CreateAnchorRequest) Normalize() {
	r.AssetID = strings.TrimSpace(r.AssetID)
	r.PolicyHash = strings.ToLower(strings.TrimSpace(r.PolicyHash))
}

func (r *CreateAnchorRequest) Validate() error {
	return validation.Validate(r)
}

func (r *ProvisionAnchorRequest) Normalize() {
	r.AssetID = strings.TrimSpace(r.AssetID)
	r.Version = strings.TrimSpace(r.Version)
}

func (r *ProvisionAnchorRequest) Validate() error {
	return validation.Validate(r)
}

func (r *RevokeAnchorRequest) Normalize() {
	r.AssetID = strings.TrimSpace(r.AssetID)
	r.Signature = strings.TrimSpace(r.Signature)
}

func (r *RevokeAnchorRequest) Validate() error {
	return validation.Validate(r)
}

func (r *AccessRequest) Normalize() {
	r.AssetID = strings.TrimSpace(r.AssetID)
}

func (r *AccessRequest) Validate() error {
	return validation.Validate(r)
}

// RequestJSON returns the access request document the contract parses. A
// JSON string is unwrapped so callers may send the document pre-encoded.
func (r *AccessRequest) RequestJSON() string {
	var s string
	if err := json.Unmarshal(r.Request, &s); err == nil {
		return s
	}
	return string(r.Request)
}

func (r *PrecheckRequest) Normalize() {
	r.AssetID = strings.TrimSpace(r.AssetID)
	r.MinAssuranceLevel = strings.ToUpper(strings.TrimSpace(r.MinAssuranceLevel))
}

func (r *PrecheckRequest) Validate() error {
	return validation.Validate(r)
}

func (r *StoreDIDRequest) Normalize() {
	r.DidID = strings.TrimSpace(r.DidID)
	r.PublicKeyBase58 = strings.TrimSpace(r.PublicKeyBase58)
	if r.BbsPublicKeyBase58 != nil {
		if bbs := strings.TrimSpace(*r.BbsPublicKeyBase58); bbs == "" {
			r.BbsPublicKeyBase58 = nil
		} else {
			r.BbsPublicKeyBase58 = &bbs
		}
	}
}

func (r *StoreDIDRequest) Validate() error {
	return validation.Validate(r)
}

func (r *StoreDIDDocumentRequest) Normalize() {
	r.DidID = strings.TrimSpace(r.DidID)
}

func (r *StoreDIDDocumentRequest) Validate() error {
	return validation.Validate(r)
}

func (r *DeriveKeyRequest) Validate() error {
	return validation.Validate(r)
}

func (r *SignRevocationRequest) Normalize() {
	r.AssetID = strings.TrimSpace(r.AssetID)
	r.Timestamp = strings.TrimSpace(r.Timestamp)
}

func (r *SignRevocationRequest) Validate() error {
	return validation.Validate(r)
}

func (r *DescriptorRequest) Normalize() {
	r.PolicyHash = strings.ToLower(strings.TrimSpace(r.PolicyHash))
	r.DescriptorVersion = strings.TrimSpace(r.DescriptorVersion)
}

func (r *DescriptorRequest) Validate() error {
	return validation.Validate(r)
}
