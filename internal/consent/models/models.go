// Package models holds the request and result shapes of the off-ledger
// consent service.
package models

import (
	"encoding/json"

	"consentis/contracts/records"
	"consentis/internal/policy"
)

// Precheck reasons.
const (
	ReasonOK                           = "ok"
	ReasonAnchorNotFound               = "anchor_not_found"
	ReasonRevokedOrExpired             = "revoked_or_expired"
	ReasonPolicyNotFound               = "policy_not_found"
	ReasonPurposeOrOperationNotAllowed = "purpose_or_operation_not_allowed"
	ReasonAssuranceTooLow              = "assurance_too_low"
)

// DefaultAssuranceLevel applies when neither the anchor nor its policy
// states one.
const DefaultAssuranceLevel = "AL1"

// PolicyResult is a canonical policy as stored, plus its atoms. Existed is
// set when the hash was already stored; the stored document is returned.
type PolicyResult struct {
	PolicyJSON      json.RawMessage `json:"policyJson"`
	PolicyHash      string          `json:"policyHash"`
	TemplateHash    string          `json:"templateHash"`
	TemplateVersion string          `json:"templateVersion"`
	DurationSecs    *int64          `json:"durationSecs,omitempty"`
	AssuranceLevel  *string         `json:"assuranceLevel"`
	ConstraintsSet  []string        `json:"constraintsSet"`
	Existed         bool            `json:"existed"`
}

// UpsertPolicyRequest is a candidate policy for a template version ("" for
// the latest).
type UpsertPolicyRequest struct {
	Version string          `json:"version"`
	Policy  policy.Document `json:"policy"`
}

// CreateAnchorRequest anchors an already stored policy.
type CreateAnchorRequest struct {
	AssetID      string `json:"assetId" validate:"required,notblank,max=200"`
	PublicKeyPEM string `json:"publicKeyPem" validate:"required,max=4096"`
	PolicyHash   string `json:"policyHash" validate:"required,len=64,hexadecimal"`
}

// ProvisionAnchorRequest upserts a policy and anchors it in one step.
type ProvisionAnchorRequest struct {
	AssetID      string          `json:"assetId" validate:"required,notblank,max=200"`
	PublicKeyPEM string          `json:"publicKeyPem" validate:"required,max=4096"`
	Version      string          `json:"version"`
	Policy       policy.Document `json:"policy" validate:"required"`
}

// AnchorResult reports a created anchor.
type AnchorResult struct {
	AssetID string            `json:"assetId"`
	Message string            `json:"message"`
	Anchor  *records.VcAnchor `json:"anchor,omitempty"`
	Policy  *PolicyResult     `json:"policy,omitempty"`
}

// RevokeAnchorRequest carries the holder's proof of key possession.
type RevokeAnchorRequest struct {
	AssetID      string `json:"assetId" validate:"required,notblank,max=200"`
	PublicKeyPEM string `json:"publicKeyPem" validate:"required,max=4096"`
	Signature    string `json:"signature" validate:"required,base64"`
}

// AccessRequest is checked and logged on the ledger. Request is the
// {purpose, operation} JSON; a JSON string holding that document is accepted
// too.
type AccessRequest struct {
	AssetID string          `json:"assetId" validate:"required,notblank,max=200"`
	Request json.RawMessage `json:"accessRequest" validate:"required"`
}

// PrecheckRequest asks for an off-ledger decision without writing anything.
type PrecheckRequest struct {
	AssetID           string `json:"assetId" validate:"required,notblank,max=200"`
	Purpose           string `json:"purpose" validate:"required,notblank,max=100"`
	Operation         string `json:"operation" validate:"required,notblank,max=100"`
	MinAssuranceLevel string `json:"minAssuranceLevel" validate:"omitempty,oneof=AL1 AL2 AL3"`
}

type AnchorSummary struct {
	AssetID        string         `json:"assetId,omitempty"`
	Status         records.Status `json:"status"`
	ValidUntil     string         `json:"validUntil"`
	AssuranceLevel *string        `json:"assuranceLevel,omitempty"`
}

type PolicySummary struct {
	Hash         string `json:"hash"`
	TemplateHash string `json:"templateHash"`
}

// PrecheckResult is the off-ledger decision. Have and Need are set for
// assurance_too_low.
type PrecheckResult struct {
	Allowed       bool           `json:"allowed"`
	Reason        string         `json:"reason"`
	Have          string         `json:"have,omitempty"`
	Need          string         `json:"need,omitempty"`
	AnchorSummary *AnchorSummary `json:"anchorSummary,omitempty"`
	PolicySummary *PolicySummary `json:"policySummary,omitempty"`
}

// StoreDIDRequest registers or rotates DID key material.
type StoreDIDRequest struct {
	DidID              string  `json:"didId" validate:"required,did,max=500"`
	PublicKeyBase58    string  `json:"publicKeyBase58" validate:"required,base58"`
	BbsPublicKeyBase58 *string `json:"bbsPublicKeyBase58" validate:"omitempty,base58"`
	ServiceEndpoint    string  `json:"serviceEndpoint" validate:"omitempty,url"`
}

// StoreDIDDocumentRequest registers a full DID document.
type StoreDIDDocumentRequest struct {
	DidID    string          `json:"didId" validate:"required,did,max=500"`
	Document json.RawMessage `json:"didDocument" validate:"required"`
}

// VerificationMethod is a public key entry of a resolved DID document.
type VerificationMethod struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
}

// Service is a DID document service entry. Endpoint is a URI string or,
// for DIDCommMessaging, an object.
type Service struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Priority        *int     `json:"priority,omitempty"`
	RecipientKeys   []string `json:"recipientKeys"`
	RoutingKeys     []string `json:"routingKeys"`
	ServiceEndpoint any      `json:"serviceEndpoint"`
	Accept          []string `json:"accept,omitempty"`
}

// DIDDocument is the resolver output for a key record.
type DIDDocument struct {
	Context            string               `json:"@context"`
	ID                 string               `json:"id"`
	PublicKey          []VerificationMethod `json:"publicKey"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

// ResolveResult wraps the document. Stored documents are returned verbatim.
type ResolveResult struct {
	DIDDocument json.RawMessage `json:"didDocument"`
}

// DeriveKeyRequest derives the per-asset holder key from a seed.
type DeriveKeyRequest struct {
	Seed    string `json:"seed" validate:"required"`
	AssetID string `json:"assetId" validate:"required,notblank,max=200"`
}

type KeyPair struct {
	PrivateKeyPEM string `json:"privateKeyPem"`
	PublicKeyPEM  string `json:"publicKeyPem"`
	Alg           string `json:"alg"`
}

// SignRevocationRequest signs assetId|timestamp with the holder key.
type SignRevocationRequest struct {
	AssetID       string `json:"assetId" validate:"required,notblank,max=200"`
	Timestamp     string `json:"timestamp" validate:"required"`
	PrivateKeyPEM string `json:"privateKeyPem" validate:"required,max=4096"`
}

type SignedAction struct {
	AssetID   string `json:"assetId"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
	ToSign    string `json:"toSign"`
	Alg       string `json:"alg"`
}

// DescriptorRequest scopes a stored policy to datasets.
type DescriptorRequest struct {
	PolicyHash        string   `json:"policyHash" validate:"required,len=64,hexadecimal"`
	DatasetIDs        []string `json:"datasetIds" validate:"required,min=1,max=100,dive,notblank,max=200"`
	IssuerOrgID       *string  `json:"issuerOrgId"`
	Context           any      `json:"@context"`
	DescriptorVersion string   `json:"descriptorVersion" validate:"omitempty,max=32"`
}
