// Package records defines the ledger record shapes shared by the contract,
// the off-ledger service and ledger clients. Field names are the persisted
// JSON names and must not change.
package records

import "encoding/json"

const (
	DocTypeVcAnchor = "vcAnchor"
	DocTypeDID      = "DID"

	// EventAccessLogged is emitted by every access check.
	EventAccessLogged = "AccessLogged"
)

// Status is the anchor lifecycle state. Only active is non-terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// VcAnchor is the on-ledger consent anchor keyed by AssetID.
type VcAnchor struct {
	DocType              string       `json:"docType"`
	AssetID              string       `json:"assetId"`
	Creator              string       `json:"creator"`
	HolderBindingHash    string       `json:"holderBindingHash"`
	PolicyHash           string       `json:"policyHash"`
	TemplateHash         string       `json:"templateHash"`
	ValidUntil           string       `json:"validUntil"`
	Status               Status       `json:"status"`
	AssuranceLevel       string       `json:"assuranceLevel,omitempty"`
	AllowedPurposeHash   []string     `json:"allowedPurposeHash"`
	AllowedOperationHash []string     `json:"allowedOperationHash"`
	CreatedTimestamp     string       `json:"createdTimestamp"`
	RevokedTimestamp     *string      `json:"revokedTimestamp"`
	AuditTrail           []AuditEvent `json:"auditTrail"`
}

// AuditEvent is one entry of an anchor's append-only trail. Revoked is set
// for lifecycle entries and AccessResult for access checks.
type AuditEvent struct {
	Timestamp    string  `json:"timestamp"`
	Revoked      *bool   `json:"revoked"`
	TxID         string  `json:"txId"`
	AccessResult *bool   `json:"accessResult"`
	Reason       *string `json:"reason,omitempty"`
}

// DID audit actions.
const (
	DIDActionCreated = "created"
	DIDActionRotated = "rotated"
	DIDActionRevoked = "revoked"
)

// DID is a registry record keyed by DidID. Key records carry key material
// and an endpoint; document records carry DIDDocument instead.
type DID struct {
	DocType            string          `json:"docType"`
	DidID              string          `json:"didID"`
	Creator            string          `json:"creator"`
	Revoked            bool            `json:"revoked"`
	CreatedTimestamp   string          `json:"createdTimestamp"`
	RevokedTimestamp   *string         `json:"revokedTimestamp"`
	PublicKeyBase58    string          `json:"publicKeyBase58,omitempty"`
	BbsPublicKeyBase58 *string         `json:"bbsPublicKeyBase58"`
	ServiceEndpoint    string          `json:"serviceEndpoint,omitempty"`
	DIDDocument        json.RawMessage `json:"didDocument,omitempty"`
	AuditTrail         []DIDAuditEvent `json:"auditTrail"`
}

// DIDAuditEvent records a lifecycle step with enough key material to replay
// the DID's history.
type DIDAuditEvent struct {
	Timestamp                  string  `json:"timestamp"`
	TxID                       string  `json:"txId"`
	Action                     string  `json:"action"`
	Revoked                    *bool   `json:"revoked,omitempty"`
	PublicKeyBase58            *string `json:"publicKeyBase58,omitempty"`
	BbsPublicKeyBase58         *string `json:"bbsPublicKeyBase58,omitempty"`
	ServiceEndpoint            *string `json:"serviceEndpoint,omitempty"`
	PreviousPublicKeyBase58    *string `json:"previousPublicKeyBase58,omitempty"`
	PreviousBbsPublicKeyBase58 *string `json:"previousBbsPublicKeyBase58,omitempty"`
	PreviousServiceEndpoint    *string `json:"previousServiceEndpoint,omitempty"`
}

// Access denial reasons besides the non-active status names.
const (
	ReasonPurposeNotAllowed             = "purpose_not_allowed"
	ReasonOperationNotAllowed           = "operation_not_allowed"
	ReasonPurposeAndOperationNotAllowed = "purpose_and_operation_not_allowed"
	ReasonInvalidRequest                = "invalid_request"
)

// AccessDecision is returned by an access check. Reason is nil on allow.
type AccessDecision struct {
	Result     bool    `json:"result"`
	Reason     *string `json:"reason"`
	Status     Status  `json:"status"`
	ValidUntil string  `json:"validUntil"`
}

// AccessLogged is the payload of EventAccessLogged.
type AccessLogged struct {
	AssetID      string  `json:"assetId"`
	AccessResult bool    `json:"accessResult"`
	Reason       *string `json:"reason"`
	Timestamp    string  `json:"timestamp"`
}
