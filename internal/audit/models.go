package audit

import "time"

// Event is emitted by the consent service for every state-changing or
// decision-producing call. It mirrors the on-ledger trail for operators who
// cannot read the ledger directly.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Caller    string    `json:"caller"`  // MSP id of the submitting identity
	Subject   string    `json:"subject"` // asset id, DID or policy hash
	Action    Action    `json:"action"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Ledger    bool      `json:"ledger"` // true when the action committed a ledger transaction
}

type Action string

const (
	ActionPolicyUpserted   Action = "policy_upserted"
	ActionPolicyDeleted    Action = "policy_deleted"
	ActionAnchorCreated    Action = "anchor_created"
	ActionAnchorRevoked    Action = "anchor_revoked"
	ActionAccessVerified   Action = "access_verified"
	ActionAccessPrechecked Action = "access_prechecked"
	ActionDIDStored        Action = "did_stored"
	ActionDIDRevoked       Action = "did_revoked"
)

const (
	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
)
