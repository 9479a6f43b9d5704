package chaincode

import (
	"encoding/json"
	"slices"
	"strings"

	"consentis/contracts/records"
	"consentis/internal/ledger"
	"consentis/pkg/canonicaljson"
	dErrors "consentis/pkg/domain-errors"
	pstrings "consentis/pkg/platform/strings"
)

// accessRequest is the parsed {"purpose": ..., "operation": ...} body. Each
// field may be a string or an array of strings.
type accessRequest struct {
	purposes   []string
	operations []string
	malformed  bool
}

func parseAccessRequest(raw string) accessRequest {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return accessRequest{malformed: true}
	}
	purposes, okP := requestTerms(fields["purpose"])
	operations, okO := requestTerms(fields["operation"])
	if !okP || !okO {
		return accessRequest{malformed: true}
	}
	return accessRequest{purposes: purposes, operations: operations}
}

func requestTerms(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		term, ok := scalarTerm(raw)
		if !ok {
			return nil, false
		}
		return []string{term}, true
	}
	out := make([]string, 0, len(list))
	for _, el := range list {
		term, ok := scalarTerm(el)
		if !ok {
			return nil, false
		}
		out = append(out, term)
	}
	return out, true
}

// scalarTerm accepts strings, numbers and booleans.
func scalarTerm(raw json.RawMessage) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64, bool:
		return string(raw), true
	default:
		return "", false
	}
}

// allSubset reports whether every requested term hashes into allowed.
func allSubset(requested, allowed []string) bool {
	for _, term := range requested {
		if !slices.Contains(allowed, canonicaljson.SHA256Hex([]byte(pstrings.Normalize(term)))) {
			return false
		}
	}
	return true
}

// VerifyAndLogAccess decides whether the anchor authorizes the requested
// purposes and operations. Every call that finds the anchor appends an audit
// entry and emits an AccessLogged event, whether access is allowed or not.
func (c *Contract) VerifyAndLogAccess(ctx ledger.TxContext, assetID, accessRequestJSON string) (*records.AccessDecision, error) {
	if _, err := c.require(ctx, RoleVerifier, "Only verifiers"); err != nil {
		return nil, err
	}
	stub := ctx.GetStub()
	anchor, err := loadAnchor(stub, assetID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "Anchor not found")
	}
	if err != nil {
		return nil, err
	}
	clock, err := now(stub)
	if err != nil {
		return nil, err
	}
	anchor.Status = effectiveStatus(anchor, clock)

	req := parseAccessRequest(accessRequestJSON)
	var reason *string
	switch {
	case anchor.Status != records.StatusActive:
		reason = ptr(string(anchor.Status))
	case req.malformed:
		reason = ptr(records.ReasonInvalidRequest)
	default:
		purposeOK := allSubset(req.purposes, anchor.AllowedPurposeHash)
		operationOK := allSubset(req.operations, anchor.AllowedOperationHash)
		switch {
		case !purposeOK && !operationOK:
			reason = ptr(records.ReasonPurposeAndOperationNotAllowed)
		case !purposeOK:
			reason = ptr(records.ReasonPurposeNotAllowed)
		case !operationOK:
			reason = ptr(records.ReasonOperationNotAllowed)
		}
	}
	result := reason == nil

	anchor.AuditTrail = append(anchor.AuditTrail, records.AuditEvent{
		Timestamp:    clock.iso,
		TxID:         stub.GetTxID(),
		AccessResult: ptr(result),
		Reason:       reason,
	})
	if err := putRecord(stub, assetID, anchor); err != nil {
		return nil, err
	}

	payload, err := canonicaljson.Marshal(records.AccessLogged{
		AssetID:      assetID,
		AccessResult: result,
		Reason:       reason,
		Timestamp:    clock.iso,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode event")
	}
	if err := stub.SetEvent(records.EventAccessLogged, payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit event")
	}

	return &records.AccessDecision{
		Result:     result,
		Reason:     reason,
		Status:     anchor.Status,
		ValidUntil: anchor.ValidUntil,
	}, nil
}
