package domainerrors

import "errors"

// Code names a failure class shared by the contract, the ledger client and
// the HTTP layer. Contract codes travel to clients inside the Fabric error
// message and are recovered there.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeRateLimited  Code = "rate_limited"

	// Ledger contract codes. Any of these aborts the transaction.
	CodeRoleDenied         Code = "role_denied"          // Caller's organizational role may not run the operation
	CodeAlreadyExists      Code = "already_exists"       // Record id already taken
	CodeNotActive          Code = "not_active"           // Anchor is revoked or expired
	CodeAlreadyRevoked     Code = "already_revoked"      // DID already revoked
	CodeDidRevoked         Code = "did_revoked"          // Rotation attempted on a revoked DID
	CodeNoActiveDid        Code = "no_active_did"        // Creator has no active DID in the index
	CodeUnsupportedKeyType Code = "unsupported_key_type" // Key is not Ed25519 or Ed448
	CodeKeyMismatch        Code = "key_mismatch"         // Presented key does not match the holder binding
	CodeInvalidSignature   Code = "invalid_signature"    // Signature does not verify
	CodeInvalidDuration    Code = "invalid_duration"     // Duration is not a finite positive number

	// Policy codes.
	CodeTemplateNotFound       Code = "template_not_found"
	CodePolicyValidationFailed Code = "policy_validation_failed"
	CodeMalformedAccessRequest Code = "malformed_access_request"
)

// Error pairs a Code with a human message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, ignoring the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches msg to err. A code already present in err's chain wins over
// code, so a contract rejection keeps its code through every layer.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error in the chain,
// or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
