package validation

import (
	"fmt"

	dErrors "consentis/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (256 KB).
	// DID documents and policies fit comfortably.
	MaxBodySize = 256 * 1024
)

// Slice element count limits
const (
	// MaxPurposes is the maximum number of purposes per policy or request.
	MaxPurposes = 50

	// MaxOperations is the maximum number of operations per policy or request.
	MaxOperations = 50

	// MaxDatasetIDs is the maximum number of datasets a descriptor may scope.
	MaxDatasetIDs = 100

	// MaxLedgerArgs is the maximum number of arguments of a raw ledger call.
	MaxLedgerArgs = 16
)

// String element length limits
const (
	// MaxAssetIDLength is the maximum length of an anchor asset id.
	MaxAssetIDLength = 200

	// MaxDIDLength is the maximum length of a DID.
	MaxDIDLength = 500

	// MaxTermLength is the maximum length of a purpose or operation.
	MaxTermLength = 100

	// MaxPEMLength is the maximum length of a PEM public or private key.
	MaxPEMLength = 4096
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}
