package chaincode

import (
	"errors"
	"fmt"
	"strings"

	dErrors "consentis/pkg/domain-errors"
)

// WireError flattens err into "<code>: <message>" so the code survives
// runtimes that only carry an error string back to the client.
func WireError(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return fmt.Errorf("%s: %s", de.Code, de.Error())
	}
	return fmt.Errorf("%s: %s", dErrors.CodeInternal, err.Error())
}

// ParseWireError recovers a domain error from a WireError string found
// anywhere in msg. Unrecognized messages become internal errors.
func ParseWireError(msg string) error {
	for _, code := range wireCodes {
		prefix := string(code) + ": "
		if i := strings.Index(msg, prefix); i >= 0 {
			return dErrors.New(code, msg[i+len(prefix):])
		}
	}
	return dErrors.New(dErrors.CodeInternal, msg)
}

var wireCodes = []dErrors.Code{
	dErrors.CodeRoleDenied,
	dErrors.CodeAlreadyExists,
	dErrors.CodeNotFound,
	dErrors.CodeNotActive,
	dErrors.CodeAlreadyRevoked,
	dErrors.CodeDidRevoked,
	dErrors.CodeNoActiveDid,
	dErrors.CodeUnsupportedKeyType,
	dErrors.CodeKeyMismatch,
	dErrors.CodeInvalidSignature,
	dErrors.CodeInvalidDuration,
	dErrors.CodeInvalidInput,
	dErrors.CodeBadRequest,
	dErrors.CodeConflict,
	dErrors.CodeInternal,
}
