package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "consentis/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// detailed is implemented by errors that carry an itemized list of
// problems, such as policy validation failures.
type detailed interface {
	ErrorDetails() []string
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Description string   `json:"error_description,omitempty"`
	Details     []string `json:"details,omitempty"`
}

// WriteError centralizes domain error translation to HTTP responses.
// It translates transport-agnostic domain errors into HTTP status codes and error responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		resp := ErrorResponse{
			Error:       string(domainErr.Code),
			Description: domainErr.Message,
		}
		var d detailed
		if errors.As(err, &d) {
			resp.Details = d.ErrorDetails()
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), resp)
		return
	}

	// Fallback for unexpected errors
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: string(dErrors.CodeInternal)})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound, dErrors.CodeNoActiveDid, dErrors.CodeTemplateNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeInvalidDuration,
		dErrors.CodeUnsupportedKeyType, dErrors.CodeMalformedAccessRequest:
		return http.StatusBadRequest
	case dErrors.CodePolicyValidationFailed:
		return http.StatusUnprocessableEntity
	case dErrors.CodeRoleDenied, dErrors.CodeKeyMismatch, dErrors.CodeInvalidSignature:
		return http.StatusForbidden
	case dErrors.CodeConflict, dErrors.CodeAlreadyExists, dErrors.CodeAlreadyRevoked,
		dErrors.CodeNotActive, dErrors.CodeDidRevoked:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
