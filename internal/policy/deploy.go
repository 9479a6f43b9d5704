package policy

import (
	"fmt"
	"math"

	dErrors "consentis/pkg/domain-errors"
)

// DefaultMaxDurationSecs is three years of 365 days.
const DefaultMaxDurationSecs int64 = 3 * 365 * secondsPerDay

// ValidateForDeployment applies the business guards checked before an
// anchor is created from doc. maxDurationSecs <= 0 uses the default.
func ValidateForDeployment(doc Document, maxDurationSecs int64) error {
	if doc == nil {
		return invalid("Policy is missing or invalid")
	}
	if maxDurationSecs <= 0 {
		maxDurationSecs = DefaultMaxDurationSecs
	}
	if len(doc.Purposes()) == 0 {
		return invalid("Policy must include at least one purpose")
	}
	if len(doc.Operations()) == 0 {
		return invalid("Policy must include at least one operation")
	}
	secs, ok := doc.DurationSecs()
	if !ok || math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return invalid("Policy durationSecs is missing or invalid")
	}
	if secs > float64(maxDurationSecs) {
		return invalid(fmt.Sprintf("Policy durationSecs exceeds max of %d", maxDurationSecs))
	}
	if flags := doc.LegalFlags(); flags != nil {
		if given, ok := flags["freelyGiven"].(bool); ok && !given {
			return invalid("Policy legalFlags.freelyGiven must not be false")
		}
	}
	return nil
}

func invalid(msg string) error {
	return dErrors.New(dErrors.CodePolicyValidationFailed, msg)
}
