package ledger

import (
	"strconv"
	"strings"

	"consentis/internal/platform/config"
)

// Default MSP ids of the reference three-organization network.
const (
	IssuerMSP   = "Org1MSP"
	HolderMSP   = "Org2MSP"
	VerifierMSP = "Org3MSP"
)

// Identities names the MSP id behind each role of the network.
type Identities struct {
	Issuer   string
	Holder   string
	Verifier string
}

// DefaultIdentities is the reference network: Org1 issues, Org2 holds,
// Org3 verifies.
func DefaultIdentities() Identities {
	return Identities{Issuer: IssuerMSP, Holder: HolderMSP, Verifier: VerifierMSP}
}

// IdentitiesFromConfig reads the ISSUER_MSP, HOLDER_MSP and VERIFIER_MSP
// settings.
func IdentitiesFromConfig(r config.Roles) Identities {
	return Identities{Issuer: r.IssuerMSP, Holder: r.HolderMSP, Verifier: r.VerifierMSP}
}

// Resolve maps a peer number (1 issuer, 2 holder, 3 verifier), role name,
// MSP id or MSP id without its "MSP" suffix to the MSP id a client submits
// as. Matching ignores case and surrounding space.
func (ids Identities) Resolve(input string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(input))
	if key == "" {
		return "", false
	}
	for i, role := range []struct{ name, msp string }{
		{"issuer", ids.Issuer},
		{"holder", ids.Holder},
		{"verifier", ids.Verifier},
	} {
		if role.msp == "" {
			continue
		}
		msp := strings.ToLower(role.msp)
		switch key {
		case strconv.Itoa(i + 1), role.name, msp, strings.TrimSuffix(msp, "msp"):
			return role.msp, true
		}
	}
	return "", false
}

// ResolveCaller resolves input against DefaultIdentities.
func ResolveCaller(input string) (string, bool) {
	return DefaultIdentities().Resolve(input)
}
