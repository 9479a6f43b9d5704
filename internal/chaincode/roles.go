package chaincode

import (
	"strings"

	"consentis/internal/ledger"
	dErrors "consentis/pkg/domain-errors"
)

// Role is the organizational role of a transaction submitter.
type Role int

const (
	RoleNone Role = iota
	RoleIssuer
	RoleHolder
	RoleVerifier
)

func (r Role) String() string {
	switch r {
	case RoleIssuer:
		return "issuer"
	case RoleHolder:
		return "holder"
	case RoleVerifier:
		return "verifier"
	default:
		return "none"
	}
}

// DefaultRoleMSPs maps the reference network's organizations to roles.
func DefaultRoleMSPs() map[string]Role {
	return RoleMSPs(ledger.DefaultIdentities())
}

// RoleMSPs turns the configured MSP id of each role into the mapping
// WithRoleMSPs expects.
func RoleMSPs(ids ledger.Identities) map[string]Role {
	return map[string]Role{
		ids.Issuer:   RoleIssuer,
		ids.Holder:   RoleHolder,
		ids.Verifier: RoleVerifier,
	}
}

// caller is the submitter resolved once per transaction.
type caller struct {
	MSPID string
	Org   string // MSP id without its "MSP" suffix, stored as creator
	Role  Role
}

func (c *Contract) resolveCaller(ctx ledger.TxContext) (caller, error) {
	id := ctx.GetClientIdentity()
	if id == nil {
		return caller{}, dErrors.New(dErrors.CodeRoleDenied, "no client identity")
	}
	msp, err := id.GetMSPID()
	if err != nil || msp == "" {
		return caller{}, dErrors.Wrap(err, dErrors.CodeRoleDenied, "unable to read caller MSP id")
	}
	return caller{
		MSPID: msp,
		Org:   strings.TrimSuffix(msp, "MSP"),
		Role:  c.roles[msp],
	}, nil
}

// require resolves the caller and checks it holds role.
func (c *Contract) require(ctx ledger.TxContext, role Role, msg string) (caller, error) {
	who, err := c.resolveCaller(ctx)
	if err != nil {
		return caller{}, err
	}
	if who.Role != role {
		return caller{}, dErrors.New(dErrors.CodeRoleDenied, msg)
	}
	return who, nil
}

// forbid resolves the caller and rejects it when it holds role.
func (c *Contract) forbid(ctx ledger.TxContext, role Role, msg string) (caller, error) {
	who, err := c.resolveCaller(ctx)
	if err != nil {
		return caller{}, err
	}
	if who.Role == role {
		return caller{}, dErrors.New(dErrors.CodeRoleDenied, msg)
	}
	return who, nil
}
