// Package fabric exposes the contract to a Hyperledger Fabric peer through
// the contract API. Each transaction delegates to chaincode.Contract; results
// are JSON strings exactly as the generic dispatcher returns them.
package fabric

import (
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"consentis/internal/chaincode"
	"consentis/internal/ledger"
)

const ContractName = "VcAnchorContract"

// VcAnchorContract is the contractapi face of chaincode.Contract.
type VcAnchorContract struct {
	contractapi.Contract
	core *chaincode.Contract
}

// NewContract wraps core.
func NewContract(core *chaincode.Contract) *VcAnchorContract {
	c := &VcAnchorContract{core: core}
	c.Name = ContractName
	c.Info.Title = ContractName
	c.Info.Description = "Consent anchors with key-bound revocation and a DID registry"
	c.Info.Version = "1.0.0"
	return c
}

// NewChaincode builds the deployable chaincode.
func NewChaincode(core *chaincode.Contract) (*contractapi.ContractChaincode, error) {
	return contractapi.NewChaincode(NewContract(core))
}

type txContext struct {
	ctx contractapi.TransactionContextInterface
}

func (t txContext) GetStub() ledger.Stub { return t.ctx.GetStub() }

func (t txContext) GetClientIdentity() ledger.Identity {
	if id := t.ctx.GetClientIdentity(); id != nil {
		return id
	}
	return nil
}

func wrap(ctx contractapi.TransactionContextInterface) ledger.TxContext {
	return txContext{ctx: ctx}
}

func (c *VcAnchorContract) invoke(ctx contractapi.TransactionContextInterface, fn string, args ...string) (string, error) {
	out, err := c.core.Invoke(wrap(ctx), fn, args)
	if err != nil {
		return "", chaincode.WireError(err)
	}
	return string(out), nil
}

func (c *VcAnchorContract) StoreDidKey(ctx contractapi.TransactionContextInterface, didID, publicKeyBase58, bbsPublicKeyBase58, serviceEndpoint string) (string, error) {
	return c.invoke(ctx, chaincode.TxStoreDidKey, didID, publicKeyBase58, bbsPublicKeyBase58, serviceEndpoint)
}

func (c *VcAnchorContract) StoreDidDocument(ctx contractapi.TransactionContextInterface, didID, didDocJSON string) (string, error) {
	return c.invoke(ctx, chaincode.TxStoreDidDocument, didID, didDocJSON)
}

func (c *VcAnchorContract) ReadDidKey(ctx contractapi.TransactionContextInterface, didID string) (string, error) {
	return c.invoke(ctx, chaincode.TxReadDidKey, didID)
}

func (c *VcAnchorContract) RevokeDidKey(ctx contractapi.TransactionContextInterface, didID string) (string, error) {
	return c.invoke(ctx, chaincode.TxRevokeDidKey, didID)
}

func (c *VcAnchorContract) LatestActiveDid(ctx contractapi.TransactionContextInterface, creator string) (string, error) {
	return c.invoke(ctx, chaincode.TxLatestActiveDid, creator)
}

func (c *VcAnchorContract) CreateVcAnchor(
	ctx contractapi.TransactionContextInterface,
	assetID, publicKeyPEM, policyHash, templateHash, durationSecs, assuranceLevel, allowedPurposeJSON, allowedOperationJSON string,
) (string, error) {
	return c.invoke(ctx, chaincode.TxCreateVcAnchor,
		assetID, publicKeyPEM, policyHash, templateHash, durationSecs, assuranceLevel, allowedPurposeJSON, allowedOperationJSON)
}

func (c *VcAnchorContract) RevokeVc(ctx contractapi.TransactionContextInterface, assetID, publicKeyPEM, signature string) (string, error) {
	return c.invoke(ctx, chaincode.TxRevokeVc, assetID, publicKeyPEM, signature)
}

func (c *VcAnchorContract) AssetExists(ctx contractapi.TransactionContextInterface, assetID string) (bool, error) {
	ok, err := c.core.AssetExists(wrap(ctx), assetID)
	return ok, chaincode.WireError(err)
}

func (c *VcAnchorContract) AnchorExists(ctx contractapi.TransactionContextInterface, assetID string) (bool, error) {
	ok, err := c.core.AnchorExists(wrap(ctx), assetID)
	return ok, chaincode.WireError(err)
}

func (c *VcAnchorContract) DidExists(ctx contractapi.TransactionContextInterface, didID string) (bool, error) {
	ok, err := c.core.DidExists(wrap(ctx), didID)
	return ok, chaincode.WireError(err)
}

func (c *VcAnchorContract) ReadVcAnchor(ctx contractapi.TransactionContextInterface, assetID string) (string, error) {
	return c.invoke(ctx, chaincode.TxReadVcAnchor, assetID)
}

func (c *VcAnchorContract) GetAllVcAnchors(ctx contractapi.TransactionContextInterface) (string, error) {
	return c.invoke(ctx, chaincode.TxGetAllVcAnchors)
}

func (c *VcAnchorContract) VerifyAndLogAccess(ctx contractapi.TransactionContextInterface, assetID, accessRequestJSON string) (string, error) {
	return c.invoke(ctx, chaincode.TxVerifyAndLogAccess, assetID, accessRequestJSON)
}
