package chaincode

import (
	"fmt"
	"strconv"

	"consentis/internal/ledger"
	"consentis/pkg/canonicaljson"
	dErrors "consentis/pkg/domain-errors"
)

// Transaction names.
const (
	TxStoreDidKey        = "StoreDidKey"
	TxStoreDidDocument   = "StoreDidDocument"
	TxReadDidKey         = "ReadDidKey"
	TxRevokeDidKey       = "RevokeDidKey"
	TxLatestActiveDid    = "LatestActiveDid"
	TxCreateVcAnchor     = "CreateVcAnchor"
	TxRevokeVc           = "RevokeVc"
	TxAssetExists        = "AssetExists"
	TxAnchorExists       = "AnchorExists"
	TxDidExists          = "DidExists"
	TxReadVcAnchor       = "ReadVcAnchor"
	TxGetAllVcAnchors    = "GetAllVcAnchors"
	TxVerifyAndLogAccess = "VerifyAndLogAccess"
)

// Invoke dispatches a transaction by name for runtimes that call chaincode
// with a function name and string arguments. Results are returned as the
// bytes a Fabric client would receive.
func (c *Contract) Invoke(ctx ledger.TxContext, fn string, args []string) ([]byte, error) {
	switch fn {
	case TxStoreDidKey:
		if err := arity(fn, args, 3, 4); err != nil {
			return nil, err
		}
		// three-arg form omits the BBS key
		if len(args) == 3 {
			args = []string{args[0], args[1], "", args[2]}
		}
		return message(c.StoreDidKey(ctx, args[0], args[1], args[2], args[3]))
	case TxStoreDidDocument:
		if err := arity(fn, args, 2, 2); err != nil {
			return nil, err
		}
		return message(c.StoreDidDocument(ctx, args[0], args[1]))
	case TxReadDidKey:
		if err := arity(fn, args, 1, 1); err != nil {
			return nil, err
		}
		return c.ReadDidKey(ctx, args[0])
	case TxRevokeDidKey:
		if err := arity(fn, args, 1, 1); err != nil {
			return nil, err
		}
		return message(c.RevokeDidKey(ctx, args[0]))
	case TxLatestActiveDid:
		if err := arity(fn, args, 1, 1); err != nil {
			return nil, err
		}
		return c.LatestActiveDid(ctx, args[0])
	case TxCreateVcAnchor:
		if err := arity(fn, args, 5, 8); err != nil {
			return nil, err
		}
		full := make([]string, 8)
		copy(full, args)
		return message(c.CreateVcAnchor(ctx, full[0], full[1], full[2], full[3], full[4], full[5], full[6], full[7]))
	case TxRevokeVc:
		if err := arity(fn, args, 3, 3); err != nil {
			return nil, err
		}
		return message(c.RevokeVc(ctx, args[0], args[1], args[2]))
	case TxAssetExists, TxAnchorExists, TxDidExists:
		if err := arity(fn, args, 1, 1); err != nil {
			return nil, err
		}
		exists := c.AssetExists
		switch fn {
		case TxAnchorExists:
			exists = c.AnchorExists
		case TxDidExists:
			exists = c.DidExists
		}
		ok, err := exists(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatBool(ok)), nil
	case TxReadVcAnchor:
		if err := arity(fn, args, 1, 1); err != nil {
			return nil, err
		}
		return encode(c.ReadVcAnchor(ctx, args[0]))
	case TxGetAllVcAnchors:
		if err := arity(fn, args, 0, 0); err != nil {
			return nil, err
		}
		return encode(c.GetAllVcAnchors(ctx))
	case TxVerifyAndLogAccess:
		if err := arity(fn, args, 2, 2); err != nil {
			return nil, err
		}
		return encode(c.VerifyAndLogAccess(ctx, args[0], args[1]))
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown transaction %q", fn))
	}
}

func arity(fn string, args []string, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		return dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("%s: incorrect number of arguments: got %d", fn, len(args)))
	}
	return nil
}

func message(s string, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func encode[T any](v T, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	b, err := canonicaljson.Marshal(v)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode result")
	}
	return b, nil
}
