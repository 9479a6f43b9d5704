package service

import (
	"errors"

	"consentis/internal/consent/models"
	dErrors "consentis/pkg/domain-errors"
	"consentis/pkg/edkeys"
)

// DeriveKey derives the holder key pair bound to one asset from a seed.
// The same seed and asset id always give the same key.
func (s *Service) DeriveKey(req models.DeriveKeyRequest) (*models.KeyPair, error) {
	priv, err := edkeys.DeriveEd25519(edkeys.DecodeSeed(req.Seed), req.AssetID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to derive key")
	}
	privPEM, err := priv.PEM()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode private key")
	}
	pubPEM, err := priv.Public().PEM()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode public key")
	}
	return &models.KeyPair{
		PrivateKeyPEM: privPEM,
		PublicKeyPEM:  pubPEM,
		Alg:           priv.Type.Algorithm(),
	}, nil
}

// SignRevocation signs "assetId|timestamp", the message RevokeVc verifies.
// timestamp must be the anchor's createdTimestamp.
func (s *Service) SignRevocation(req models.SignRevocationRequest) (*models.SignedAction, error) {
	priv, err := edkeys.ParsePrivateKeyPEM(req.PrivateKeyPEM)
	if err != nil {
		if errors.Is(err, edkeys.ErrUnsupportedKeyType) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnsupportedKeyType, err.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid private key")
	}
	msg := edkeys.RevocationMessage(req.AssetID, req.Timestamp)
	return &models.SignedAction{
		AssetID:   req.AssetID,
		Timestamp: req.Timestamp,
		Signature: priv.SignBase64(msg),
		ToSign:    string(msg),
		Alg:       priv.Type.Algorithm(),
	}, nil
}
