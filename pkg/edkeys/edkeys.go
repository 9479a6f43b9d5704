// Package edkeys handles the EdDSA keys that bind consent anchors to their
// holders: SPKI/PKCS#8 PEM parsing for Ed25519 and Ed448, SPKI-DER
// fingerprints, signatures over revocation messages, and per-asset key
// derivation.
package edkeys

import (
	"crypto/ed25519"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/ed448"

	"consentis/pkg/canonicaljson"
)

// KeyType names an EdDSA curve.
type KeyType string

const (
	Ed25519 KeyType = "ed25519"
	Ed448   KeyType = "ed448"
)

var (
	ErrUnsupportedKeyType = errors.New("only EdDSA keys are supported (Ed25519 or Ed448)")
	ErrMalformedKey       = errors.New("malformed key")
)

var (
	oidEd25519 = asn1.ObjectIdentifier{1, 3, 101, 112}
	oidEd448   = asn1.ObjectIdentifier{1, 3, 101, 113}
)

type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// Algorithm is the display name of the curve, as used by JOSE.
func (t KeyType) Algorithm() string {
	switch t {
	case Ed448:
		return "Ed448"
	default:
		return "Ed25519"
	}
}

func (t KeyType) oid() asn1.ObjectIdentifier {
	if t == Ed448 {
		return oidEd448
	}
	return oidEd25519
}

func (t KeyType) publicKeySize() int {
	if t == Ed448 {
		return ed448.PublicKeySize
	}
	return ed25519.PublicKeySize
}

func (t KeyType) seedSize() int {
	if t == Ed448 {
		return ed448.SeedSize
	}
	return ed25519.SeedSize
}

func keyTypeFor(oid asn1.ObjectIdentifier) (KeyType, error) {
	switch {
	case oid.Equal(oidEd25519):
		return Ed25519, nil
	case oid.Equal(oidEd448):
		return Ed448, nil
	default:
		return "", ErrUnsupportedKeyType
	}
}

// PublicKey is a raw EdDSA public key tagged with its curve.
type PublicKey struct {
	Type KeyType
	Key  []byte
}

// ParsePublicKeyPEM decodes a PEM "PUBLIC KEY" block holding an SPKI
// structure. Well-formed keys of any other algorithm fail with
// ErrUnsupportedKeyType.
func ParsePublicKeyPEM(text string) (PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(text)))
	if block == nil {
		return PublicKey{}, fmt.Errorf("%w: no PEM block", ErrMalformedKey)
	}
	if block.Type != "PUBLIC KEY" {
		return PublicKey{}, fmt.Errorf("%w: unexpected PEM type %q", ErrMalformedKey, block.Type)
	}
	return ParsePublicKeyDER(block.Bytes)
}

// ParsePublicKeyDER decodes an SPKI DER structure.
func ParsePublicKeyDER(der []byte) (PublicKey, error) {
	var spki subjectPublicKeyInfo
	rest, err := asn1.Unmarshal(der, &spki)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if len(rest) != 0 {
		return PublicKey{}, fmt.Errorf("%w: trailing data", ErrMalformedKey)
	}
	kt, err := keyTypeFor(spki.Algorithm.Algorithm)
	if err != nil {
		return PublicKey{}, err
	}
	raw := spki.PublicKey.RightAlign()
	if len(raw) != kt.publicKeySize() || spki.PublicKey.BitLength != 8*len(raw) {
		return PublicKey{}, fmt.Errorf("%w: bad %s key length", ErrMalformedKey, kt)
	}
	return PublicKey{Type: kt, Key: raw}, nil
}

// MarshalSPKI returns the DER encoding without algorithm parameters, so
// re-encodings of the same key always produce the same bytes.
func (k PublicKey) MarshalSPKI() ([]byte, error) {
	return asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: k.Type.oid()},
		PublicKey: asn1.BitString{Bytes: k.Key, BitLength: 8 * len(k.Key)},
	})
}

// PEM returns the SPKI PEM text.
func (k PublicKey) PEM() (string, error) {
	der, err := k.MarshalSPKI()
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Fingerprint is the hex SHA-256 of the SPKI DER encoding.
func (k PublicKey) Fingerprint() (string, error) {
	der, err := k.MarshalSPKI()
	if err != nil {
		return "", err
	}
	return canonicaljson.SHA256Hex(der), nil
}

// Verify reports whether sig is a pure EdDSA signature over msg. Ed448 uses
// the empty context string.
func (k PublicKey) Verify(msg, sig []byte) bool {
	switch k.Type {
	case Ed25519:
		if len(k.Key) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(k.Key), msg, sig)
	case Ed448:
		if len(k.Key) != ed448.PublicKeySize {
			return false
		}
		return ed448.Verify(ed448.PublicKey(k.Key), msg, sig, "")
	default:
		return false
	}
}

// AssertEdDSA parses text and returns its curve.
func AssertEdDSA(text string) (KeyType, error) {
	k, err := ParsePublicKeyPEM(text)
	if err != nil {
		return "", err
	}
	return k.Type, nil
}

// SPKIFingerprint parses an EdDSA public key PEM and returns its fingerprint.
func SPKIFingerprint(text string) (string, error) {
	k, err := ParsePublicKeyPEM(text)
	if err != nil {
		return "", err
	}
	return k.Fingerprint()
}

// RevocationMessage is the byte string a holder signs to revoke an anchor.
func RevocationMessage(assetID, createdTimestamp string) []byte {
	return []byte(assetID + "|" + createdTimestamp)
}

// DecodeSignature accepts padded or unpadded standard base64.
func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
