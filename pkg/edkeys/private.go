package edkeys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/ed448"
	"golang.org/x/crypto/hkdf"
)

type pkcs8 struct {
	Version    int
	Algorithm  pkix.AlgorithmIdentifier
	PrivateKey []byte
}

// PrivateKey is an EdDSA private key held as its RFC 8032 seed.
type PrivateKey struct {
	Type KeyType
	Seed []byte
}

// GenerateKey creates a fresh key of the given curve.
func GenerateKey(kt KeyType, rand io.Reader) (PrivateKey, error) {
	if kt != Ed25519 && kt != Ed448 {
		return PrivateKey{}, ErrUnsupportedKeyType
	}
	seed := make([]byte, kt.seedSize())
	if _, err := io.ReadFull(rand, seed); err != nil {
		return PrivateKey{}, fmt.Errorf("read seed: %w", err)
	}
	return PrivateKey{Type: kt, Seed: seed}, nil
}

// Public returns the matching public key.
func (k PrivateKey) Public() PublicKey {
	switch k.Type {
	case Ed448:
		pub := ed448.NewKeyFromSeed(k.Seed).Public().(ed448.PublicKey)
		return PublicKey{Type: Ed448, Key: []byte(pub)}
	default:
		pub := ed25519.NewKeyFromSeed(k.Seed).Public().(ed25519.PublicKey)
		return PublicKey{Type: Ed25519, Key: []byte(pub)}
	}
}

// Sign produces a pure EdDSA signature over msg.
func (k PrivateKey) Sign(msg []byte) []byte {
	if k.Type == Ed448 {
		return ed448.Sign(ed448.NewKeyFromSeed(k.Seed), msg, "")
	}
	return ed25519.Sign(ed25519.NewKeyFromSeed(k.Seed), msg)
}

// SignBase64 signs msg and returns the standard base64 signature.
func (k PrivateKey) SignBase64(msg []byte) string {
	return base64.StdEncoding.EncodeToString(k.Sign(msg))
}

// PEM returns the RFC 8410 PKCS#8 "PRIVATE KEY" PEM text.
func (k PrivateKey) PEM() (string, error) {
	inner, err := asn1.Marshal(k.Seed)
	if err != nil {
		return "", err
	}
	der, err := asn1.Marshal(pkcs8{
		Algorithm:  pkix.AlgorithmIdentifier{Algorithm: k.Type.oid()},
		PrivateKey: inner,
	})
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// ParsePrivateKeyPEM decodes an RFC 8410 PKCS#8 private key.
func ParsePrivateKeyPEM(text string) (PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(text)))
	if block == nil || block.Type != "PRIVATE KEY" {
		return PrivateKey{}, fmt.Errorf("%w: expected PRIVATE KEY block", ErrMalformedKey)
	}
	var p pkcs8
	if rest, err := asn1.Unmarshal(block.Bytes, &p); err != nil || len(rest) != 0 {
		return PrivateKey{}, fmt.Errorf("%w: bad PKCS#8 structure", ErrMalformedKey)
	}
	kt, err := keyTypeFor(p.Algorithm.Algorithm)
	if err != nil {
		return PrivateKey{}, err
	}
	var seed []byte
	if rest, err := asn1.Unmarshal(p.PrivateKey, &seed); err != nil || len(rest) != 0 {
		return PrivateKey{}, fmt.Errorf("%w: bad private key octets", ErrMalformedKey)
	}
	if len(seed) != kt.seedSize() {
		return PrivateKey{}, fmt.Errorf("%w: bad %s seed length", ErrMalformedKey, kt)
	}
	return PrivateKey{Type: kt, Seed: seed}, nil
}

// DeriveEd25519 deterministically derives the per-asset holder key:
// HKDF-SHA256 over seed with an empty salt and info "vc:<assetID>".
func DeriveEd25519(seed []byte, assetID string) (PrivateKey, error) {
	if len(seed) == 0 {
		return PrivateKey{}, fmt.Errorf("%w: empty seed", ErrMalformedKey)
	}
	out := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, seed, nil, []byte("vc:"+assetID))
	if _, err := io.ReadFull(r, out); err != nil {
		return PrivateKey{}, fmt.Errorf("hkdf: %w", err)
	}
	return PrivateKey{Type: Ed25519, Seed: out}, nil
}

// DecodeSeed interprets s as base64 (optionally prefixed "b64:") when it
// round-trips cleanly and as raw UTF-8 otherwise.
func DecodeSeed(s string) []byte {
	s = strings.TrimSpace(s)
	b64 := strings.TrimPrefix(s, "b64:")
	if dec, err := base64.StdEncoding.DecodeString(b64); err == nil && len(dec) > 0 {
		if strings.TrimRight(base64.StdEncoding.EncodeToString(dec), "=") == strings.TrimRight(b64, "=") {
			return dec
		}
	}
	return []byte(s)
}
