// Package didkey converts between base58 Ed25519 verkeys and did:key
// identifiers (multicodec ed25519-pub, multibase base58btc).
package didkey

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const prefix = "did:key:z"

var ed25519Codec = []byte{0xed, 0x01}

var ErrInvalidDIDKey = errors.New("invalid did:key")

// FromVerkey wraps a base58 Ed25519 verkey as a did:key.
func FromVerkey(verkey string) (string, error) {
	raw, err := base58.Decode(verkey)
	if err != nil {
		return "", fmt.Errorf("decode verkey: %w", err)
	}
	return prefix + base58.Encode(append(bytes.Clone(ed25519Codec), raw...)), nil
}

// ToVerkey extracts the base58 Ed25519 verkey from a did:key.
func ToVerkey(did string) (string, error) {
	if !strings.HasPrefix(did, prefix) {
		return "", ErrInvalidDIDKey
	}
	raw, err := base58.Decode(strings.TrimPrefix(did, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDIDKey, err)
	}
	if !bytes.HasPrefix(raw, ed25519Codec) || len(raw) != len(ed25519Codec)+ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: not an ed25519 key", ErrInvalidDIDKey)
	}
	return base58.Encode(raw[len(ed25519Codec):]), nil
}

// ValidBase58 reports whether s is non-empty base58btc.
func ValidBase58(s string) bool {
	if s == "" {
		return false
	}
	_, err := base58.Decode(s)
	return err == nil
}
