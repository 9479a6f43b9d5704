package didkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromVerkey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verkey := base58.Encode(pub)

	did, err := FromVerkey(verkey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(did, "did:key:z6Mk"), did)

	back, err := ToVerkey(did)
	require.NoError(t, err)
	assert.Equal(t, verkey, back)
}

func TestFromVerkey_InvalidBase58(t *testing.T) {
	_, err := FromVerkey("0OIl")
	assert.Error(t, err)
}

func TestToVerkey_Rejects(t *testing.T) {
	_, err := ToVerkey("did:fabric:abc")
	assert.ErrorIs(t, err, ErrInvalidDIDKey)

	_, err = ToVerkey("did:key:z" + base58.Encode([]byte{0x12, 0x00, 1, 2}))
	assert.ErrorIs(t, err, ErrInvalidDIDKey)
}

func TestValidBase58(t *testing.T) {
	assert.True(t, ValidBase58("3yZe7d"))
	assert.False(t, ValidBase58(""))
	assert.False(t, ValidBase58("0OIl"))
}
