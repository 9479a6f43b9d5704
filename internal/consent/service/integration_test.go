package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentis/contracts/records"
	"consentis/internal/audit"
	"consentis/internal/chaincode"
	"consentis/internal/consent/models"
	"consentis/internal/ledger/memory"
	"consentis/internal/policy"
	policystore "consentis/internal/policy/store"
	dErrors "consentis/pkg/domain-errors"
)

const verifier = "Org3MSP"

type flowHarness struct {
	svc    *Service
	ledger *memory.Ledger
	clock  *memory.ManualClock
	audit  *audit.InMemoryStore
}

func newFlowHarness(t *testing.T) *flowHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := memory.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	l := memory.New(chaincode.New(), memory.WithClock(clock.Now), memory.WithLogger(logger))
	auditStore := audit.NewInMemoryStore()
	svc := NewService(l, policystore.NewInMemory(), audit.NewPublisher(auditStore), logger,
		WithClock(clock.Now),
	)
	return &flowHarness{svc: svc, ledger: l, clock: clock, audit: auditStore}
}

func mustPolicy(t *testing.T, raw string) policy.Document {
	t.Helper()
	doc, err := policy.ParseDocument([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestConsentFlow_ProvisionCheckRevoke(t *testing.T) {
	ctx := context.Background()
	h := newFlowHarness(t)

	keys, err := h.svc.DeriveKey(models.DeriveKeyRequest{Seed: "holder-wallet-seed", AssetID: "vc-100"})
	require.NoError(t, err)

	created, err := h.svc.ProvisionAnchor(ctx, issuer, models.ProvisionAnchorRequest{
		AssetID:      "vc-100",
		PublicKeyPEM: keys.PublicKeyPEM,
		Policy:       mustPolicy(t, `{"purposes":["Research"],"operations":"read, aggregate","durationDays":1}`),
	})
	require.NoError(t, err)
	require.NotNil(t, created.Anchor)
	assert.Equal(t, records.StatusActive, created.Anchor.Status)
	assert.Equal(t, "AL1", created.Anchor.AssuranceLevel)
	assert.Equal(t, created.Policy.PolicyHash, created.Anchor.PolicyHash)
	assert.Equal(t, "2026-03-02T09:00:00.000Z", created.Anchor.ValidUntil)

	t.Run("same policy upserts as existing", func(t *testing.T) {
		again, err := h.svc.UpsertPolicy(ctx, models.UpsertPolicyRequest{
			Policy: mustPolicy(t, `{"purposes":["research"],"operations":["aggregate","read"],"durationSecs":86400,"assuranceLevel":"AL1"}`),
		})
		require.NoError(t, err)
		assert.True(t, again.Existed)
		assert.Equal(t, created.Policy.PolicyHash, again.PolicyHash)
	})

	t.Run("duplicate asset is rejected by the contract", func(t *testing.T) {
		_, err := h.svc.CreateAnchor(ctx, issuer, models.CreateAnchorRequest{
			AssetID:      "vc-100",
			PublicKeyPEM: keys.PublicKeyPEM,
			PolicyHash:   created.Policy.PolicyHash,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("precheck and on-ledger check agree", func(t *testing.T) {
		pre, err := h.svc.Precheck(ctx, issuer, models.PrecheckRequest{AssetID: "vc-100", Purpose: "research", Operation: "read"})
		require.NoError(t, err)
		assert.True(t, pre.Allowed)

		decision, err := h.svc.VerifyAccess(ctx, verifier, models.AccessRequest{
			AssetID: "vc-100",
			Request: json.RawMessage(`{"purpose":"Research","operation":["read"]}`),
		})
		require.NoError(t, err)
		assert.True(t, decision.Result)

		pre, err = h.svc.Precheck(ctx, issuer, models.PrecheckRequest{AssetID: "vc-100", Purpose: "marketing", Operation: "read"})
		require.NoError(t, err)
		assert.Equal(t, models.ReasonPurposeOrOperationNotAllowed, pre.Reason)

		decision, err = h.svc.VerifyAccess(ctx, verifier, models.AccessRequest{
			AssetID: "vc-100",
			Request: json.RawMessage(`{"purpose":"marketing","operation":"read"}`),
		})
		require.NoError(t, err)
		assert.False(t, decision.Result)
		require.NotNil(t, decision.Reason)
		assert.Equal(t, records.ReasonPurposeNotAllowed, *decision.Reason)
	})

	t.Run("verifiers cannot read anchors", func(t *testing.T) {
		_, err := h.svc.ReadAnchor(ctx, verifier, "vc-100")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRoleDenied))
	})

	t.Run("holder revokes with the derived key", func(t *testing.T) {
		signed, err := h.svc.SignRevocation(models.SignRevocationRequest{
			AssetID:       "vc-100",
			Timestamp:     created.Anchor.CreatedTimestamp,
			PrivateKeyPEM: keys.PrivateKeyPEM,
		})
		require.NoError(t, err)

		_, err = h.svc.RevokeAnchor(ctx, holder, models.RevokeAnchorRequest{
			AssetID:      "vc-100",
			PublicKeyPEM: keys.PublicKeyPEM,
			Signature:    signed.Signature,
		})
		require.NoError(t, err)

		anchor, err := h.svc.ReadAnchor(ctx, holder, "vc-100")
		require.NoError(t, err)
		assert.Equal(t, records.StatusRevoked, anchor.Status)

		pre, err := h.svc.Precheck(ctx, issuer, models.PrecheckRequest{AssetID: "vc-100", Purpose: "research", Operation: "read"})
		require.NoError(t, err)
		assert.Equal(t, models.ReasonRevokedOrExpired, pre.Reason)

		decision, err := h.svc.VerifyAccess(ctx, verifier, models.AccessRequest{
			AssetID: "vc-100",
			Request: json.RawMessage(`{"purpose":"research","operation":"read"}`),
		})
		require.NoError(t, err)
		assert.False(t, decision.Result)
	})

	t.Run("audit trail is recorded off-ledger", func(t *testing.T) {
		events := h.audit.All()
		actions := make(map[audit.Action]int)
		for _, e := range events {
			actions[e.Action]++
		}
		assert.Equal(t, 1, actions[audit.ActionAnchorCreated])
		assert.Equal(t, 1, actions[audit.ActionAnchorRevoked])
		assert.GreaterOrEqual(t, actions[audit.ActionAccessVerified], 3)
	})
}

func TestConsentFlow_ExpiryAndWrongKey(t *testing.T) {
	ctx := context.Background()
	h := newFlowHarness(t)

	keys, err := h.svc.DeriveKey(models.DeriveKeyRequest{Seed: "seed", AssetID: "vc-1"})
	require.NoError(t, err)
	other, err := h.svc.DeriveKey(models.DeriveKeyRequest{Seed: "seed", AssetID: "vc-other"})
	require.NoError(t, err)

	created, err := h.svc.ProvisionAnchor(ctx, issuer, models.ProvisionAnchorRequest{
		AssetID:      "vc-1",
		PublicKeyPEM: keys.PublicKeyPEM,
		Policy:       mustPolicy(t, `{"purposes":["research"],"operations":["read"],"durationSecs":60,"assuranceLevel":"AL2"}`),
	})
	require.NoError(t, err)

	signed, err := h.svc.SignRevocation(models.SignRevocationRequest{
		AssetID:       "vc-1",
		Timestamp:     created.Anchor.CreatedTimestamp,
		PrivateKeyPEM: other.PrivateKeyPEM,
	})
	require.NoError(t, err)
	_, err = h.svc.RevokeAnchor(ctx, holder, models.RevokeAnchorRequest{
		AssetID:      "vc-1",
		PublicKeyPEM: other.PublicKeyPEM,
		Signature:    signed.Signature,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeKeyMismatch), "got %v", err)

	pre, err := h.svc.Precheck(ctx, issuer, models.PrecheckRequest{
		AssetID: "vc-1", Purpose: "research", Operation: "read", MinAssuranceLevel: "AL3",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonAssuranceTooLow, pre.Reason)

	h.clock.Advance(61 * time.Second)

	pre, err = h.svc.Precheck(ctx, issuer, models.PrecheckRequest{AssetID: "vc-1", Purpose: "research", Operation: "read"})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonRevokedOrExpired, pre.Reason)

	anchor, err := h.svc.ReadAnchor(ctx, issuer, "vc-1")
	require.NoError(t, err)
	assert.Equal(t, records.StatusExpired, anchor.Status)
}

func TestDIDRegistryFlow(t *testing.T) {
	ctx := context.Background()
	h := newFlowHarness(t)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verkey := base58.Encode(pub)
	const did = "did:fabric:issuer-1"

	_, err = h.svc.StoreDID(ctx, issuer, models.StoreDIDRequest{
		DidID:           did,
		PublicKeyBase58: verkey,
		ServiceEndpoint: "https://issuer.example/didcomm",
	})
	require.NoError(t, err)

	_, err = h.svc.StoreDID(ctx, holder, models.StoreDIDRequest{DidID: "did:fabric:x", PublicKeyBase58: verkey})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRoleDenied))

	latest, err := h.svc.LatestActiveDID(ctx, issuer, "Org1")
	require.NoError(t, err)
	assert.Equal(t, did, latest.DidID)

	resolved, err := h.svc.ResolveDID(ctx, issuer, did)
	require.NoError(t, err)
	var doc models.DIDDocument
	require.NoError(t, json.Unmarshal(resolved.DIDDocument, &doc))
	assert.Equal(t, did+"#keys-1", doc.VerificationMethod[0].ID)
	assert.Len(t, doc.Service, 2)

	_, err = h.svc.RevokeDID(ctx, issuer, did)
	require.NoError(t, err)
	_, err = h.svc.RevokeDID(ctx, issuer, did)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))

	_, err = h.svc.LatestActiveDID(ctx, issuer, "Org1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoActiveDid))

	rec, err := h.svc.ReadDID(ctx, issuer, did)
	require.NoError(t, err)
	assert.True(t, rec.Revoked)
}
