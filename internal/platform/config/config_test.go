package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, LedgerMemory, cfg.Ledger.Mode)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, DefaultMaxDurationSecs, cfg.Consent.MaxDurationSecs)
	assert.Equal(t, "mychannel", cfg.Fabric.ChannelName)
	assert.Equal(t, "localhost:9051", cfg.Fabric.PeerEndpoints["Org2MSP"])
	assert.Equal(t, 5*time.Second, cfg.Fabric.EvaluateTimeout)
	assert.Empty(t, cfg.Kafka.Brokers, "audit mirror is off by default")
	assert.Equal(t, "consentis.audit", cfg.Kafka.Topic)
	assert.Equal(t, Roles{IssuerMSP: "Org1MSP", HolderMSP: "Org2MSP", VerifierMSP: "Org3MSP"}, cfg.Roles)
}

func TestFromEnvRoles(t *testing.T) {
	t.Setenv("ISSUER_MSP", "UniversityMSP")
	t.Setenv("HOLDER_MSP", " StudentMSP ")
	t.Setenv("VERIFIER_MSP", "EmployerMSP")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Roles{IssuerMSP: "UniversityMSP", HolderMSP: "StudentMSP", VerifierMSP: "EmployerMSP"}, cfg.Roles)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CONSENT_MAX_DURATION_SECS", "3600")
	t.Setenv("FABRIC_CHANNEL", "consent")
	t.Setenv("CHAINCODE_NAME", "vcanchor")
	t.Setenv("POLICY_STORE", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DEVNET_ADDR", ":9090")
	t.Setenv("AUDIT_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("AUDIT_KAFKA_ACKS", "1")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.EqualValues(t, 3600, cfg.Consent.MaxDurationSecs)
	assert.Equal(t, "consent", cfg.Fabric.ChannelName)
	assert.Equal(t, "vcanchor", cfg.Fabric.ChaincodeName)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "kafka-1:9092,kafka-2:9092", cfg.Kafka.Brokers)
	assert.Equal(t, "1", cfg.Kafka.Acks)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"non-positive ceiling", map[string]string{"CONSENT_MAX_DURATION_SECS": "0"}, "must be positive"},
		{"unknown ledger", map[string]string{"LEDGER_MODE": "besu"}, "unknown LEDGER_MODE"},
		{"fabric without crypto", map[string]string{"LEDGER_MODE": "fabric"}, "FABRIC_CRYPTO_PATH"},
		{"postgres without url", map[string]string{"POLICY_STORE": "postgres"}, "DATABASE_URL"},
		{"unknown store", map[string]string{"POLICY_STORE": "couch"}, "unknown POLICY_STORE"},
		{"blank role", map[string]string{"HOLDER_MSP": " "}, "HOLDER_MSP must not be empty"},
		{"shared role msp", map[string]string{"VERIFIER_MSP": "Org1MSP"}, `ISSUER_MSP and VERIFIER_MSP both name "Org1MSP"`},
		{"bad peers", map[string]string{"FABRIC_PEERS": "Org1MSP"}, "invalid FABRIC_PEERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
