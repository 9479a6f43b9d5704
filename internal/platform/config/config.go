package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64 // requests per second per caller; 0 disables
	RateBurst       int
}

// Ledger selects the runtime the service talks to.
type Ledger struct {
	Mode string // "memory" or "fabric"
}

// Consent holds the anchor business limits. Every peer must run with the
// same MaxDurationSecs.
type Consent struct {
	MaxDurationSecs int64
}

// Store selects the off-ledger policy store backend.
type Store struct {
	Backend string // "memory", "postgres" or "redis"
}

// Fabric configures the gateway connection to a Fabric network laid out
// like the test network: one peer and one client identity per organization.
type Fabric struct {
	ChannelName     string
	ChaincodeName   string
	ContractName    string
	CryptoPath      string
	Domain          string
	PeerEndpoints   map[string]string // MSP id -> host:port
	EvaluateTimeout time.Duration
	SubmitTimeout   time.Duration
}

// Roles names the MSP id that holds each organizational role. The contract
// reads it once at start; every peer must run with the same mapping.
type Roles struct {
	IssuerMSP   string
	HolderMSP   string
	VerifierMSP string
}

// Chaincode configures the chaincode-as-a-service listener.
type Chaincode struct {
	ServerAddress string
	ID            string
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Kafka configures the optional audit mirror. Empty Brokers disables it.
type Kafka struct {
	Brokers         string
	Topic           string
	Acks            string
	DeliveryTimeout time.Duration
}

// Config is the full process configuration.
type Config struct {
	Server    Server
	Ledger    Ledger
	Consent   Consent
	Roles     Roles
	Store     Store
	Fabric    Fabric
	Chaincode Chaincode
	Redis     RedisConfig
	Database  DatabaseConfig
	Kafka     Kafka
	LogLevel  string
}

const (
	LedgerMemory = "memory"
	LedgerFabric = "fabric"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	DefaultMaxDurationSecs int64 = 3 * 365 * 24 * 60 * 60
)

// env names each setting is read from, in precedence order.
var bindings = map[string][]string{
	"server.addr":             {"DEVNET_ADDR"},
	"server.environment":      {"ENVIRONMENT"},
	"server.request_timeout":  {"REQUEST_TIMEOUT"},
	"server.shutdown_timeout": {"SHUTDOWN_TIMEOUT"},
	"server.rate_limit":       {"RATE_LIMIT_PER_SEC"},
	"server.rate_burst":       {"RATE_LIMIT_BURST"},
	"ledger.mode":             {"LEDGER_MODE"},
	"consent.max_duration":    {"CONSENT_MAX_DURATION_SECS"},
	"store.backend":           {"POLICY_STORE"},
	"roles.issuer":            {"ISSUER_MSP"},
	"roles.holder":            {"HOLDER_MSP"},
	"roles.verifier":          {"VERIFIER_MSP"},
	"fabric.channel":          {"CHANNEL_NAME", "FABRIC_CHANNEL"},
	"fabric.chaincode":        {"CHAINCODE_NAME", "FABRIC_CHAINCODE"},
	"fabric.contract":         {"CONTRACT_NAME"},
	"fabric.crypto_path":      {"FABRIC_CRYPTO_PATH"},
	"fabric.domain":           {"FABRIC_DOMAIN"},
	"fabric.peers":            {"FABRIC_PEERS"},
	"fabric.evaluate_timeout": {"FABRIC_EVALUATE_TIMEOUT"},
	"fabric.submit_timeout":   {"FABRIC_SUBMIT_TIMEOUT"},
	"chaincode.address":       {"CHAINCODE_SERVER_ADDRESS"},
	"chaincode.id":            {"CHAINCODE_ID"},
	"redis.url":               {"REDIS_URL"},
	"redis.pool_size":         {"REDIS_POOL_SIZE"},
	"database.url":            {"DATABASE_URL"},
	"database.max_open":       {"DATABASE_MAX_OPEN_CONNS"},
	"kafka.brokers":           {"AUDIT_KAFKA_BROKERS"},
	"kafka.topic":             {"AUDIT_KAFKA_TOPIC"},
	"kafka.acks":              {"AUDIT_KAFKA_ACKS"},
	"kafka.delivery_timeout":  {"AUDIT_KAFKA_DELIVERY_TIMEOUT"},
	"log.level":               {"LOG_LEVEL"},
}

// SetDefaults registers the default value of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("ledger.mode", LedgerMemory)
	v.SetDefault("consent.max_duration", DefaultMaxDurationSecs)
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("roles.issuer", "Org1MSP")
	v.SetDefault("roles.holder", "Org2MSP")
	v.SetDefault("roles.verifier", "Org3MSP")
	v.SetDefault("fabric.channel", "mychannel")
	v.SetDefault("fabric.chaincode", "basic")
	v.SetDefault("fabric.contract", "")
	v.SetDefault("fabric.domain", "example.com")
	v.SetDefault("fabric.peers", "Org1MSP=localhost:7051,Org2MSP=localhost:9051,Org3MSP=localhost:11051")
	v.SetDefault("fabric.evaluate_timeout", 5*time.Second)
	v.SetDefault("fabric.submit_timeout", 15*time.Second)
	v.SetDefault("chaincode.id", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("database.max_open", 25)
	v.SetDefault("kafka.topic", "consentis.audit")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.delivery_timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
}

// New builds a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range bindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	SetDefaults(v)
	return v
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return Load(New())
}

// Load reads a Config from v.
func Load(v *viper.Viper) (Config, error) {
	peers, err := parsePeers(v.GetString("fabric.peers"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Server: Server{
			Addr:            v.GetString("server.addr"),
			Environment:     v.GetString("server.environment"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			RateLimit:       v.GetFloat64("server.rate_limit"),
			RateBurst:       v.GetInt("server.rate_burst"),
		},
		Ledger:  Ledger{Mode: strings.ToLower(v.GetString("ledger.mode"))},
		Consent: Consent{MaxDurationSecs: v.GetInt64("consent.max_duration")},
		Roles: Roles{
			IssuerMSP:   strings.TrimSpace(v.GetString("roles.issuer")),
			HolderMSP:   strings.TrimSpace(v.GetString("roles.holder")),
			VerifierMSP: strings.TrimSpace(v.GetString("roles.verifier")),
		},
		Store: Store{Backend: strings.ToLower(v.GetString("store.backend"))},
		Fabric: Fabric{
			ChannelName:     v.GetString("fabric.channel"),
			ChaincodeName:   v.GetString("fabric.chaincode"),
			ContractName:    v.GetString("fabric.contract"),
			CryptoPath:      v.GetString("fabric.crypto_path"),
			Domain:          v.GetString("fabric.domain"),
			PeerEndpoints:   peers,
			EvaluateTimeout: v.GetDuration("fabric.evaluate_timeout"),
			SubmitTimeout:   v.GetDuration("fabric.submit_timeout"),
		},
		Chaincode: Chaincode{
			ServerAddress: v.GetString("chaincode.address"),
			ID:            v.GetString("chaincode.id"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open"),
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: Kafka{
			Brokers:         v.GetString("kafka.brokers"),
			Topic:           v.GetString("kafka.topic"),
			Acks:            v.GetString("kafka.acks"),
			DeliveryTimeout: v.GetDuration("kafka.delivery_timeout"),
		},
		LogLevel: v.GetString("log.level"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	if c.Consent.MaxDurationSecs <= 0 {
		return fmt.Errorf("CONSENT_MAX_DURATION_SECS must be positive, got %d", c.Consent.MaxDurationSecs)
	}
	if err := c.Roles.Validate(); err != nil {
		return err
	}
	switch c.Ledger.Mode {
	case LedgerMemory:
	case LedgerFabric:
		if c.Fabric.CryptoPath == "" {
			return fmt.Errorf("FABRIC_CRYPTO_PATH is required when LEDGER_MODE=fabric")
		}
	default:
		return fmt.Errorf("unknown LEDGER_MODE %q", c.Ledger.Mode)
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when POLICY_STORE=postgres")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when POLICY_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown POLICY_STORE %q", c.Store.Backend)
	}
	if c.Kafka.Brokers != "" && c.Kafka.Topic == "" {
		return fmt.Errorf("AUDIT_KAFKA_TOPIC is required when AUDIT_KAFKA_BROKERS is set")
	}
	return nil
}

// Validate requires one distinct MSP id per role.
func (r Roles) Validate() error {
	seen := map[string]string{}
	for _, role := range []struct{ env, msp string }{
		{"ISSUER_MSP", r.IssuerMSP},
		{"HOLDER_MSP", r.HolderMSP},
		{"VERIFIER_MSP", r.VerifierMSP},
	} {
		if role.msp == "" {
			return fmt.Errorf("%s must not be empty", role.env)
		}
		if other, dup := seen[role.msp]; dup {
			return fmt.Errorf("%s and %s both name %q", other, role.env, role.msp)
		}
		seen[role.msp] = role.env
	}
	return nil
}

// parsePeers reads "Org1MSP=host:port,Org2MSP=host:port".
func parsePeers(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		msp, endpoint, ok := strings.Cut(pair, "=")
		if !ok || msp == "" || endpoint == "" {
			return nil, fmt.Errorf("invalid FABRIC_PEERS entry %q", pair)
		}
		out[strings.TrimSpace(msp)] = strings.TrimSpace(endpoint)
	}
	return out, nil
}
