package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Snapshot backends for signed roots and revocation lists.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Server captures process level configuration.
type Server struct {
	Addr      string
	LogLevel  string
	LogFormat string

	// Secrets. Development defaults are replaced in any real deployment.
	IssuerSecret     string
	RegistrySecret   string
	RevocationSecret string
	CircuitSecret    string
	VaultSecret      string
	AdminToken       string
	JWTSigningKey    string
	JWTIssuer        string
	// ProviderIssuer is the issuer of address provider tokens. Carrier tokens
	// carry JWTIssuer and are not accepted on provider routes.
	ProviderIssuer string

	RegistryScope    string
	RootWindow       int
	EphemeralMaxAge  time.Duration
	RevocationMaxAge time.Duration
	CredentialTTL    time.Duration
	SessionTTL       time.Duration
	SessionRetention time.Duration
	AuditQueue       int
	SchemaFile       string

	SnapshotBackend string
	Redis           RedisConfig
	DatabaseURL     string
	BadgerDir       string
	Kafka           KafkaConfig
	RateLimit       RateLimitConfig
}

// RedisConfig configures the shared go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimitConfig caps requests per client IP within Window. A zero limit
// turns limiting off for that route class.
type RateLimitConfig struct {
	Window  time.Duration
	Address int
	Proof   int
	Session int
}

// KafkaConfig enables the audit fan-out when Brokers is non-empty.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// FromEnv builds a Server config from PIDGATE_* environment variables so main
// stays lean.
func FromEnv() (Server, error) {
	var p parser
	cfg := Server{
		Addr:      p.str("PIDGATE_ADDR", ":8080"),
		LogLevel:  p.str("PIDGATE_LOG_LEVEL", "info"),
		LogFormat: p.str("PIDGATE_LOG_FORMAT", "json"),

		IssuerSecret:     p.str("PIDGATE_ISSUER_SECRET", "dev-issuer-secret"),
		RegistrySecret:   p.str("PIDGATE_REGISTRY_SECRET", "dev-registry-secret"),
		RevocationSecret: p.str("PIDGATE_REVOCATION_SECRET", "dev-revocation-secret"),
		CircuitSecret:    p.str("PIDGATE_CIRCUIT_SECRET", "dev-circuit-secret"),
		VaultSecret:      p.str("PIDGATE_VAULT_SECRET", "dev-vault-secret"),
		AdminToken:       p.str("PIDGATE_ADMIN_TOKEN", ""),
		JWTSigningKey:    p.str("PIDGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:        p.str("PIDGATE_JWT_ISSUER", "pidgate"),
		ProviderIssuer:   p.str("PIDGATE_PROVIDER_ISSUER", "pidgate-provider"),

		RegistryScope:    p.str("PIDGATE_REGISTRY_SCOPE", ""),
		RootWindow:       p.integer("PIDGATE_ROOT_WINDOW", 8),
		EphemeralMaxAge:  p.duration("PIDGATE_EPHEMERAL_MAX_AGE", 5*time.Minute),
		RevocationMaxAge: p.duration("PIDGATE_REVOCATION_MAX_AGE", 0),
		CredentialTTL:    p.duration("PIDGATE_CREDENTIAL_TTL", 365*24*time.Hour),
		SessionTTL:       p.duration("PIDGATE_SESSION_TTL", 2*time.Minute),
		SessionRetention: p.duration("PIDGATE_SESSION_RETENTION", time.Minute),
		AuditQueue:       p.integer("PIDGATE_AUDIT_QUEUE", 1024),
		SchemaFile:       p.str("PIDGATE_SCHEMA_FILE", ""),

		SnapshotBackend: strings.ToLower(p.str("PIDGATE_SNAPSHOT_BACKEND", BackendMemory)),
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		DatabaseURL: p.str("DATABASE_URL", ""),
		BadgerDir:   p.str("BADGER_DIR", "./data/snapshots"),
		Kafka: KafkaConfig{
			Brokers:           p.list("KAFKA_BROKERS"),
			Topic:             p.str("KAFKA_AUDIT_TOPIC", "pidgate.audit"),
			Partitions:        int32(p.integer("KAFKA_AUDIT_PARTITIONS", 3)),
			ReplicationFactor: int16(p.integer("KAFKA_AUDIT_REPLICATION", 1)),
		},
		RateLimit: RateLimitConfig{
			Window:  p.duration("PIDGATE_RATE_LIMIT_WINDOW", time.Minute),
			Address: p.integer("PIDGATE_RATE_LIMIT_ADDRESS", 30),
			Proof:   p.integer("PIDGATE_RATE_LIMIT_PROOF", 120),
			Session: p.integer("PIDGATE_RATE_LIMIT_SESSION", 60),
		},
	}
	if p.err != nil {
		return Server{}, p.err
	}
	return cfg, cfg.validate()
}

func (c Server) validate() error {
	switch c.SnapshotBackend {
	case BackendMemory, BackendBadger:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s snapshot backend", c.SnapshotBackend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s snapshot backend", c.SnapshotBackend)
		}
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.SnapshotBackend)
	}
	if c.ProviderIssuer == "" || c.ProviderIssuer == c.JWTIssuer {
		return fmt.Errorf("PIDGATE_PROVIDER_ISSUER must be set and differ from PIDGATE_JWT_ISSUER")
	}
	if c.RootWindow < 1 {
		return fmt.Errorf("PIDGATE_ROOT_WINDOW must be at least 1")
	}
	if c.AuditQueue < 1 {
		return fmt.Errorf("PIDGATE_AUDIT_QUEUE must be at least 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("PIDGATE_RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimit.Address < 0 || c.RateLimit.Proof < 0 || c.RateLimit.Session < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}

// parser keeps the first conversion error so FromEnv can report it once.
type parser struct {
	err error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return d
}

func (p *parser) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
