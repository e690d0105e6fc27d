// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production deployments
// override via environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	id "keystone/pkg/domain"
	platformstrings "keystone/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// RedisConfig holds connection settings for the elevation store. An empty
// URL means the in-memory store is used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds the audit sink connection. An empty DSN means the
// in-memory sink is used instead.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig holds the audit event forwarder settings. No brokers means
// forwarding is disabled.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// EvidenceConfig holds the approval evidence signer settings.
type EvidenceConfig struct {
	SigningKey string
	Issuer     string
}

// ElevationConfig holds decision-side settings for the elevation service.
type ElevationConfig struct {
	UniversalMarkets    []id.Market
	AutoApproveMaxGrant time.Duration
	ForbiddenScopes     []string
	ReapInterval        time.Duration
	PolicyEnforcement   bool
	PolicyEvaluatorURL  string
	// PolicyRoutes is the JSON per-market policy routing table, one policy
	// identifier per checkpoint; policy.ParseRoutes decodes it.
	PolicyRoutes   string
	MFAProviderURL string
	// MFAPolicies is the JSON per-market step-up policy table layered over
	// the built-in defaults; mfa.ParsePolicies decodes it.
	MFAPolicies string
	NotifyWebhookURL    string
	WorkflowURL         string
	WorkflowTimeout     time.Duration
}

// IdentityConfig holds the identity token validator settings.
type IdentityConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// RevocationConfig names who may revoke besides policy defaults.
type RevocationConfig struct {
	AdminRoles          []string
	AllowSelfRevocation bool
	ApproverCanRevoke   bool
}

// Config is the full runtime configuration tree.
type Config struct {
	Server     Server
	Redis      RedisConfig
	Postgres   PostgresConfig
	Kafka      KafkaConfig
	Evidence   EvidenceConfig
	Identity   IdentityConfig
	Elevation  ElevationConfig
	Revocation RevocationConfig
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	signingKey := os.Getenv("EVIDENCE_SIGNING_KEY")
	if signingKey == "" {
		// Development default; override in production.
		signingKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:            envOr("KEYSTONE_ADDR", ":8080"),
			ShutdownTimeout: envDuration("KEYSTONE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("AUDIT_POSTGRES_DSN"),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "keystone.audit.events"),
		},
		Evidence: EvidenceConfig{
			SigningKey: signingKey,
			Issuer:     envOr("EVIDENCE_ISSUER", "keystone"),
		},
		Identity: IdentityConfig{
			SigningKey: envOr("IDENTITY_SIGNING_KEY", signingKey),
			Issuer:     envOr("IDENTITY_ISSUER", "keystone-idp"),
			Audience:   envOr("IDENTITY_AUDIENCE", "keystone-api"),
		},
		Elevation: ElevationConfig{
			UniversalMarkets:    markets(envList("UNIVERSAL_MARKETS")),
			AutoApproveMaxGrant: envDuration("AUTO_APPROVE_MAX_GRANT", 4*time.Hour),
			ForbiddenScopes:     envList("AUTO_APPROVE_FORBIDDEN_SCOPES"),
			ReapInterval:        envDuration("REAP_INTERVAL", time.Minute),
			PolicyEnforcement:   envOr("POLICY_ENFORCEMENT", "true") == "true",
			PolicyEvaluatorURL:  os.Getenv("POLICY_EVALUATOR_URL"),
			PolicyRoutes:        os.Getenv("POLICY_ROUTES"),
			MFAProviderURL:      os.Getenv("MFA_PROVIDER_URL"),
			MFAPolicies:         os.Getenv("MFA_POLICIES"),
			NotifyWebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
			WorkflowURL:         os.Getenv("APPROVAL_WORKFLOW_URL"),
			WorkflowTimeout:     envDuration("APPROVAL_WORKFLOW_TIMEOUT", 5*time.Minute),
		},
		Revocation: RevocationConfig{
			AdminRoles:          envListOr("REVOCATION_ADMIN_ROLES", []string{"platform-admin"}),
			AllowSelfRevocation: envOr("ALLOW_SELF_REVOCATION", "true") == "true",
			ApproverCanRevoke:   envOr("APPROVER_CAN_REVOKE", "true") == "true",
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envListOr(key string, fallback []string) []string {
	if list := envList(key); list != nil {
		return list
	}
	return fallback
}

// Market codes are lowercase on the wire; collapse case variants here so a
// miscased env entry cannot split a market in two.
func markets(raw []string) []id.Market {
	normalized := platformstrings.DedupeAndTrimLower(raw)
	out := make([]id.Market, 0, len(normalized))
	for _, m := range normalized {
		out = append(out, id.Market(m))
	}
	return out
}
