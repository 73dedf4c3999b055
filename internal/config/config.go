package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction = "production"

	BackendMemory = "memory"
	BackendRedis  = "redis"

	minSigningSecretBytes = 32
)

type Config struct {
	AppEnv                string
	HTTPAddr              string
	HTTPReadHeaderTimeout time.Duration
	HTTPShutdownTimeout   time.Duration
	LogLevel              string

	AuthSigningSecret        string
	AuthAllowEphemeralSecret bool
	AuthTokenIssuer          string
	AuthTokenAudience        string
	AuthTokenTTL             time.Duration
	AuthSessionTTL           time.Duration
	AuthEmbedFingerprint     bool
	AuthUserIDHeader         string
	CORSAllowedOrigins       []string
	DevAuthBypass            bool

	SessionStore   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	DatabaseDriver string
	DatabaseURL    string
	BcryptCost     int

	LoginRateLimitPerMin int
	APIRateLimitPerMin   int
	RateLimitBackend     string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg, err := FromLookup(os.LookupEnv)
	recordValidation(context.Background(), os.Getenv("APP_ENV"), err)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	env := envReader{lookup: lookup}
	appEnv := strings.ToLower(env.str("APP_ENV", "development"))
	production := appEnv == EnvProduction

	cfg := &Config{
		AppEnv:                appEnv,
		HTTPAddr:              env.str("HTTP_ADDR", ":8080"),
		HTTPReadHeaderTimeout: env.duration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		HTTPShutdownTimeout:   env.duration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:              strings.ToLower(env.str("LOG_LEVEL", "info")),

		AuthSigningSecret:        env.str("AUTH_SIGNING_SECRET", ""),
		AuthAllowEphemeralSecret: env.boolean("AUTH_ALLOW_EPHEMERAL_SECRET", !production),
		AuthTokenIssuer:          env.str("AUTH_TOKEN_ISSUER", "edu-session-service"),
		AuthTokenAudience:        env.str("AUTH_TOKEN_AUDIENCE", "edu-platform"),
		AuthTokenTTL:             env.duration("AUTH_TOKEN_TTL", 7*24*time.Hour),
		AuthSessionTTL:           env.duration("AUTH_SESSION_TTL", 30*time.Minute),
		AuthEmbedFingerprint:     env.boolean("AUTH_EMBED_FINGERPRINT", true),
		AuthUserIDHeader:         env.str("AUTH_USER_ID_HEADER", "X-User-Id"),
		CORSAllowedOrigins:       splitList(env.str("CORS_ALLOWED_ORIGINS", "")),
		DevAuthBypass:            env.boolean("DEV_AUTH_BYPASS", false),

		SessionStore:   strings.ToLower(env.str("SESSION_STORE", BackendMemory)),
		RedisAddr:      env.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  env.str("REDIS_PASSWORD", ""),
		RedisDB:        env.integer("REDIS_DB", 0),
		RedisKeyPrefix: env.str("REDIS_KEY_PREFIX", "edu"),

		DatabaseDriver: strings.ToLower(env.str("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:    env.str("DATABASE_URL", "file:edu.db?cache=shared"),
		BcryptCost:     env.integer("BCRYPT_COST", 12),

		LoginRateLimitPerMin: env.integer("LOGIN_RATE_LIMIT_PER_MIN", 10),
		APIRateLimitPerMin:   env.integer("API_RATE_LIMIT_PER_MIN", 300),
		RateLimitBackend:     strings.ToLower(env.str("RATE_LIMIT_BACKEND", BackendMemory)),

		OTELServiceName:           env.str("OTEL_SERVICE_NAME", "edu-session-service"),
		OTELEnvironment:           env.str("OTEL_ENVIRONMENT", appEnv),
		OTELExporterOTLPEndpoint:  env.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  env.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        env.boolean("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        env.boolean("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           env.boolean("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: env.duration("OTEL_METRICS_EXPORT_INTERVAL", 10*time.Second),
	}
	if env.err != nil {
		return nil, env.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == EnvProduction }

func (c *Config) UsesRedis() bool {
	return c.SessionStore == BackendRedis || c.RateLimitBackend == BackendRedis
}

func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.AuthSigningSecret != "" && len(c.AuthSigningSecret) < minSigningSecretBytes {
		add("AUTH_SIGNING_SECRET must be at least %d bytes", minSigningSecretBytes)
	}
	if c.AuthTokenTTL <= 0 {
		add("AUTH_TOKEN_TTL must be positive")
	}
	if c.AuthSessionTTL <= 0 {
		add("AUTH_SESSION_TTL must be positive")
	}
	if c.AuthTokenTTL > 0 && c.AuthSessionTTL > 0 && c.AuthTokenTTL < c.AuthSessionTTL {
		add("AUTH_TOKEN_TTL must not be shorter than AUTH_SESSION_TTL")
	}
	if strings.TrimSpace(c.AuthUserIDHeader) == "" {
		add("AUTH_USER_ID_HEADER must not be empty")
	}
	if c.SessionStore != BackendMemory && c.SessionStore != BackendRedis {
		add("SESSION_STORE must be %q or %q", BackendMemory, BackendRedis)
	}
	if c.RateLimitBackend != BackendMemory && c.RateLimitBackend != BackendRedis {
		add("RATE_LIMIT_BACKEND must be %q or %q", BackendMemory, BackendRedis)
	}
	if c.UsesRedis() && strings.TrimSpace(c.RedisAddr) == "" {
		add("REDIS_ADDR is required when a redis backend is selected")
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		add("DATABASE_DRIVER must be sqlite or postgres")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		add("DATABASE_URL is required")
	}
	if c.LoginRateLimitPerMin <= 0 || c.APIRateLimitPerMin <= 0 {
		add("rate limits must be positive")
	}
	if c.HTTPShutdownTimeout <= 0 || c.HTTPReadHeaderTimeout <= 0 {
		add("HTTP timeouts must be positive")
	}
	if c.OTELMetricsExportInterval <= 0 {
		add("OTEL_METRICS_EXPORT_INTERVAL must be positive")
	}

	if c.IsProduction() {
		if c.AuthSigningSecret == "" {
			add("AUTH_SIGNING_SECRET is required in production")
		}
		if c.AuthAllowEphemeralSecret {
			add("AUTH_ALLOW_EPHEMERAL_SECRET is not allowed in production")
		}
		if c.DevAuthBypass {
			add("DEV_AUTH_BYPASS is not allowed in production")
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// envReader keeps the first parse failure so Load can report it once.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e *envReader) boolean(key string, fallback bool) bool {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return v
}

func (e *envReader) integer(key string, fallback int) int {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return v
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return v
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
