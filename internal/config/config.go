// Package config defines the process configuration for the codetutor API.
// Configuration is read once at startup and never modified afterwards.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format aborts startup.
package config

import (
	"strings"
	"time"

	"codetutor/internal/types"
)

// SecretString is an alias for types.SecretString so secrets stay redacted
// when the config is logged.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"codetutor-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Limits        LimitsConfig
	Auth          AuthConfig
	Anthropic     AnthropicConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	TrustProxyHeaders  bool          `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"90s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds the Postgres connection. When URL is empty the
// service runs without persistence: usage counters live in Redis or memory
// and analyses are not stored.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig holds the shared key/value store used for rate limiting (and
// usage counters when no database is configured). Empty URL selects the
// in-process stores.
type RedisConfig struct {
	URL             SecretString  `envconfig:"REDIS_URL" validate:"omitempty,url"`
	KeyPrefix       string        `envconfig:"REDIS_KEY_PREFIX" default:"codetutor:"`
	DialTimeout     time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"2s"`
	ReadTimeout     time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"500ms"`
	BreakerCooldown time.Duration `envconfig:"REDIS_BREAKER_COOLDOWN" default:"30s"`
}

// LimitsConfig holds quota and request guard settings.
type LimitsConfig struct {
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"500ms" validate:"gt=0"`
	// PlanPoliciesJSON replaces the built-in plan table when set. It is a JSON
	// array of {plan, dailyAnalysesLimit, apiRequestsPerMonth, features}.
	PlanPoliciesJSON string `envconfig:"PLAN_POLICIES_JSON" validate:"omitempty,json"`
	MaxCodeSize      int    `envconfig:"MAX_CODE_SIZE" default:"1000000" validate:"gt=0"`
}

// AuthConfig holds Supabase Auth settings. Access tokens are verified locally
// with either the project's HS256 JWT secret or its JWKS endpoint.
type AuthConfig struct {
	SupabaseURL     string       `envconfig:"SUPABASE_URL" validate:"required,url"`
	SupabaseAnonKey SecretString `envconfig:"SUPABASE_ANON_KEY" validate:"required"`
	JWTSecret       SecretString `envconfig:"SUPABASE_JWT_SECRET" validate:"required_without=JWKSURL"`
	JWKSURL         string       `envconfig:"SUPABASE_JWKS_URL" validate:"omitempty,url"`
	Audience        string       `envconfig:"SUPABASE_JWT_AUDIENCE" default:"authenticated"`
	// FrontendURL hosts the /reset-password page password reset emails
	// link to.
	FrontendURL string `envconfig:"FRONTEND_URL" validate:"omitempty,url"`
}

// RecoveryRedirect is the landing page of password reset links, or empty
// when FrontendURL is unset.
func (a AuthConfig) RecoveryRedirect() string {
	if a.FrontendURL == "" {
		return ""
	}
	return strings.TrimSuffix(a.FrontendURL, "/") + "/reset-password"
}

// AnthropicConfig holds the Messages API client settings.
type AnthropicConfig struct {
	APIKey    SecretString  `envconfig:"ANTHROPIC_API_KEY" validate:"required"`
	Model     string        `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-sonnet-20241022"`
	BaseURL   string        `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com" validate:"url"`
	Timeout   time.Duration `envconfig:"ANTHROPIC_TIMEOUT" default:"60s"`
	MaxTokens int           `envconfig:"ANTHROPIC_MAX_TOKENS" default:"16000" validate:"gt=0"`
}

// AWSConfig holds regional settings for SSM and CloudWatch.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig selects the metrics backend.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"CodeTutor"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be converted to
	// its field type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
