package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL string
	SQLitePath  string

	JWTIssuer          string
	JWTAudience        string
	JWTAccessSecret    string
	JWTRefreshSecret   string
	JWTAccessTTL       time.Duration
	JWTRefreshTTL      time.Duration
	RefreshTokenPepper string
	StateSigningSecret string

	VerificationSecret   string
	VerificationTTL      time.Duration
	VerificationCooldown time.Duration
	VerifyLinkBaseURL    string
	ResetLinkBaseURL     string

	LockoutThreshold int
	LockoutDuration  time.Duration

	CookieDomain   string
	CookieSecure   bool
	CookieSameSite string

	CORSAllowedOrigins []string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	AuthGoogleEnabled  bool

	AuthRateLimitPerMin    int
	ForgotRateLimitPerMin  int
	APIRateLimitPerMin     int
	RateLimitRedisEnabled  bool
	RateLimitRedisPrefix   string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AbuseGuardFreeAttempts int
	AbuseGuardBaseDelay    time.Duration
	AbuseGuardMaxDelay     time.Duration
	AbuseGuardResetWindow  time.Duration

	DemoAccountEmail string

	StorageEnabled   bool
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool

	ReadinessProbeTimeout  time.Duration
	ServerStartGracePeriod time.Duration

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	googleClientID := os.Getenv("GOOGLE_OAUTH_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET")
	googleEnabled := getEnvBool("AUTH_GOOGLE_ENABLED", true)
	if _, explicitlySet := os.LookupEnv("AUTH_GOOGLE_ENABLED"); !explicitlySet &&
		(googleClientID == "" || googleClientSecret == "") && isLocalLikeEnv(env) {
		googleEnabled = false
	}

	cfg := &Config{
		Env:                env,
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		JWTIssuer:          getEnv("JWT_ISSUER", "resumekit"),
		JWTAudience:        getEnv("JWT_AUDIENCE", "resumekit-api"),
		JWTAccessSecret:    os.Getenv("JWT_ACCESS_SECRET"),
		JWTRefreshSecret:   os.Getenv("JWT_REFRESH_SECRET"),
		RefreshTokenPepper: os.Getenv("REFRESH_TOKEN_PEPPER"),
		StateSigningSecret: os.Getenv("OAUTH_STATE_SECRET"),

		VerificationSecret: os.Getenv("VERIFICATION_SECRET"),
		VerifyLinkBaseURL:  getEnv("VERIFY_LINK_BASE_URL", "http://localhost:3000/verify-email"),
		ResetLinkBaseURL:   getEnv("RESET_LINK_BASE_URL", "http://localhost:3000/reset-password"),

		LockoutThreshold: getEnvInt("LOCKOUT_THRESHOLD", 5),

		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:   getEnvBool("COOKIE_SECURE", true),
		CookieSameSite: strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		GoogleRedirectURL:  getEnv("GOOGLE_OAUTH_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		AuthGoogleEnabled:  googleEnabled,

		AuthRateLimitPerMin:    getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		ForgotRateLimitPerMin:  getEnvInt("FORGOT_RATE_LIMIT_PER_MIN", 5),
		APIRateLimitPerMin:     getEnvInt("API_RATE_LIMIT_PER_MIN", 120),
		RateLimitRedisEnabled:  getEnvBool("RATE_LIMIT_REDIS_ENABLED", false),
		RateLimitRedisPrefix:   getEnv("RATE_LIMIT_REDIS_PREFIX", "resumekit:rl"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		AbuseGuardFreeAttempts: getEnvInt("ABUSE_GUARD_FREE_ATTEMPTS", 3),

		DemoAccountEmail: os.Getenv("DEMO_ACCOUNT_EMAIL"),

		StorageEnabled:   getEnvBool("STORAGE_ENABLED", false),
		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey: os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey: os.Getenv("STORAGE_SECRET_KEY"),
		StorageBucket:    getEnv("STORAGE_BUCKET", "resumekit"),
		StorageUseSSL:    getEnvBool("STORAGE_USE_SSL", false),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "resumekit"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", true),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", true),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", true),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"JWT_ACCESS_TTL", "15m", &cfg.JWTAccessTTL},
		{"JWT_REFRESH_TTL", "168h", &cfg.JWTRefreshTTL},
		{"VERIFICATION_TTL", "5m", &cfg.VerificationTTL},
		{"VERIFICATION_COOLDOWN", "60s", &cfg.VerificationCooldown},
		{"LOCKOUT_DURATION", "2h", &cfg.LockoutDuration},
		{"ABUSE_GUARD_BASE_DELAY", "2s", &cfg.AbuseGuardBaseDelay},
		{"ABUSE_GUARD_MAX_DELAY", "5m", &cfg.AbuseGuardMaxDelay},
		{"ABUSE_GUARD_RESET_WINDOW", "30m", &cfg.AbuseGuardResetWindow},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SERVER_START_GRACE_PERIOD", "0s", &cfg.ServerStartGracePeriod},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		errs = append(errs, "DATABASE_URL or SQLITE_PATH is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 chars")
	}
	if len(c.JWTRefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 chars")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if len(c.VerificationSecret) < 32 {
		errs = append(errs, "VERIFICATION_SECRET must be at least 32 chars")
	}
	if len(c.RefreshTokenPepper) < 16 {
		errs = append(errs, "REFRESH_TOKEN_PEPPER must be at least 16 chars")
	}
	if c.AuthGoogleEnabled && len(c.StateSigningSecret) < 16 {
		errs = append(errs, "OAUTH_STATE_SECRET must be at least 16 chars when AUTH_GOOGLE_ENABLED=true")
	}
	if c.AuthGoogleEnabled && c.GoogleClientID == "" {
		errs = append(errs, "GOOGLE_OAUTH_CLIENT_ID is required when AUTH_GOOGLE_ENABLED=true")
	}
	if c.AuthGoogleEnabled && c.GoogleClientSecret == "" {
		errs = append(errs, "GOOGLE_OAUTH_CLIENT_SECRET is required when AUTH_GOOGLE_ENABLED=true")
	}
	if c.JWTAccessTTL <= 0 || c.JWTAccessTTL > time.Hour {
		errs = append(errs, "JWT_ACCESS_TTL must be between 1s and 1h")
	}
	if c.JWTRefreshTTL <= 0 || c.JWTRefreshTTL > (30*24*time.Hour) {
		errs = append(errs, "JWT_REFRESH_TTL must be between 1s and 30d")
	}
	if c.VerificationTTL <= 0 || c.VerificationTTL > time.Hour {
		errs = append(errs, "VERIFICATION_TTL must be between 1s and 1h")
	}
	if c.VerificationCooldown <= 0 || c.VerificationCooldown > c.VerificationTTL {
		errs = append(errs, "VERIFICATION_COOLDOWN must be > 0 and <= VERIFICATION_TTL")
	}
	if c.LockoutThreshold <= 0 {
		errs = append(errs, "LOCKOUT_THRESHOLD must be > 0")
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, "LOCKOUT_DURATION must be > 0")
	}
	if c.AuthRateLimitPerMin <= 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.ForgotRateLimitPerMin <= 0 {
		errs = append(errs, "FORGOT_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.APIRateLimitPerMin <= 0 {
		errs = append(errs, "API_RATE_LIMIT_PER_MIN must be > 0")
	}
	if c.StorageEnabled && (c.StorageAccessKey == "" || c.StorageSecretKey == "") {
		errs = append(errs, "STORAGE_ACCESS_KEY and STORAGE_SECRET_KEY are required when STORAGE_ENABLED=true")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
