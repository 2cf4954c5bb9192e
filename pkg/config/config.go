package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Email providers supported by the notification layer.
const (
	EmailProviderSendGrid = "sendgrid"
	EmailProviderLog      = "log"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Auth      AuthConfig
	Email     EmailConfig
	OAuth     OAuthConfig
	Mess      MessConfig
	Exports   ExportsConfig
	Dashboard DashboardConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig governs registration and verification rules.
type AuthConfig struct {
	OrgEmailDomain string
	OTPTTL         time.Duration
	SingleSession  bool
}

// EmailConfig selects and configures the transactional email provider.
type EmailConfig struct {
	Provider       string
	SendGridAPIKey string
	From           string
	FromName       string
	Workers        int
	Retries        int
}

// OAuthConfig holds the Google sign-in client registration.
type OAuthConfig struct {
	GoogleEnabled      bool
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	StateSecret        string
}

// MessConfig carries the fallback rate used when a month has no rate record.
type MessConfig struct {
	DefaultDailyRate     float64
	DefaultBreakfastRate float64
	DefaultLunchRate     float64
	DefaultDinnerRate    float64
}

// ExportsConfig controls bill statement storage and signed download links.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// DashboardConfig tunes dashboard caching.
type DashboardConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// RateLimitConfig bounds unauthenticated auth endpoints per client IP.
type RateLimitConfig struct {
	AuthPerMinute int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Auth = AuthConfig{
		OrgEmailDomain: normalizeDomain(v.GetString("ORG_EMAIL_DOMAIN")),
		OTPTTL:         parseDuration(v.GetString("OTP_TTL"), 10*time.Minute),
		SingleSession:  v.GetBool("AUTH_SINGLE_SESSION"),
	}

	cfg.Email = EmailConfig{
		Provider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		From:           v.GetString("EMAIL_FROM"),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
		Workers:        v.GetInt("EMAIL_WORKERS"),
		Retries:        v.GetInt("EMAIL_RETRIES"),
	}

	cfg.OAuth = OAuthConfig{
		GoogleEnabled:      v.GetBool("GOOGLE_OAUTH_ENABLED"),
		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		StateSecret:        v.GetString("OAUTH_STATE_SECRET"),
	}
	if cfg.OAuth.StateSecret == "" {
		cfg.OAuth.StateSecret = cfg.JWT.Secret
	}

	cfg.Mess = MessConfig{
		DefaultDailyRate:     v.GetFloat64("MESS_DEFAULT_DAILY_RATE"),
		DefaultBreakfastRate: v.GetFloat64("MESS_DEFAULT_BREAKFAST_RATE"),
		DefaultLunchRate:     v.GetFloat64("MESS_DEFAULT_LUNCH_RATE"),
		DefaultDinnerRate:    v.GetFloat64("MESS_DEFAULT_DINNER_RATE"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
	}
	if cfg.Exports.SignedURLSecret == "" {
		cfg.Exports.SignedURLSecret = cfg.JWT.Secret
	}

	cfg.Dashboard = DashboardConfig{
		CacheEnabled: v.GetBool("DASHBOARD_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), time.Minute),
	}

	cfg.RateLimit = RateLimitConfig{AuthPerMinute: v.GetInt("AUTH_RATE_LIMIT_PER_MINUTE")}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	require("JWT_SECRET", c.JWT.Secret)
	require("DB_HOST", c.Database.Host)
	require("DB_NAME", c.Database.Name)
	require("ORG_EMAIL_DOMAIN", c.Auth.OrgEmailDomain)

	switch c.Email.Provider {
	case EmailProviderSendGrid:
		require("SENDGRID_API_KEY", c.Email.SendGridAPIKey)
		require("EMAIL_FROM", c.Email.From)
	case EmailProviderLog:
		if c.Env == EnvProduction {
			return fmt.Errorf("config: EMAIL_PROVIDER=%s is not allowed in production", EmailProviderLog)
		}
	default:
		return fmt.Errorf("config: unsupported EMAIL_PROVIDER %q", c.Email.Provider)
	}

	if c.OAuth.GoogleEnabled {
		require("GOOGLE_CLIENT_ID", c.OAuth.GoogleClientID)
		require("GOOGLE_CLIENT_SECRET", c.OAuth.GoogleClientSecret)
		require("GOOGLE_REDIRECT_URL", c.OAuth.GoogleRedirectURL)
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "hostel")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_ISSUER", "hostel-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("AUTH_SINGLE_SESSION", false)

	v.SetDefault("EMAIL_PROVIDER", EmailProviderSendGrid)
	v.SetDefault("EMAIL_FROM_NAME", "Hostel Office")
	v.SetDefault("EMAIL_WORKERS", 2)
	v.SetDefault("EMAIL_RETRIES", 3)

	v.SetDefault("GOOGLE_OAUTH_ENABLED", false)

	v.SetDefault("MESS_DEFAULT_DAILY_RATE", 100)
	v.SetDefault("MESS_DEFAULT_BREAKFAST_RATE", 30)
	v.SetDefault("MESS_DEFAULT_LUNCH_RATE", 40)
	v.SetDefault("MESS_DEFAULT_DINNER_RATE", 30)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")

	v.SetDefault("DASHBOARD_CACHE_ENABLED", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "1m")

	v.SetDefault("AUTH_RATE_LIMIT_PER_MINUTE", 20)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// normalizeDomain lowercases the suffix and ensures it starts with "@".
func normalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return ""
	}
	if !strings.HasPrefix(d, "@") {
		d = "@" + d
	}
	return d
}
