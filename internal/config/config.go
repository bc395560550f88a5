// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported backends.
const (
	IdentityProviderLocal    = "local"
	IdentityProviderFirebase = "firebase"

	DocstoreBackendGORM      = "gorm"
	DocstoreBackendFirestore = "firestore"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	// Server Configuration
	GinMode       string        `mapstructure:"GIN_MODE"`
	ServerHost    string        `mapstructure:"SERVER_HOST"`
	ServerPort    string        `mapstructure:"SERVER_PORT"`
	ServerTimeout time.Duration `mapstructure:"SERVER_TIMEOUT_SECONDS"`

	// Database Configuration
	DBDriver          string        `mapstructure:"DB_DRIVER"`
	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            string        `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSSLMode         string        `mapstructure:"DB_SSL_MODE"`
	DBTimezone        string        `mapstructure:"DB_TIMEZONE"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBSQLitePath      string        `mapstructure:"DB_SQLITE_PATH"`

	// Logging Configuration
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Backends
	IdentityProvider string `mapstructure:"IDENTITY_PROVIDER"`
	DocstoreBackend  string `mapstructure:"DOCSTORE_BACKEND"`
	BcryptCost       int    `mapstructure:"BCRYPT_COST"`

	// Firebase Configuration
	FirebaseServiceAccountKeyPath string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_KEY_PATH"`
	FirebaseProjectID             string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseWebAPIKey             string `mapstructure:"FIREBASE_WEB_API_KEY"`

	// Google sign-in
	GoogleClientID       string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI    string `mapstructure:"GOOGLE_REDIRECT_URI"`
	OAuthStateCookieName string `mapstructure:"OAUTH_STATE_COOKIE_NAME"`
	OAuthCookieSecure    bool   `mapstructure:"OAUTH_COOKIE_SECURE"`
	OAuthCookieMaxAge    int    `mapstructure:"OAUTH_COOKIE_MAX_AGE_SECONDS"`

	// Session tokens
	JWTSecretKey         string        `mapstructure:"JWT_SECRET_KEY"`
	JWTAccessTokenExpiry time.Duration `mapstructure:"JWT_ACCESS_TOKEN_EXPIRY_MINUTES"`
	SessionIdleTTL       time.Duration `mapstructure:"SESSION_IDLE_TTL_MINUTES"`
	SessionCallTimeout   time.Duration `mapstructure:"SESSION_CALL_TIMEOUT_SECONDS"`
	SessionGuardWait     time.Duration `mapstructure:"SESSION_GUARD_WAIT_MS"`
	PublicEntryPoint     string        `mapstructure:"PUBLIC_ENTRY_POINT"`

	// Cron Jobs
	ContentSweepSchedule   string `mapstructure:"CONTENT_SWEEP_SCHEDULE"`
	ContentEndedGraceHours int    `mapstructure:"CONTENT_ENDED_GRACE_HOURS"`

	// Media uploads
	MediaStoragePath    string `mapstructure:"MEDIA_STORAGE_PATH"`
	MediaBaseURL        string `mapstructure:"MEDIA_BASE_URL"`
	MediaMaxUploadBytes int64  `mapstructure:"MEDIA_MAX_UPLOAD_BYTES"`

	// Elasticsearch Configuration
	ElasticsearchURL string `mapstructure:"ELASTICSEARCH_URL"`

	// NATS
	NATSURL     string `mapstructure:"NATS_URL"`
	NATSSubject string `mapstructure:"NATS_SESSION_SUBJECT"`
}

// Load attempts to load configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Convert duration fields
	cfg.ServerTimeout = time.Duration(v.GetInt("SERVER_TIMEOUT_SECONDS")) * time.Second
	cfg.DBConnMaxLifetime = time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_MINUTES")) * time.Minute
	cfg.JWTAccessTokenExpiry = time.Duration(v.GetInt("JWT_ACCESS_TOKEN_EXPIRY_MINUTES")) * time.Minute
	cfg.SessionIdleTTL = time.Duration(v.GetInt("SESSION_IDLE_TTL_MINUTES")) * time.Minute
	cfg.SessionCallTimeout = time.Duration(v.GetInt("SESSION_CALL_TIMEOUT_SECONDS")) * time.Second
	cfg.SessionGuardWait = time.Duration(v.GetInt("SESSION_GUARD_WAIT_MS")) * time.Millisecond

	cfg.IdentityProvider = strings.ToLower(strings.TrimSpace(cfg.IdentityProvider))
	cfg.DocstoreBackend = strings.ToLower(strings.TrimSpace(cfg.DocstoreBackend))
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_TIMEOUT_SECONDS", 30)

	v.SetDefault("DB_DRIVER", DBDriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "live_learning_db")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_MAX_OPEN_CONNS", 100)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 60)
	v.SetDefault("DB_SQLITE_PATH", "live_learning.db")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("IDENTITY_PROVIDER", IdentityProviderLocal)
	v.SetDefault("DOCSTORE_BACKEND", DocstoreBackendGORM)
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_KEY_PATH", "")
	v.SetDefault("FIREBASE_WEB_API_KEY", "")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/v1/auth/google/callback")
	v.SetDefault("OAUTH_STATE_COOKIE_NAME", "oauth_state")
	v.SetDefault("OAUTH_COOKIE_SECURE", false)
	v.SetDefault("OAUTH_COOKIE_MAX_AGE_SECONDS", 600)

	v.SetDefault("JWT_SECRET_KEY", "")
	v.SetDefault("JWT_ACCESS_TOKEN_EXPIRY_MINUTES", 60)
	v.SetDefault("SESSION_IDLE_TTL_MINUTES", 30)
	v.SetDefault("SESSION_CALL_TIMEOUT_SECONDS", 10)
	v.SetDefault("SESSION_GUARD_WAIT_MS", 2000)
	v.SetDefault("PUBLIC_ENTRY_POINT", "/login")

	v.SetDefault("CONTENT_SWEEP_SCHEDULE", "@hourly")
	v.SetDefault("CONTENT_ENDED_GRACE_HOURS", 3)

	v.SetDefault("MEDIA_STORAGE_PATH", "./media")
	v.SetDefault("MEDIA_BASE_URL", "/media")
	v.SetDefault("MEDIA_MAX_UPLOAD_BYTES", 5<<20)

	v.SetDefault("ELASTICSEARCH_URL", "")

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SESSION_SUBJECT", "session.changed")
}

// Validate checks the keys required by the selected backends.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		return fmt.Errorf("FATAL: JWT_SECRET_KEY is not set")
	}

	switch c.IdentityProvider {
	case IdentityProviderLocal, IdentityProviderFirebase:
	default:
		return fmt.Errorf("FATAL: unsupported IDENTITY_PROVIDER %q", c.IdentityProvider)
	}
	switch c.DocstoreBackend {
	case DocstoreBackendGORM, DocstoreBackendFirestore:
	default:
		return fmt.Errorf("FATAL: unsupported DOCSTORE_BACKEND %q", c.DocstoreBackend)
	}
	switch c.DBDriver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return fmt.Errorf("FATAL: unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.UsesFirebase() {
		if strings.TrimSpace(c.FirebaseServiceAccountKeyPath) == "" {
			return fmt.Errorf("FATAL: FIREBASE_SERVICE_ACCOUNT_KEY_PATH is not set. This is required for Firebase Admin SDK initialization")
		}
		if _, err := os.Stat(c.FirebaseServiceAccountKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("FATAL: Firebase service account key file specified in FIREBASE_SERVICE_ACCOUNT_KEY_PATH (%s) not found", c.FirebaseServiceAccountKeyPath)
		}
	}
	if c.IdentityProvider == IdentityProviderFirebase && strings.TrimSpace(c.FirebaseWebAPIKey) == "" {
		return fmt.Errorf("FATAL: FIREBASE_WEB_API_KEY is required for email/password sign-in with the firebase identity provider")
	}
	return nil
}

// UsesFirebase reports whether any configured backend needs the Firebase Admin SDK.
func (c *Config) UsesFirebase() bool {
	return c.IdentityProvider == IdentityProviderFirebase || c.DocstoreBackend == DocstoreBackendFirestore
}

// GoogleSignInEnabled reports whether the server-side Google OAuth flow is configured.
func (c *Config) GoogleSignInEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
