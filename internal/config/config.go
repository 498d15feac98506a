// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links in emails.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings for the session cache.
	Redis RedisConfig

	// Token holds signing secrets and lifetimes for all token types.
	Token TokenConfig

	// Mail holds SMTP delivery settings for activation emails.
	Mail MailConfig

	// Storage holds S3-compatible object storage settings for avatars.
	Storage StorageConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so container
// orchestrators can manage each independently. If DATABASE_URL is set, it
// takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "edustack").
	User string

	// Password is the MariaDB password (default: "edustack").
	Password string

	// Name is the database name (default: "edustack").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// TokenConfig holds the three independent signing secrets and their
// lifetimes. Separate secrets per token type isolate blast radius: leaking
// one token type does not let an attacker forge another.
type TokenConfig struct {
	// AccessSecret signs short-lived access tokens.
	AccessSecret string

	// AccessExpire is the access token lifetime (default: 5m). Also used
	// as the access cookie MaxAge.
	AccessExpire time.Duration

	// RefreshSecret signs long-lived refresh tokens.
	RefreshSecret string

	// RefreshExpire is the refresh token lifetime (default: 72h). Also used
	// as the refresh cookie MaxAge.
	RefreshExpire time.Duration

	// ActivationSecret signs account-activation tokens. The activation
	// lifetime is fixed at 5 minutes and is not configurable.
	ActivationSecret string
}

// MailConfig holds SMTP settings for outbound activation emails.
type MailConfig struct {
	// Host is the SMTP server hostname. Empty disables mail delivery.
	Host string

	// Port is the SMTP server port (default: 587).
	Port int

	// Username and Password authenticate against the SMTP server.
	Username string
	Password string

	// Encryption selects the transport: "starttls" (default), "ssl", or "none".
	Encryption string

	// FromName and FromAddress populate the From header.
	FromName    string
	FromAddress string

	// SendTimeout bounds a single delivery attempt so a slow SMTP server
	// cannot hold up the registration response (default: 10s).
	SendTimeout time.Duration
}

// StorageConfig holds S3-compatible object storage settings for avatar
// uploads. Works with AWS S3 and MinIO (via Endpoint override).
type StorageConfig struct {
	// AccessKey and SecretKey are static credentials for the storage backend.
	AccessKey string
	SecretKey string

	// Bucket is the bucket name for avatar objects (default: "avatars").
	Bucket string

	// Region is the storage region (default: "us-east-1").
	Region string

	// Endpoint overrides the S3 endpoint for MinIO or other compatible
	// backends. Empty uses AWS defaults.
	Endpoint string

	// PublicBaseURL is the base URL at which stored objects are served.
	PublicBaseURL string

	// MaxUploadSize is the maximum avatar file size in bytes.
	MaxUploadSize int64
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		BaseURL:  getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "edustack"),
			Password:        getEnv("DB_PASSWORD", "edustack"),
			Name:            getEnv("DB_NAME", "edustack"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Token: TokenConfig{
			AccessSecret:     getEnv("ACCESS_TOKEN_SECRET", ""),
			AccessExpire:     getEnvDuration("ACCESS_TOKEN_EXPIRE", 5*time.Minute),
			RefreshSecret:    getEnv("REFRESH_TOKEN_SECRET", ""),
			RefreshExpire:    getEnvDuration("REFRESH_TOKEN_EXPIRE", 72*time.Hour),
			ActivationSecret: getEnv("ACTIVATION_TOKEN_SECRET", ""),
		},

		Mail: MailConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USER", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			Encryption:  getEnv("SMTP_ENCRYPTION", "starttls"),
			FromName:    getEnv("MAIL_FROM_NAME", "EduStack"),
			FromAddress: getEnv("MAIL_FROM_ADDRESS", "no-reply@edustack.local"),
			SendTimeout: getEnvDuration("MAIL_SEND_TIMEOUT", 10*time.Second),
		},

		Storage: StorageConfig{
			AccessKey:     getEnv("S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("S3_SECRET_KEY", ""),
			Bucket:        getEnv("S3_BUCKET", "avatars"),
			Region:        getEnv("S3_REGION", "us-east-1"),
			Endpoint:      getEnv("S3_ENDPOINT", ""),
			PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
			MaxUploadSize: getEnvInt64("MAX_UPLOAD_SIZE", 2*1024*1024), // 2MB
		},
	}

	// Validate required secrets in production. Case-insensitive check catches
	// common variants like "Production", "prod", etc.
	if cfg.IsProduction() {
		for name, val := range map[string]string{
			"ACCESS_TOKEN_SECRET":     cfg.Token.AccessSecret,
			"REFRESH_TOKEN_SECRET":    cfg.Token.RefreshSecret,
			"ACTIVATION_TOKEN_SECRET": cfg.Token.ActivationSecret,
		} {
			if val == "" {
				return nil, fmt.Errorf("%s is required in production", name)
			}
			if len(val) < 32 {
				return nil, fmt.Errorf("%s must be at least 32 characters in production", name)
			}
		}
	}

	// Provide dev-only default secrets so local dev works without .env.
	if cfg.Token.AccessSecret == "" {
		cfg.Token.AccessSecret = "dev-access-secret-do-not-use-in-production!!"
	}
	if cfg.Token.RefreshSecret == "" {
		cfg.Token.RefreshSecret = "dev-refresh-secret-do-not-use-in-production!!"
	}
	if cfg.Token.ActivationSecret == "" {
		cfg.Token.ActivationSecret = "dev-activation-secret-do-not-use-in-production!!"
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvInt64 reads an int64 env var or returns the default.
func getEnvInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "72h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
