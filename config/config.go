package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Credential providers accepted in CREDENTIALS_PROVIDER.
const (
	ProviderLiveKit = "livekit"
	ProviderZego    = "zego"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	LiveKit     LiveKitConfig
	Recording   RecordingConfig
	Storage     StorageConfig
	Zego        ZegoConfig
	Credentials CredentialsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string // if set, used as-is (e.g. postgres://localhost:5432/liveclass?sslmode=disable)
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int
	QueryTimeoutSec int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds user session JWT settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// LiveKitConfig holds the media-control plane endpoint and credentials.
// WebhookSecret defaults to APISecret when unset.
type LiveKitConfig struct {
	URL             string
	APIKey          string
	APISecret       string
	WebhookSecret   string
	EmptyTimeoutSec uint32
	CallTimeoutSec  int
}

// RecordingConfig controls how egress jobs are requested.
type RecordingConfig struct {
	Layout     string // room composite layout, e.g. "speaker"
	PathPrefix string // object key prefix for recorded files
}

// StorageConfig is the S3-compatible bucket egress writes to and downloads are presigned from.
type StorageConfig struct {
	Endpoint             string // empty for AWS; set for MinIO and friends
	Region               string
	Bucket               string
	AccessKeyID          string
	SecretAccessKey      string
	ForcePathStyle       bool
	PresignExpireMinutes int
}

// ZegoConfig holds ZEGOCLOUD credentials for the alternative token minter.
type ZegoConfig struct {
	AppID        uint32
	ServerSecret string
	ServerURL    string
}

// CredentialsConfig selects the minter and token lifetime.
type CredentialsConfig struct {
	Provider   string
	TTLMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// QueryTimeout returns the per-statement store timeout.
func (c DatabaseConfig) QueryTimeout() time.Duration {
	if c.QueryTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

// CallTimeout returns the bound applied to every media-control call.
func (c LiveKitConfig) CallTimeout() time.Duration {
	if c.CallTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.CallTimeoutSec) * time.Second
}

// Enabled reports whether the LiveKit plane is configured.
func (c LiveKitConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != "" && c.APISecret != ""
}

// Enabled reports whether an artifact bucket is configured.
func (c StorageConfig) Enabled() bool {
	return c.Bucket != "" && c.Region != ""
}

// PresignExpire returns the download link lifetime.
func (c StorageConfig) PresignExpire() time.Duration {
	if c.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.PresignExpireMinutes) * time.Minute
}

// TTL returns the credential lifetime, clamped to [1m, 1h].
func (c CredentialsConfig) TTL() time.Duration {
	ttl := time.Duration(c.TTLMinutes) * time.Minute
	if ttl < time.Minute {
		return time.Hour
	}
	if ttl > time.Hour {
		return time.Hour
	}
	return ttl
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "liveclass"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
			QueryTimeoutSec: getEnvInt("DB_QUERY_TIMEOUT_SEC", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		LiveKit: LiveKitConfig{
			URL:             getEnv("LIVEKIT_URL", ""),
			APIKey:          getEnv("LIVEKIT_API_KEY", ""),
			APISecret:       getEnv("LIVEKIT_API_SECRET", ""),
			WebhookSecret:   getEnv("LIVEKIT_WEBHOOK_SECRET", ""),
			EmptyTimeoutSec: uint32(getEnvInt("LIVEKIT_EMPTY_TIMEOUT_SEC", 600)),
			CallTimeoutSec:  getEnvInt("LIVEKIT_CALL_TIMEOUT_SEC", 10),
		},
		Recording: RecordingConfig{
			Layout:     getEnv("RECORDING_LAYOUT", "speaker"),
			PathPrefix: getEnv("RECORDING_PATH_PREFIX", "recordings"),
		},
		Storage: StorageConfig{
			Endpoint:             getEnv("S3_ENDPOINT", ""),
			Region:               getEnv("S3_REGION", getEnv("AWS_REGION", "")),
			Bucket:               getEnv("S3_BUCKET", ""),
			AccessKeyID:          getEnv("S3_KEY_ID", getEnv("AWS_ACCESS_KEY_ID", "")),
			SecretAccessKey:      getEnv("S3_KEY_SECRET", getEnv("AWS_SECRET_ACCESS_KEY", "")),
			ForcePathStyle:       getEnvBool("S3_FORCE_PATH_STYLE", false),
			PresignExpireMinutes: getEnvInt("S3_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Zego: ZegoConfig{
			AppID:        uint32(getEnvInt("ZEGO_APP_ID", 0)),
			ServerSecret: getEnv("ZEGO_SERVER_SECRET", ""),
			ServerURL:    getEnv("ZEGO_SERVER_URL", ""),
		},
		Credentials: CredentialsConfig{
			Provider:   strings.ToLower(getEnv("CREDENTIALS_PROVIDER", ProviderLiveKit)),
			TTLMinutes: getEnvInt("CREDENTIALS_TTL_MINUTES", 60),
		},
	}
	if cfg.LiveKit.WebhookSecret == "" {
		cfg.LiveKit.WebhookSecret = cfg.LiveKit.APISecret
	}
	switch cfg.Credentials.Provider {
	case ProviderLiveKit, ProviderZego:
	default:
		return nil, fmt.Errorf("unknown CREDENTIALS_PROVIDER %q", cfg.Credentials.Provider)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
