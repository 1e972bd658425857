package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Auth     AuthConfig
	Media    MediaConfig
	OAuth    OAuthConfig
	OCR      OCRConfig
	Events   EventsConfig
	Fleet    FleetConfig
}

// AppConfig contains process-wide settings.
type AppConfig struct {
	Env      string // "development" enables console logging
	LogLevel string
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// HTTPConfig contains REST server settings.
type HTTPConfig struct {
	Address string
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// AuthConfig contains bearer token verification settings.
type AuthConfig struct {
	JWTSecret string // HS256 key shared with the authorization server
}

// MediaConfig controls where uploaded prescription images are stored.
type MediaConfig struct {
	Root           string
	MaxUploadBytes int64
}

// OAuthConfig points at the external OAuth2 authorization server.
type OAuthConfig struct {
	TokenURL     string
	RevokeURL    string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// OCRConfig points at the external handwriting recognition service.
type OCRConfig struct {
	URL     string
	Timeout time.Duration
}

// EventsConfig selects the delivery event publishers. Empty values disable them.
type EventsConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string
	AMQPURL       string
	Exchange      string
}

// FleetConfig contains drone fleet assumptions used for estimates.
type FleetConfig struct {
	CruiseSpeedMPH float64
}

// Load loads configuration from environment variables with sensible defaults.
// JWT_SECRET and the OAuth client credentials are required.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return nil, fmt.Errorf("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET must be set")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

func load(defaultSecret string) (*Config, error) {
	maxUpload, err := getEnvInt("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	oauthTimeout, err := getEnvDuration("OAUTH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	ocrTimeout, err := getEnvDuration("OCR_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cruise, err := getEnvFloat("DRONE_CRUISE_MPH", 30)
	if err != nil {
		return nil, err
	}
	return &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "letdrone.db"),
		},
		HTTP: HTTPConfig{
			Address: getEnv("HTTP_ADDRESS", ":8000"),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", defaultSecret),
		},
		Media: MediaConfig{
			Root:           getEnv("MEDIA_ROOT", "media"),
			MaxUploadBytes: int64(maxUpload),
		},
		OAuth: OAuthConfig{
			TokenURL:     getEnv("OAUTH_TOKEN_URL", "http://127.0.0.1:8001/o/token/"),
			RevokeURL:    getEnv("OAUTH_REVOKE_URL", "http://127.0.0.1:8001/o/revoke_token/"),
			ClientID:     getEnv("OAUTH_CLIENT_ID", ""),
			ClientSecret: getEnv("OAUTH_CLIENT_SECRET", ""),
			Timeout:      oauthTimeout,
		},
		OCR: OCRConfig{
			URL:     getEnv("OCR_URL", "http://127.0.0.1:9000"),
			Timeout: ocrTimeout,
		},
		Events: EventsConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
			RedisChannel:  getEnv("REDIS_CHANNEL", "deliveries"),
			AMQPURL:       getEnv("AMQP_URL", ""),
			Exchange:      getEnv("EVENTS_EXCHANGE", "delivery_topic"),
		},
		Fleet: FleetConfig{
			CruiseSpeedMPH: cruise,
		},
	}, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, DB: %s, HTTP: %s, gRPC: %s, OAuth: %s, OCR: %s, Auth: *** (masked) ***}",
		c.App.Env, c.Database.Path, c.HTTP.Address, c.GRPC.Address, c.OAuth.TokenURL, c.OCR.URL)
}
