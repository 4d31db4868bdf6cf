package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `validate:"required"`
	MongoURI string `validate:"required"`
	MongoDB  string `validate:"required"`

	MinioEndpoint  string `validate:"required"`
	MinioAccessKey string `validate:"required"`
	MinioSecretKey string `validate:"required"`
	MinioBucket    string `validate:"required"`
	MinioUseSSL    bool

	JWTSecret string `validate:"required,min=16"`
	// PublicBaseURL is the origin share links are built on.
	PublicBaseURL string `validate:"required,url"`
	LogLevel      string
}

// Load reads configuration from the environment, with a .env file as an
// optional local override.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := Config{
		Port:           getenv("PORT", "8080"),
		MongoURI:       getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getenv("MONGO_DB", "recd"),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getenv("MINIO_BUCKET", "recd-files"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		JWTSecret:      os.Getenv("JWT_SECRET"),
		PublicBaseURL:  getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured level name to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
