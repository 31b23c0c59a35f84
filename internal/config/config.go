package config

import (
	"os"
	"strconv"
)

type Config struct {
	// Document store. Postgres is opened when DatabaseURL is set;
	// redis otherwise.
	RedisURL    string
	DatabaseURL string
	// Asset store (S3-compatible).
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioPublicURL string
	MinioUseSSL    bool
	// Identity handed to the engine by the auth collaborator.
	UserEmail string
	UserName  string
}

func Load() Config {
	return Config{
		RedisURL:       getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getenv("MINIO_BUCKET", "eunify-media"),
		MinioPublicURL: getenv("MINIO_PUBLIC_URL", "http://localhost:9000"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		UserEmail:      getenv("FEED_USER_EMAIL", "demo@eunify.app"),
		UserName:       getenv("FEED_USER_NAME", "Demo User"),
	}
}

// DocstoreBackend picks the document store for this process. DATABASE_URL
// has no default, so setting it selects postgres; redis is the default
// because REDIS_URL always has a value.
func (c Config) DocstoreBackend() string {
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "redis"
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
