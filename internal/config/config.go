package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Asset store backends
const (
	AssetStoreLocal = "local"
	AssetStoreAzure = "azure"
	AssetStoreNone  = "none"
)

// Search index backends
const (
	SearchIndexUpstash   = "upstash"
	SearchIndexReindexer = "reindexer"
	SearchIndexNone      = "none"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	GatewayTimeout     time.Duration
	MaxRequestBodySize int64
	MaxImageSize       int64
	LogLevel           string

	// Hosts accepted for enqueue-by-URL; empty allows any host
	ImageURLAllowedHosts []string

	// Analysis gateway credentials
	AIGatewayBaseURL string
	AIGatewayAPIKey  string
	GeminiAPIKey     string

	// Asset store
	AssetStore            string
	AssetPrefix           string
	LocalAssetDir         string
	PublicBaseURL         string
	AzureStorageAccount   string
	AzureStorageKey       string
	AzureStorageContainer string

	// Search index
	SearchIndex        string
	UpstashSearchURL   string
	UpstashSearchToken string
	SearchIndexName    string
	ReindexerDSN       string

	// Analysis settings seed
	SettingsFile     string
	BatchConcurrency int
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// LoadFromEnv reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables win.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	// Set defaults
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		GatewayTimeout:     parseDurationOrDefault("GATEWAY_TIMEOUT", 60*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 64*1024*1024), // 64MB
		MaxImageSize:       parseIntOrDefault("MAX_IMAGE_SIZE", 20*1024*1024),        // 20MB
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),

		ImageURLAllowedHosts: parseListOrDefault("IMAGE_URL_ALLOWED_HOSTS"),

		AIGatewayBaseURL: getEnvOrDefault("AI_GATEWAY_BASE_URL", "https://ai-gateway.vercel.sh/v1"),
		AIGatewayAPIKey:  os.Getenv("AI_GATEWAY_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),

		AssetStore:            strings.ToLower(getEnvOrDefault("ASSET_STORE", AssetStoreLocal)),
		AssetPrefix:           getEnvOrDefault("ASSET_PREFIX", "img-base"),
		LocalAssetDir:         getEnvOrDefault("LOCAL_ASSET_DIR", "./data/assets"),
		PublicBaseURL:         getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080/assets"),
		AzureStorageAccount:   os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:       os.Getenv("AZURE_STORAGE_KEY"),
		AzureStorageContainer: getEnvOrDefault("AZURE_STORAGE_CONTAINER", "images"),

		SearchIndex:        strings.ToLower(getEnvOrDefault("SEARCH_INDEX", SearchIndexUpstash)),
		UpstashSearchURL:   os.Getenv("UPSTASH_SEARCH_REST_URL"),
		UpstashSearchToken: os.Getenv("UPSTASH_SEARCH_REST_TOKEN"),
		SearchIndexName:    getEnvOrDefault("SEARCH_INDEX_NAME", "img-base"),
		ReindexerDSN:       getEnvOrDefault("REINDEXER_DSN", "cproto://localhost:6534/images"),

		SettingsFile:     os.Getenv("SETTINGS_FILE"),
		BatchConcurrency: int(parseIntOrDefault("BATCH_CONCURRENCY", 1)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImageSize <= 0 || c.MaxImageSize > c.MaxRequestBodySize {
		return fmt.Errorf("MAX_IMAGE_SIZE must be > 0 and <= MAX_REQUEST_BODY_SIZE (got %d)", c.MaxImageSize)
	}
	if c.RequestTimeout <= 0 || c.GatewayTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, gateway=%s)",
			c.RequestTimeout, c.GatewayTimeout)
	}
	switch c.AssetStore {
	case AssetStoreLocal, AssetStoreAzure, AssetStoreNone:
	default:
		return fmt.Errorf("invalid ASSET_STORE: %q", c.AssetStore)
	}
	switch c.SearchIndex {
	case SearchIndexUpstash, SearchIndexReindexer, SearchIndexNone:
	default:
		return fmt.Errorf("invalid SEARCH_INDEX: %q", c.SearchIndex)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be >= 1 (got %d)", c.BatchConcurrency)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// parseListOrDefault splits a comma-separated value, dropping blanks.
func parseListOrDefault(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
