package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Web app
	Port           string
	SessionDir     string
	SessionSecret  string
	TabTTL         time.Duration
	MaxTabs        int
	MaxUploadBytes int64
	StoreTimeout   time.Duration

	// Store backend selection
	DataBackend string
	APIBaseURL  string
	APISecret   string

	// Remote API
	APIPort      string
	SQLiteDBPath string

	// Proof storage
	ProofBackend   string
	ProofDir       string
	ProofPublicURL string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3PathStyle    bool

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		SessionDir:     getEnv("SESSION_DIR", ""),
		SessionSecret:  getEnv("SESSION_SECRET", "billed-dev-session-secret"),
		TabTTL:         getEnvDuration("TAB_TTL", 12*time.Hour),
		MaxTabs:        getEnvInt("MAX_TABS", 1000),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		StoreTimeout:   getEnvDuration("STORE_TIMEOUT", 15*time.Second),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:5678"),
		APISecret:   getEnv("API_SECRET", "billed-dev-api-secret"),

		APIPort:      getEnv("API_PORT", "5678"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/billed.db"),

		ProofBackend:   getEnv("PROOF_BACKEND", "disk"),
		ProofDir:       getEnv("PROOF_DIR", "./data/proofs"),
		ProofPublicURL: getEnv("PROOF_PUBLIC_URL", "http://localhost:5678/proofs"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Region:       getEnv("S3_REGION", "eu-west-3"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3PathStyle:    getEnvBool("S3_PATH_STYLE", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "billed"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "bill_events"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate checks the settings of the web app.
func (c *Config) Validate() error {
	var errors []string

	errors = append(errors, validatePort("port", c.Port)...)

	switch c.DataBackend {
	case "memory":
	case "api":
		if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': must be an absolute http(s) URL", c.APIBaseURL))
		}
		if c.APISecret == "" {
			errors = append(errors, "API secret cannot be empty when using api backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [memory api]", c.DataBackend))
	}

	if c.SessionSecret == "" {
		errors = append(errors, "session secret cannot be empty")
	}
	if c.SessionDir != "" {
		if err := ensureDir(c.SessionDir); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create session directory '%s': %v", c.SessionDir, err))
		}
	}
	if c.TabTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid tab TTL %v: must be at least 1 minute", c.TabTTL))
	}
	if c.MaxTabs < 1 {
		errors = append(errors, fmt.Sprintf("invalid max tabs %d: must be at least 1", c.MaxTabs))
	}
	if c.MaxUploadBytes < 1<<10 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least 1024 bytes", c.MaxUploadBytes))
	}
	if c.StoreTimeout < 100*time.Millisecond || c.StoreTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be between 100ms and 5m", c.StoreTimeout))
	}
	errors = append(errors, validateLogLevel(c.LogLevel)...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateAPI checks the settings of the remote API server.
func (c *Config) ValidateAPI() error {
	var errors []string

	errors = append(errors, validatePort("API port", c.APIPort)...)

	if c.APISecret == "" {
		errors = append(errors, "API secret cannot be empty")
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if err := ensureDir(dir); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
		}
	}

	switch c.ProofBackend {
	case "disk":
		if c.ProofDir == "" {
			errors = append(errors, "proof directory cannot be empty when using disk proof backend")
		}
		if c.ProofPublicURL == "" {
			errors = append(errors, "proof public URL cannot be empty when using disk proof backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			errors = append(errors, "S3 bucket is required when using s3 proof backend")
		}
		if c.S3Region == "" {
			errors = append(errors, "S3 region is required when using s3 proof backend")
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			errors = append(errors, "S3 access key and secret key must be provided together")
		}
		if c.S3Endpoint != "" {
			if u, err := url.Parse(c.S3Endpoint); err != nil || u.Scheme == "" {
				errors = append(errors, fmt.Sprintf("invalid S3 endpoint '%s'", c.S3Endpoint))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid proof backend '%s': must be one of [disk s3]", c.ProofBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}
	errors = append(errors, validateLogLevel(c.LogLevel)...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func validatePort(name, value string) []string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': must be a number", name, value)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)}
	}
	return nil
}

func validateLogLevel(level string) []string {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return []string{fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", level)}
	}
}

func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
