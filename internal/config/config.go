package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AI providers the server can talk to.
const (
	ProviderGateway = "gateway"
	ProviderOllama  = "ollama"
	ProviderGemini  = "gemini"
)

// Storage drivers for learner documents.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Timeouts holds the fixed ceilings applied to each outbound AI call.
type Timeouts struct {
	Status time.Duration
	Models time.Duration
	Chat   time.Duration
	Essay  time.Duration
	Quiz   time.Duration
}

// R2 holds the optional Cloudflare R2 archive settings.
type R2 struct {
	AccountID       string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

// Enabled reports whether every R2 variable is set.
func (r R2) Enabled() bool {
	return r.AccountID != "" && r.BucketName != "" && r.AccessKeyID != "" && r.SecretAccessKey != "" && r.PublicURL != ""
}

// Config holds all the configuration for the server.
type Config struct {
	Port          string
	LogMode       string
	FrontendURLs  []string
	SessionSecret string

	AIProvider   string
	GatewayURL   string
	OllamaURL    string
	DefaultModel string
	GeminiAPIKey string
	GeminiModel  string

	StorageDriver string
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPrefix   string

	// WorkspaceIdleTimeout is how long an unused learner workspace stays in memory.
	WorkspaceIdleTimeout time.Duration

	Timeouts Timeouts
	R2       R2

	// EnvFileLoaded is true when a .env file was found and loaded.
	EnvFileLoaded bool
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	loaded := true
	if err := godotenv.Load(); err != nil {
		// Only treat "file not found" as a warning, other errors are fatal
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
		loaded = false
	}

	cfg := &Config{
		Port:          String("PORT", "8080"),
		LogMode:       String("LOG_MODE", "dev"),
		FrontendURLs:  List("FRONTEND_URL", []string{"http://localhost:5173"}),
		SessionSecret: os.Getenv("SESSION_SECRET"),

		AIProvider:   strings.ToLower(String("AI_PROVIDER", ProviderGateway)),
		GatewayURL:   strings.TrimSuffix(String("GATEWAY_URL", "http://localhost:5000"), "/"),
		OllamaURL:    strings.TrimSuffix(String("OLLAMA_URL", "http://localhost:11434/v1"), "/"),
		DefaultModel: String("DEFAULT_MODEL", ""),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  String("GEMINI_MODEL", "gemini-2.0-flash"),

		StorageDriver: strings.ToLower(String("STORAGE_DRIVER", StorageSQLite)),
		SQLitePath:    String("SQLITE_PATH", "./data/examprephub.db"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     String("REDIS_ADDR", "localhost:6379"),
		RedisPrefix:   String("REDIS_PREFIX", "examprephub"),

		WorkspaceIdleTimeout: Duration("WORKSPACE_IDLE_TIMEOUT", 30*time.Minute),

		Timeouts: Timeouts{
			Status: Duration("STATUS_TIMEOUT", 5*time.Second),
			Models: Duration("MODELS_TIMEOUT", 10*time.Second),
			Chat:   Duration("CHAT_TIMEOUT", 120*time.Second),
			Essay:  Duration("ESSAY_TIMEOUT", 180*time.Second),
			Quiz:   Duration("QUIZ_TIMEOUT", 180*time.Second),
		},
		R2: R2{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			PublicURL:       os.Getenv("R2_PUBLIC_URL"),
		},
		EnvFileLoaded: loaded,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combinations that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.AIProvider {
	case ProviderGateway, ProviderOllama:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required when AI_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}

	switch c.StorageDriver {
	case StorageMemory, StorageSQLite, StorageRedis:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is required when STORAGE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}

// String returns the trimmed value of name, or def when unset.
func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

// List splits a comma separated variable.
func List(name string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSuffix(strings.TrimSpace(part), "/")
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Duration parses a Go duration ("90s") or a bare number of seconds.
func Duration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
