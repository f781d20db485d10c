package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Event and lock backends.
const (
	BackendNone  = "none"
	BackendRedis = "redis"
	BackendSQS   = "sqs"
	BackendLocal = "local"
)

// Stacking policies for overlapping discretionary and recurring windows.
const (
	StackingStack    = "stack"
	StackingOverride = "override"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool
	JWTSecret     string
	StoreBackend  string

	// Enforcement
	PersistenceTimeout         time.Duration
	MaxConflictRetries         int
	AllowPaymentsWithoutLimits bool
	LimitStackingPolicy        string
	DefaultTimeZone            string

	// HTTP edge
	RateLimit          string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration

	// Outbound integrations
	RedisURL      string
	EventsBackend string
	EventsStream  string
	SQSQueueURL   string
	AWSRegion     string
	LockBackend   string
	LockExpiry    time.Duration
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("STORE_BACKEND", StorePostgres)
	viper.SetDefault("PERSISTENCE_TIMEOUT", "3s")
	viper.SetDefault("MAX_CONFLICT_RETRIES", 3)
	viper.SetDefault("ALLOW_PAYMENTS_WITHOUT_LIMITS", false)
	viper.SetDefault("LIMIT_STACKING_POLICY", StackingStack)
	viper.SetDefault("DEFAULT_TIME_ZONE", "UTC")
	viper.SetDefault("RATE_LIMIT", "100-M")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("EVENTS_BACKEND", BackendNone)
	viper.SetDefault("EVENTS_STREAM", "allowance.transactions")
	viper.SetDefault("SQS_QUEUE_URL", "")
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("LOCK_BACKEND", BackendNone)
	viper.SetDefault("LOCK_EXPIRY", "5s")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	cfg.StoreBackend = strings.ToLower(viper.GetString("STORE_BACKEND"))
	if cfg.StoreBackend != StorePostgres && cfg.StoreBackend != StoreMemory {
		log.Printf("Warning: unknown STORE_BACKEND ('%s'). Defaulting to %s.\n", cfg.StoreBackend, StorePostgres)
		cfg.StoreBackend = StorePostgres
	}
	if cfg.DatabaseURL == "" && cfg.StoreBackend == StorePostgres {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "a-very-secret-key-should-be-longer-and-random" // !! CHANGE IN PRODUCTION !!
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}

	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")

	cfg.PersistenceTimeout = durationOrDefault("PERSISTENCE_TIMEOUT", 3*time.Second)
	cfg.ShutdownTimeout = durationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.LockExpiry = durationOrDefault("LOCK_EXPIRY", 5*time.Second)

	cfg.MaxConflictRetries = viper.GetInt("MAX_CONFLICT_RETRIES")
	if cfg.MaxConflictRetries < 0 {
		log.Printf("Warning: MAX_CONFLICT_RETRIES must not be negative (%d). Defaulting to 3.\n", cfg.MaxConflictRetries)
		cfg.MaxConflictRetries = 3
	}
	cfg.AllowPaymentsWithoutLimits = viper.GetBool("ALLOW_PAYMENTS_WITHOUT_LIMITS")

	cfg.LimitStackingPolicy = strings.ToLower(viper.GetString("LIMIT_STACKING_POLICY"))
	if cfg.LimitStackingPolicy != StackingStack && cfg.LimitStackingPolicy != StackingOverride {
		log.Printf("Warning: invalid LIMIT_STACKING_POLICY ('%s'). Defaulting to %s.\n", cfg.LimitStackingPolicy, StackingStack)
		cfg.LimitStackingPolicy = StackingStack
	}

	cfg.DefaultTimeZone = viper.GetString("DEFAULT_TIME_ZONE")
	if _, err := time.LoadLocation(cfg.DefaultTimeZone); err != nil {
		log.Printf("Warning: invalid DEFAULT_TIME_ZONE ('%s'). Defaulting to UTC.\n", cfg.DefaultTimeZone)
		cfg.DefaultTimeZone = "UTC"
	}

	cfg.RateLimit = viper.GetString("RATE_LIMIT")
	cfg.CORSAllowedOrigins = splitList(viper.GetString("CORS_ALLOWED_ORIGINS"))

	cfg.RedisURL = viper.GetString("REDIS_URL")
	cfg.EventsBackend = strings.ToLower(viper.GetString("EVENTS_BACKEND"))
	cfg.EventsStream = viper.GetString("EVENTS_STREAM")
	cfg.SQSQueueURL = viper.GetString("SQS_QUEUE_URL")
	cfg.AWSRegion = viper.GetString("AWS_REGION")
	if cfg.EventsBackend == BackendSQS && cfg.SQSQueueURL == "" {
		log.Println("Warning: EVENTS_BACKEND is sqs but SQS_QUEUE_URL is not set. Events will not be published.")
		cfg.EventsBackend = BackendNone
	}
	cfg.LockBackend = strings.ToLower(viper.GetString("LOCK_BACKEND"))

	return cfg, nil
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, fallback.String())
		}
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
