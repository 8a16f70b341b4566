package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// WorkerConfig tunes the job processor.
type WorkerConfig struct {
	ID            string        `yaml:"id"`
	Concurrency   int           `yaml:"concurrency"`
	RenderTimeout time.Duration `yaml:"render_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	MetricsPort   string        `yaml:"metrics_port"`
}

// QueueConfig tunes scheduling and retries.
type QueueConfig struct {
	MaxPerOwner  int           `yaml:"max_per_owner"`
	MaxGlobal    int           `yaml:"max_global"`
	MaxRetries   int           `yaml:"max_retries"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffMax   time.Duration `yaml:"backoff_max"`
	LeaseTimeout time.Duration `yaml:"lease_timeout"`
}

// PricingConfig sets per-job credit costs and royalties in minor units.
type PricingConfig struct {
	AvatarCost           int64 `yaml:"avatar_cost"`
	HumanModelCost       int64 `yaml:"human_model_cost"`
	RoyaltyPerGeneration int64 `yaml:"royalty_per_generation"`
}

// PayoutConfig sets payout limits and fees.
type PayoutConfig struct {
	MinAmount  int64  `yaml:"min_amount"`
	Currency   string `yaml:"currency"`
	FeePercent string `yaml:"fee_percent"`
	FeeFixed   int64  `yaml:"fee_fixed"`
}

// RenderConfig points at the render API.
type RenderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Config represents application configuration. Defaults are overlaid by the
// optional YAML file named in CONFIG_FILE and then by environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	StoreDriver      string
	AutoMigrate      bool
	JWTSecret        string
	WorkerSecret     string
	StoragePath      string
	StorageBaseURL   string
	GeoIPDBPath      string
	DefaultLocale    string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string

	Worker  WorkerConfig  `yaml:"worker"`
	Queue   QueueConfig   `yaml:"queue"`
	Pricing PricingConfig `yaml:"pricing"`
	Payout  PayoutConfig  `yaml:"payout"`
	Render  RenderConfig  `yaml:"render"`
}

func defaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			Concurrency:   2,
			RenderTimeout: 90 * time.Second,
			PollInterval:  2 * time.Second,
			RatePerSecond: 2,
			Burst:         2,
		},
		Queue: QueueConfig{
			MaxPerOwner:  4,
			MaxGlobal:    32,
			MaxRetries:   3,
			BackoffBase:  10 * time.Second,
			BackoffMax:   5 * time.Minute,
			LeaseTimeout: 10 * time.Minute,
		},
		Pricing: PricingConfig{
			AvatarCost:           1,
			HumanModelCost:       1,
			RoyaltyPerGeneration: 50,
		},
		Payout: PayoutConfig{
			MinAmount:  1000,
			Currency:   "USD",
			FeePercent: "2.5",
		},
		Render: RenderConfig{
			BaseURL: "https://render.example.com",
			Model:   "tryon-v2",
		},
	}
}

// LoadConfig loads configuration and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.AppEnv = getEnv("APP_ENV", "development")
	cfg.Port = getEnv("PORT", "8080")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	cfg.AutoMigrate = getEnvBool("AUTO_MIGRATE", false)
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.WorkerSecret = os.Getenv("WORKER_SECRET")
	cfg.StoragePath = getEnv("STORAGE_PATH", "./storage")
	cfg.StorageBaseURL = getEnv("STORAGE_BASE_URL", "http://localhost:"+cfg.Port+"/static")
	cfg.GeoIPDBPath = os.Getenv("GEOIP_DB_PATH")
	cfg.DefaultLocale = getEnv("DEFAULT_LOCALE", "en")
	cfg.HTTPReadTimeout = time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15))
	cfg.HTTPWriteTimeout = time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30))
	cfg.HTTPIdleTimeout = time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60))
	cfg.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	cfg.CORSOrigins = getEnvList("CORS_ALLOWED_ORIGINS")

	cfg.Worker.ID = getEnv("WORKER_ID", cfg.Worker.ID)
	if cfg.Worker.ID == "" {
		host, _ := os.Hostname()
		cfg.Worker.ID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	cfg.Worker.Concurrency = getEnvInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.RenderTimeout = getEnvDuration("RENDER_TIMEOUT", cfg.Worker.RenderTimeout)
	cfg.Worker.PollInterval = getEnvDuration("WORKER_POLL_INTERVAL", cfg.Worker.PollInterval)
	cfg.Worker.RatePerSecond = getEnvFloat("RENDER_RATE_PER_SECOND", cfg.Worker.RatePerSecond)
	cfg.Worker.Burst = getEnvInt("RENDER_RATE_BURST", cfg.Worker.Burst)
	cfg.Worker.MetricsPort = getEnv("WORKER_METRICS_PORT", cfg.Worker.MetricsPort)

	cfg.Queue.MaxPerOwner = getEnvInt("QUEUE_MAX_PER_OWNER", cfg.Queue.MaxPerOwner)
	cfg.Queue.MaxGlobal = getEnvInt("QUEUE_MAX_GLOBAL", cfg.Queue.MaxGlobal)
	cfg.Queue.MaxRetries = getEnvInt("JOB_MAX_RETRIES", cfg.Queue.MaxRetries)
	cfg.Queue.BackoffBase = getEnvDuration("RETRY_BACKOFF_BASE", cfg.Queue.BackoffBase)
	cfg.Queue.BackoffMax = getEnvDuration("RETRY_BACKOFF_MAX", cfg.Queue.BackoffMax)
	cfg.Queue.LeaseTimeout = getEnvDuration("JOB_LEASE_TIMEOUT", cfg.Queue.LeaseTimeout)

	cfg.Pricing.AvatarCost = getEnvInt64("PRICE_AVATAR", cfg.Pricing.AvatarCost)
	cfg.Pricing.HumanModelCost = getEnvInt64("PRICE_HUMAN_MODEL", cfg.Pricing.HumanModelCost)
	cfg.Pricing.RoyaltyPerGeneration = getEnvInt64("ROYALTY_PER_GENERATION", cfg.Pricing.RoyaltyPerGeneration)

	cfg.Payout.MinAmount = getEnvInt64("PAYOUT_MIN_AMOUNT", cfg.Payout.MinAmount)
	cfg.Payout.Currency = getEnv("PAYOUT_CURRENCY", cfg.Payout.Currency)
	cfg.Payout.FeePercent = getEnv("PAYOUT_FEE_PERCENT", cfg.Payout.FeePercent)
	cfg.Payout.FeeFixed = getEnvInt64("PAYOUT_FEE_FIXED", cfg.Payout.FeeFixed)

	cfg.Render.APIKey = getEnv("RENDER_API_KEY", cfg.Render.APIKey)
	cfg.Render.BaseURL = getEnv("RENDER_BASE_URL", cfg.Render.BaseURL)
	cfg.Render.Model = getEnv("RENDER_MODEL", cfg.Render.Model)

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER %q is not supported", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Pricing.AvatarCost < 0 || cfg.Pricing.HumanModelCost < 0 || cfg.Pricing.RoyaltyPerGeneration < 0 {
		return nil, fmt.Errorf("pricing values must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
