package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"

	ProviderGemini = "gemini"
	ProviderGroq   = "groq"

	DefaultGroqAPIURL = "https://api.groq.com/openai/v1/chat/completions"

	defaultPlanDays          = 7
	defaultMetricsDBPath     = "data/metrics.db"
	defaultRunTimeout        = 10 * time.Minute
	defaultGenerationTimeout = 90 * time.Second
)

// Config holds the configuration for the lifecycle job.
type Config struct {
	StoreBackend           string
	DatabaseURL            string
	SupabaseURL            string
	SupabaseServiceRoleKey string

	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	GroqAPIKey   string
	GroqModel    string
	GroqAPIURL   string

	Location          *time.Location
	PlanDays          int
	FailOnRecordError bool
	RunTimeout        time.Duration
	GenerationTimeout time.Duration

	MetricsDBPath string
	LogLevel      string

	// Telegram notifier (optional)
	TelegramBotToken    string
	TelegramAdminChatID int64
	NotifyOnlyOnError   bool
}

// LoadDotEnv loads a .env file into the environment when one exists.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// MetricsDBPathFromEnv returns METRICS_DB_PATH or its default. The metrics
// commands need nothing else from the environment.
func MetricsDBPathFromEnv() string {
	return envOr("METRICS_DB_PATH", defaultMetricsDBPath)
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:            strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		SupabaseServiceRoleKey: strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY")),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            envOr("GEMINI_MODEL", "gemini-1.5-flash"),
		GroqAPIKey:             os.Getenv("GROQ_API_KEY"),
		GroqModel:              envOr("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GroqAPIURL:             envOr("GROQ_API_URL", DefaultGroqAPIURL),
		MetricsDBPath:          MetricsDBPathFromEnv(),
		LogLevel:               envOr("LOG_LEVEL", "info"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	cfg.StoreBackend = strings.ToLower(os.Getenv("STORE_BACKEND"))
	if cfg.StoreBackend == "" {
		if cfg.DatabaseURL != "" {
			cfg.StoreBackend = BackendPostgres
		} else {
			cfg.StoreBackend = BackendSupabase
		}
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
	case BackendSupabase:
		if cfg.SupabaseURL == "" {
			return nil, fmt.Errorf("SUPABASE_URL environment variable not set")
		}
		if !strings.HasPrefix(cfg.SupabaseURL, "http://") && !strings.HasPrefix(cfg.SupabaseURL, "https://") {
			return nil, fmt.Errorf("SUPABASE_URL must start with http:// or https://, got %q", cfg.SupabaseURL)
		}
		if cfg.SupabaseServiceRoleKey == "" {
			return nil, fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY environment variable not set")
		}
		if err := checkServiceRoleKey(cfg.SupabaseServiceRoleKey); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want %s or %s)", cfg.StoreBackend, BackendPostgres, BackendSupabase)
	}

	cfg.LLMProvider = strings.ToLower(envOr("LLM_PROVIDER", ProviderGemini))
	switch cfg.LLMProvider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (want %s or %s)", cfg.LLMProvider, ProviderGemini, ProviderGroq)
	}

	tzName := envOr("TZ_NAME", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ_NAME %q: %w", tzName, err)
	}
	cfg.Location = loc

	if cfg.PlanDays, err = intEnv("PLAN_DAYS", defaultPlanDays); err != nil {
		return nil, err
	}
	if cfg.PlanDays < 1 {
		return nil, fmt.Errorf("PLAN_DAYS must be positive, got %d", cfg.PlanDays)
	}
	if cfg.FailOnRecordError, err = boolEnv("FAIL_ON_RECORD_ERRORS", false); err != nil {
		return nil, err
	}
	if cfg.NotifyOnlyOnError, err = boolEnv("NOTIFY_ONLY_ON_ERROR", false); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = durationEnv("RUN_TIMEOUT", defaultRunTimeout); err != nil {
		return nil, err
	}
	if cfg.GenerationTimeout, err = durationEnv("GENERATION_TIMEOUT", defaultGenerationTimeout); err != nil {
		return nil, err
	}

	if raw := os.Getenv("TELEGRAM_ADMIN_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramAdminChatID = id
	}

	return cfg, nil
}

// NotifierEnabled reports whether both Telegram settings are present.
func (c *Config) NotifierEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramAdminChatID != 0
}

// checkServiceRoleKey makes sure the Supabase key is the service-role JWT and not
// the anon key, which would silently hit row level security.
// The signature is not verified; Supabase does that on every request.
func checkServiceRoleKey(key string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is not a valid JWT: %w", err)
	}
	role, _ := claims["role"].(string)
	if role != "service_role" {
		return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY has role %q, expected service_role", role)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s %q: expected true or false", key, raw)
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
