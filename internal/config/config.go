package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Mode        string
	Env         string
	Port        string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string
	SeedDevData bool

	// Recurring cycle
	CycleSchedule     string
	ScheduleTimezone  string
	StepTimeout       time.Duration
	VideoTimeout      time.Duration
	VideoPollInterval time.Duration
	RuleLockTTL       time.Duration
	CycleTimeout      time.Duration

	// Provider credentials
	OpenAIAPIKey    string
	XAIAPIKey       string
	DeepSeekAPIKey  string
	AIProvidersFile string
	KieAIAPIKey     string
	KieAIBaseURL    string
	StubMode        bool

	// Post scheduling
	PostSlots []string
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Mode:        getEnvWithDefault("MODE", "embedded"),
		Env:         getEnvWithDefault("ENV", "development"),
		Port:        getEnvWithDefault("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvWithDefault("LOG_FORMAT", "text"),
		SeedDevData: getBoolEnv("SEED_DEV_DATA", false),

		CycleSchedule:     getEnvWithDefault("CYCLE_SCHEDULE", "*/30 * * * *"),
		ScheduleTimezone:  getEnvWithDefault("SCHEDULE_TIMEZONE", "UTC"),
		StepTimeout:       getDurationEnv("STEP_TIMEOUT", 2*time.Minute),
		VideoTimeout:      getDurationEnv("VIDEO_TIMEOUT", 15*time.Minute),
		VideoPollInterval: getDurationEnv("VIDEO_POLL_INTERVAL", 10*time.Second),
		RuleLockTTL:       getDurationEnv("RULE_LOCK_TTL", 45*time.Minute),
		CycleTimeout:      getDurationEnv("CYCLE_TIMEOUT", 12*time.Hour),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		XAIAPIKey:       os.Getenv("XAI_API_KEY"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		AIProvidersFile: os.Getenv("AI_PROVIDERS_FILE"),
		KieAIAPIKey:     os.Getenv("KIEAI_API_KEY"),
		KieAIBaseURL:    getEnvWithDefault("KIEAI_BASE_URL", "https://api.kie.ai"),
		StubMode:        getBoolEnv("STUB_MODE", false),

		PostSlots: splitList(getEnvWithDefault("POST_SLOTS", "09:00,13:00,18:00")),
	}

	if cfg.StubMode && cfg.Env == "production" {
		log.Println("WARNING: STUB_MODE is enabled in production. No real content will be generated.")
	}

	return cfg
}

// Location returns the time zone used to evaluate rule schedules.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		log.Printf("WARNING: invalid SCHEDULE_TIMEZONE %q, using UTC: %v", c.ScheduleTimezone, err)
		return time.UTC
	}
	return loc
}

// AICredentials maps provider names to their API keys.
func (c *Config) AICredentials() map[string]string {
	return map[string]string{
		"openai":   c.OpenAIAPIKey,
		"grok":     c.XAIAPIKey,
		"deepseek": c.DeepSeekAPIKey,
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("WARNING: invalid boolean for %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("WARNING: invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
