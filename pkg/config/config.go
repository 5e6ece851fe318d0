package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config holds the configuration for the anticipation agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Postgres configuration
	PostgresHost               string
	PostgresPort               int
	PostgresUser               string
	PostgresPassword           string
	PostgresDB                 string
	PostgresSSLMode            string
	PostgresMaxConnections     int
	PostgresMaxIdleConnections int
	PostgresConnMaxLifetime    time.Duration
	JournalEnabled             bool

	// Service configuration
	ServiceName string
	HealthPort  int
	APIPort     int
	LogLevel    string
	UserID      string
	Timezone    string

	// Activity and context analysis
	ActivityCapacity     int
	AnalysisWindow       int
	ProductiveActivities []string
	BreakActivities      []string

	// Orchestrator
	TickIntervalSec      int
	TickBudgetMs         int
	StateSaveIntervalSec int

	// Suggestions
	MaxSuggestionsPerTick int
	MaxActiveSuggestions  int
	SuggestionCooldownSec int
	SuggestionLifetimeSec int
	MinSuggestionScore    float64
	TemplatesPath         string
	Latitude              float64
	Longitude             float64

	// Feedback and learning
	FeedbackHistory     int
	LearningRate        float64
	ConfidenceThreshold float64
	PatternWindowHours  float64
	MinPatternFeedback  int
	PatternCooldownMin  int

	// Knowledge lookup
	KnowledgeEnabled  bool
	LLMEndpoint       string
	EmbeddingModel    string
	KnowledgeTopK     int
	KnowledgeMinScore float64
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker: "localhost",
		MQTTPort:   1883,

		RedisHost: "localhost",
		RedisPort: 6379,
		RedisDB:   0,

		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresUser:               "jeeves",
		PostgresDB:                 "jeeves",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 2,
		PostgresConnMaxLifetime:    30 * time.Minute,
		JournalEnabled:             false,

		ServiceName: "anticipation-agent",
		HealthPort:  8080,
		APIPort:     3003,
		LogLevel:    "info",
		UserID:      "default",
		Timezone:    "Local",

		ActivityCapacity:     1000,
		AnalysisWindow:       50,
		ProductiveActivities: []string{"coding", "writing", "designing", "researching", "planning"},
		BreakActivities:      []string{"break", "rest", "idle", "social_media", "entertainment"},

		TickIntervalSec:      30,
		TickBudgetMs:         250,
		StateSaveIntervalSec: 60,

		MaxSuggestionsPerTick: 3,
		MaxActiveSuggestions:  5,
		SuggestionCooldownSec: 300,
		SuggestionLifetimeSec: 1800,
		MinSuggestionScore:    0.1,
		// Helsinki coordinates, same as the other jeeves agents
		Latitude:  60.1695,
		Longitude: 24.9354,

		FeedbackHistory:     1000,
		LearningRate:        0.1,
		ConfidenceThreshold: 0.7,
		PatternWindowHours:  24,
		MinPatternFeedback:  5,
		PatternCooldownMin:  60,

		KnowledgeEnabled:  false,
		LLMEndpoint:       "http://localhost:11434",
		EmbeddingModel:    "nomic-embed-text",
		KnowledgeTopK:     3,
		KnowledgeMinScore: 0.5,
	}
}

// LoadDotEnv reads KEY=value files into the process environment before
// LoadFromEnv runs. Variables already set win and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables with JEEVES_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	envString("JEEVES_MQTT_BROKER", &c.MQTTBroker)
	envInt("JEEVES_MQTT_PORT", &c.MQTTPort)
	envString("JEEVES_MQTT_USER", &c.MQTTUser)
	envString("JEEVES_MQTT_PASSWORD", &c.MQTTPassword)
	envString("JEEVES_MQTT_CLIENT_ID", &c.MQTTClientID)

	// Redis configuration
	envString("JEEVES_REDIS_HOST", &c.RedisHost)
	envInt("JEEVES_REDIS_PORT", &c.RedisPort)
	envString("JEEVES_REDIS_PASSWORD", &c.RedisPassword)
	envInt("JEEVES_REDIS_DB", &c.RedisDB)

	// Postgres configuration
	envString("JEEVES_POSTGRES_HOST", &c.PostgresHost)
	envInt("JEEVES_POSTGRES_PORT", &c.PostgresPort)
	envString("JEEVES_POSTGRES_USER", &c.PostgresUser)
	envString("JEEVES_POSTGRES_PASSWORD", &c.PostgresPassword)
	envString("JEEVES_POSTGRES_DB", &c.PostgresDB)
	envString("JEEVES_POSTGRES_SSLMODE", &c.PostgresSSLMode)
	envInt("JEEVES_POSTGRES_MAX_CONNECTIONS", &c.PostgresMaxConnections)
	envInt("JEEVES_POSTGRES_MAX_IDLE_CONNECTIONS", &c.PostgresMaxIdleConnections)
	if v := os.Getenv("JEEVES_POSTGRES_CONN_MAX_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PostgresConnMaxLifetime = d
		}
	}
	envBool("JEEVES_JOURNAL_ENABLED", &c.JournalEnabled)

	// Service configuration
	envString("JEEVES_SERVICE_NAME", &c.ServiceName)
	envInt("JEEVES_HEALTH_PORT", &c.HealthPort)
	envInt("JEEVES_API_PORT", &c.APIPort)
	envString("JEEVES_LOG_LEVEL", &c.LogLevel)
	envString("JEEVES_USER_ID", &c.UserID)
	envString("JEEVES_TIMEZONE", &c.Timezone)

	// Activity and context analysis
	envInt("JEEVES_ACTIVITY_CAPACITY", &c.ActivityCapacity)
	envInt("JEEVES_ANALYSIS_WINDOW", &c.AnalysisWindow)
	if v := os.Getenv("JEEVES_PRODUCTIVE_ACTIVITIES"); v != "" {
		c.ProductiveActivities = splitList(v)
	}
	if v := os.Getenv("JEEVES_BREAK_ACTIVITIES"); v != "" {
		c.BreakActivities = splitList(v)
	}

	// Orchestrator
	envInt("JEEVES_TICK_INTERVAL_SEC", &c.TickIntervalSec)
	envInt("JEEVES_TICK_BUDGET_MS", &c.TickBudgetMs)
	envInt("JEEVES_STATE_SAVE_INTERVAL_SEC", &c.StateSaveIntervalSec)

	// Suggestions
	envInt("JEEVES_MAX_SUGGESTIONS_PER_TICK", &c.MaxSuggestionsPerTick)
	envInt("JEEVES_MAX_ACTIVE_SUGGESTIONS", &c.MaxActiveSuggestions)
	envInt("JEEVES_SUGGESTION_COOLDOWN_SEC", &c.SuggestionCooldownSec)
	envInt("JEEVES_SUGGESTION_LIFETIME_SEC", &c.SuggestionLifetimeSec)
	envFloat("JEEVES_MIN_SUGGESTION_SCORE", &c.MinSuggestionScore)
	envString("JEEVES_TEMPLATES_PATH", &c.TemplatesPath)
	envFloat("JEEVES_LATITUDE", &c.Latitude)
	envFloat("JEEVES_LONGITUDE", &c.Longitude)

	// Feedback and learning
	envInt("JEEVES_FEEDBACK_HISTORY", &c.FeedbackHistory)
	envFloat("JEEVES_LEARNING_RATE", &c.LearningRate)
	envFloat("JEEVES_CONFIDENCE_THRESHOLD", &c.ConfidenceThreshold)
	envFloat("JEEVES_PATTERN_WINDOW_HOURS", &c.PatternWindowHours)
	envInt("JEEVES_MIN_PATTERN_FEEDBACK", &c.MinPatternFeedback)
	envInt("JEEVES_PATTERN_COOLDOWN_MIN", &c.PatternCooldownMin)

	// Knowledge lookup
	envBool("JEEVES_KNOWLEDGE_ENABLED", &c.KnowledgeEnabled)
	envString("JEEVES_LLM_ENDPOINT", &c.LLMEndpoint)
	envString("JEEVES_EMBEDDING_MODEL", &c.EmbeddingModel)
	envInt("JEEVES_KNOWLEDGE_TOP_K", &c.KnowledgeTopK)
	envFloat("JEEVES_KNOWLEDGE_MIN_SCORE", &c.KnowledgeMinScore)
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() error {
	return c.LoadFromArgs(os.Args[1:])
}

// LoadFromArgs parses the given arguments as flags and overrides config values
func (c *Config) LoadFromArgs(args []string) error {
	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)

	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	fs.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Postgres flags
	fs.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	fs.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	fs.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres user")
	fs.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	fs.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database name")
	fs.StringVar(&c.PostgresSSLMode, "postgres-sslmode", c.PostgresSSLMode, "Postgres SSL mode")
	fs.BoolVar(&c.JournalEnabled, "journal", c.JournalEnabled, "Write feedback and adaptation journal to Postgres")

	// Service flags
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.IntVar(&c.APIPort, "api-port", c.APIPort, "HTTP API port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.UserID, "user-id", c.UserID, "User whose behavior profile this agent maintains")
	fs.StringVar(&c.Timezone, "timezone", c.Timezone, "IANA timezone used for local-hour rules")

	// Analysis flags
	fs.IntVar(&c.ActivityCapacity, "activity-capacity", c.ActivityCapacity, "Maximum activity events kept in memory")
	fs.IntVar(&c.AnalysisWindow, "analysis-window", c.AnalysisWindow, "Recent activity events analyzed per tick")
	fs.StringSliceVar(&c.ProductiveActivities, "productive-activities", c.ProductiveActivities, "Activity types counted as productive")
	fs.StringSliceVar(&c.BreakActivities, "break-activities", c.BreakActivities, "Activity types counted as breaks")

	// Orchestrator flags
	fs.IntVar(&c.TickIntervalSec, "tick-interval", c.TickIntervalSec, "Tick interval in seconds")
	fs.IntVar(&c.TickBudgetMs, "tick-budget-ms", c.TickBudgetMs, "Tick duration budget before an overrun is logged (ms)")
	fs.IntVar(&c.StateSaveIntervalSec, "state-save-interval", c.StateSaveIntervalSec, "State checkpoint interval in seconds")

	// Suggestion flags
	fs.IntVar(&c.MaxSuggestionsPerTick, "max-suggestions-per-tick", c.MaxSuggestionsPerTick, "Candidates generated per tick")
	fs.IntVar(&c.MaxActiveSuggestions, "max-active-suggestions", c.MaxActiveSuggestions, "Maximum live suggestions")
	fs.IntVar(&c.SuggestionCooldownSec, "suggestion-cooldown", c.SuggestionCooldownSec, "Per-category cooldown in seconds")
	fs.IntVar(&c.SuggestionLifetimeSec, "suggestion-lifetime", c.SuggestionLifetimeSec, "Default suggestion lifetime in seconds")
	fs.Float64Var(&c.MinSuggestionScore, "min-suggestion-score", c.MinSuggestionScore, "Candidates scoring below this are dropped")
	fs.StringVar(&c.TemplatesPath, "templates-path", c.TemplatesPath, "YAML file replacing the built-in suggestion templates")
	fs.Float64Var(&c.Latitude, "latitude", c.Latitude, "Geographic latitude for daylight rules")
	fs.Float64Var(&c.Longitude, "longitude", c.Longitude, "Geographic longitude for daylight rules")

	// Learning flags
	fs.IntVar(&c.FeedbackHistory, "feedback-history", c.FeedbackHistory, "Feedback items retained in memory")
	fs.Float64Var(&c.LearningRate, "learning-rate", c.LearningRate, "Profile learning rate")
	fs.Float64Var(&c.ConfidenceThreshold, "confidence-threshold", c.ConfidenceThreshold, "Minimum confidence for applying an adjustment")
	fs.Float64Var(&c.PatternWindowHours, "pattern-window-hours", c.PatternWindowHours, "Rolling window for feedback pattern analysis (hours)")
	fs.IntVar(&c.MinPatternFeedback, "min-pattern-feedback", c.MinPatternFeedback, "Feedback items required before pattern rules run")
	fs.IntVar(&c.PatternCooldownMin, "pattern-cooldown-min", c.PatternCooldownMin, "Minutes before the same pattern adjustment may repeat")

	// Knowledge flags
	fs.BoolVar(&c.KnowledgeEnabled, "knowledge", c.KnowledgeEnabled, "Enable the knowledge discovery template")
	fs.StringVar(&c.LLMEndpoint, "llm-endpoint", c.LLMEndpoint, "Ollama base URL for embeddings")
	fs.StringVar(&c.EmbeddingModel, "embedding-model", c.EmbeddingModel, "Embedding model name")
	fs.IntVar(&c.KnowledgeTopK, "knowledge-top-k", c.KnowledgeTopK, "Related items fetched per lookup")

	return fs.Parse(args)
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("User ID is required")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	positive := map[string]int{
		"activity capacity":        c.ActivityCapacity,
		"analysis window":          c.AnalysisWindow,
		"tick interval":            c.TickIntervalSec,
		"tick budget":              c.TickBudgetMs,
		"max suggestions per tick": c.MaxSuggestionsPerTick,
		"max active suggestions":   c.MaxActiveSuggestions,
		"suggestion lifetime":      c.SuggestionLifetimeSec,
		"feedback history":         c.FeedbackHistory,
	}
	for name, v := range positive {
		if v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, v)
		}
	}
	if c.SuggestionCooldownSec < 0 {
		return fmt.Errorf("suggestion cooldown must not be negative")
	}

	unit := map[string]float64{
		"learning rate":        c.LearningRate,
		"confidence threshold": c.ConfidenceThreshold,
		"min suggestion score": c.MinSuggestionScore,
		"knowledge min score":  c.KnowledgeMinScore,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %g", name, v)
		}
	}
	if c.PatternWindowHours <= 0 {
		return fmt.Errorf("pattern window must be positive")
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns the lib/pq connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// TickInterval returns the orchestrator tick interval
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}

// TickBudget returns the tick duration budget
func (c *Config) TickBudget() time.Duration {
	return time.Duration(c.TickBudgetMs) * time.Millisecond
}

// SuggestionCooldown returns the per-category suggestion cooldown
func (c *Config) SuggestionCooldown() time.Duration {
	return time.Duration(c.SuggestionCooldownSec) * time.Second
}

// SuggestionLifetime returns the default suggestion lifetime
func (c *Config) SuggestionLifetime() time.Duration {
	return time.Duration(c.SuggestionLifetimeSec) * time.Second
}

// PatternWindow returns the rolling window used by pattern rules
func (c *Config) PatternWindow() time.Duration {
	return time.Duration(c.PatternWindowHours * float64(time.Hour))
}

// PatternCooldown returns the minimum spacing between repeats of a pattern adjustment
func (c *Config) PatternCooldown() time.Duration {
	return time.Duration(c.PatternCooldownMin) * time.Minute
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
