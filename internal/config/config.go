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

const (
	DefaultPersona = "You are a friendly, intelligent and natural AI assistant. " +
		"Reply in a conversational, human way. Be concise but complete, adapt your tone to the user's " +
		"(formal or informal), ask clarifying questions when needed, give concrete examples when useful " +
		"and propose solutions proactively. Avoid robotic phrasing and get to the point."
	DefaultGreeting = "Hello! I'm your AI assistant. How can I help you today?"
	DefaultFallback = "Sorry, I'm having technical difficulties right now."
	DefaultLoading  = "The model is still loading, please try again in a few moments."
)

type Config struct {
	HTTPAddr string
	GinMode  string

	LogLevel  string
	LogFormat string // json or console

	DBDriver string // sqlite, mysql or postgres
	DBDSN    string

	// Redis cache; disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// rabbitMQ events; disabled when RabbitURL is empty
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	// Conversation copy
	Greeting string

	// Context window
	ContextThreshold int
	ContextHead      int
	ContextTail      int

	// AI provider
	AIProvider    string
	AIModel       string
	AITimeout     time.Duration
	AITemperature float64
	AIMaxTokens   int
	AIPersona     string
	AIFallback    string
	AILoading     string
	AISuggestions string // "" or "markdown"
	AIWarmup      bool
	AIKeepWarm    string // cron spec, empty disables re-warming

	OllamaBaseURL string
	OllamaModel   string

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	LangChainBaseURL string
	LangChainAPIKey  string
	LangChainModel   string
}

// Load reads the optional .env file (ENV_FILE) and then the process environment.
func Load() Config {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: failed to load %s: %v\n", envFile, err)
	}

	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),
		GinMode:  getEnv("GIN_MODE", "release"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		// DSN demo (sqlite):
		// file:chat.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)
		DBDSN: getEnv("DB_DSN", "file:chat.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: getEnv("RABBIT_QUEUE", "conversation_events"),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),

		Greeting: getEnv("CHAT_GREETING", DefaultGreeting),

		ContextThreshold: getEnvInt("CHAT_CONTEXT_THRESHOLD", 8),
		ContextHead:      getEnvInt("CHAT_CONTEXT_HEAD", 2),
		ContextTail:      getEnvInt("CHAT_CONTEXT_TAIL", 6),

		AIProvider:    strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		AIModel:       os.Getenv("AI_MODEL"),
		AITimeout:     getEnvDuration("AI_TIMEOUT", 30*time.Second),
		AITemperature: getEnvFloat("AI_TEMPERATURE", 0.7),
		AIMaxTokens:   getEnvInt("AI_MAX_TOKENS", 500),
		AIPersona:     getEnv("AI_PERSONA", DefaultPersona),
		AIFallback:    getEnv("AI_FALLBACK_TEXT", DefaultFallback),
		AILoading:     getEnv("AI_LOADING_TEXT", DefaultLoading),
		AISuggestions: strings.ToLower(os.Getenv("AI_SUGGESTIONS")),
		AIWarmup:      getEnvBool("AI_WARMUP", true),
		AIKeepWarm:    os.Getenv("AI_KEEP_WARM"),

		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "qwen2.5:1.5b"),

		// Ollama's OpenAI-compatible endpoint; point at Groq, vLLM or OpenAI by URL
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "http://localhost:11434/v1/"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", "ollama"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "qwen2.5:1.5b"),

		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		LangChainBaseURL: getEnv("LANGCHAIN_BASE_URL", "http://localhost:8080/v1/"),
		LangChainAPIKey:  os.Getenv("LANGCHAIN_API_KEY"),
		LangChainModel:   getEnv("LANGCHAIN_MODEL", "llama3.1:8b"),
	}
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER=%q", c.DBDriver)
	}
	switch c.AIProvider {
	case "ollama", "openai", "openrouter", "langchain":
	default:
		return fmt.Errorf("unsupported AI_PROVIDER=%q", c.AIProvider)
	}
	switch c.AISuggestions {
	case "", "markdown":
	default:
		return fmt.Errorf("unsupported AI_SUGGESTIONS=%q", c.AISuggestions)
	}
	if c.ContextThreshold < 0 || c.ContextHead < 0 || c.ContextTail < 0 {
		return errors.New("context window values must be non-negative")
	}
	if c.AITimeout <= 0 {
		return errors.New("AI_TIMEOUT must be positive")
	}
	if c.AIMaxTokens <= 0 {
		return errors.New("AI_MAX_TOKENS must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare integers are seconds
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
