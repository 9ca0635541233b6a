package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Session  SessionConfig
	Search   SearchConfig
	Ai       AIConfig
	Keys     APIKeys
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type SessionConfig struct {
	Backend string // "redis" or "memory"
	TTL     time.Duration
}

type SearchConfig struct {
	ElasticsearchURL string
	ProductIndex     string
	ResultLimit      int
}

type AIConfig struct {
	LLMProvider   string // "ollama" or "openai"
	LLMModel      string // e.g. "llama3", "gpt-4o-mini"
	OllamaBaseURL string
	OpenAIBaseURL string
}

type APIKeys struct {
	OpenAI     string
	JWTSecret  string
	TurnsTopic string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Session: SessionConfig{
			Backend: getEnv("SESSION_BACKEND", "memory"),
			TTL:     getEnvAsDuration("SESSION_TTL", 1*time.Hour),
		},
		Search: SearchConfig{
			ElasticsearchURL: getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			ProductIndex:     getEnv("PRODUCT_INDEX", "products"),
			ResultLimit:      getEnvAsInt("SEARCH_RESULT_LIMIT", 10),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		},
		Keys: APIKeys{
			OpenAI:     getEnv("OPENAI_API_KEY", ""),
			JWTSecret:  getEnv("JWT_SECRET", ""),
			TurnsTopic: getEnv("CHAT_TURNS_TOPIC_NAME", "CHAT_TURN_COMPLETED"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
