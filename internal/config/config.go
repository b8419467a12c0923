package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"neurochat/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	DatabaseURL string // mongodb://..., mysql://..., sqlite path or memory://
	RedisURL    string // optional, empty disables sync events
	JWTSecret   string
	ModelsFile  string

	// Model provider (OpenAI-compatible endpoint)
	LLMBaseURL string
	LLMAPIKey  string
	LLMTimeout time.Duration
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		DatabaseURL: getEnv("DATABASE_URL", "memory://"),
		RedisURL:    getEnv("REDIS_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		ModelsFile:  getEnv("MODELS_FILE", "models.json"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMTimeout: time.Duration(getIntEnv("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
	}
}

// LoadModels loads the model catalog from a JSON file.
func LoadModels(filePath string) (*models.ModelCatalog, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}

	var catalog models.ModelCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse models JSON: %w", err)
	}

	return &catalog, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
