package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL     string
	WSBaseURL      string
	ServerPort     string
	Environment    string
	ReconnectDelay time.Duration
	TypingTimeout  time.Duration
	SendTimeout    time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
		WSBaseURL:      getEnv("WS_BASE_URL", "ws://localhost:8080"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		ReconnectDelay: getEnvAsSeconds("RECONNECT_DELAY_SECONDS", 3),
		TypingTimeout:  getEnvAsSeconds("TYPING_TIMEOUT_SECONDS", 2),
		SendTimeout:    getEnvAsSeconds("SEND_TIMEOUT_SECONDS", 10),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue int64) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return time.Duration(defaultValue) * time.Second
}
