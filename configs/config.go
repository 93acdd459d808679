package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration
type Config struct {
	Port        string
	Environment string
	APIKey      string

	DatabasePath string

	LogLevel  string
	LogPretty bool

	AdminUsername string
	AdminPassword string

	DefaultTarget    float64
	SimulationMonths int
	ForecastCron     string // 空文字で定期予測を無効化
	ForecastModel    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		APIKey:           getEnv("API_KEY", ""),
		DatabasePath:     getEnv("DATABASE_PATH", "data/perfoptima.db"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvBool("LOG_PRETTY", false),
		AdminUsername:    getEnv("ADMIN_USERNAME", ""),
		AdminPassword:    getEnv("ADMIN_PASSWORD", ""),
		DefaultTarget:    getEnvFloat("DEFAULT_TARGET", 15000),
		SimulationMonths: getEnvInt("SIMULATION_MONTHS", 24),
		ForecastCron:     getEnvAllowEmpty("FORECAST_CRON", "@every 1h"),
		ForecastModel:    getEnv("FORECAST_MODEL", "linear"),
	}
}

// IsProduction 本番環境かどうか
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// AdminEnabled 管理者認証情報が設定されているか
func (c *Config) AdminEnabled() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty 明示的に空文字が設定された場合は空文字を返す
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
