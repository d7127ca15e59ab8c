package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"apptchat/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	LLM        LLMConfig        `yaml:"llm"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Business   BusinessConfig   `yaml:"business"`
	Services   []models.Service `yaml:"services"`
	Agent      AgentConfig      `yaml:"agent"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LLMConfig struct {
	Provider       string `yaml:"provider"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`

	Backup BackupConfig `yaml:"backup"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BusinessConfig describes the bookable window of a day and the slot
// search policy.
type BusinessConfig struct {
	StartHour       int `yaml:"start_hour"`
	EndHour         int `yaml:"end_hour"`
	SlotStepMinutes int `yaml:"slot_step_minutes"`
	SearchDays      int `yaml:"search_days"`
}

type AgentConfig struct {
	MaxIterations     int `yaml:"max_iterations"`
	MaxHistoryTurns   int `yaml:"max_history_turns"`
	SessionTTLSeconds int `yaml:"session_ttl_seconds"`
	RateLimitMessages int `yaml:"rate_limit_messages"`
	RateLimitWindow   int `yaml:"rate_limit_window"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	BookingsSpreadsheetID string `yaml:"bookings_spreadsheet_id"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен, но если есть — подхватываем
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Business.StartHour < 0 || c.Business.EndHour > 24 || c.Business.StartHour >= c.Business.EndHour {
		return fmt.Errorf("invalid business hours %d..%d", c.Business.StartHour, c.Business.EndHour)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	return ValidateServices(c.Services)
}

// ValidateServices rejects empty names, non-positive durations and
// duplicate catalog entries.
func ValidateServices(services []models.Service) error {
	seen := make(map[string]bool)
	for _, svc := range services {
		name := strings.ToLower(strings.TrimSpace(svc.Name))
		if name == "" {
			return errors.New("service with empty name in catalog")
		}
		if svc.DurationMinutes <= 0 {
			return fmt.Errorf("service '%s' has invalid duration %d", svc.Name, svc.DurationMinutes)
		}
		if seen[name] {
			return fmt.Errorf("duplicate service in catalog: %s", svc.Name)
		}
		seen[name] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Business.StartHour == 0 && c.Business.EndHour == 0 {
		c.Business.StartHour = 9
		c.Business.EndHour = 18
	}
	if c.Business.SlotStepMinutes == 0 {
		c.Business.SlotStepMinutes = models.DefaultSlotStepMinutes
	}
	if c.Business.SearchDays == 0 {
		c.Business.SearchDays = models.DefaultSearchDays
	}

	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = models.DefaultMaxIterations
	}
	if c.Agent.MaxHistoryTurns == 0 {
		c.Agent.MaxHistoryTurns = models.DefaultMaxHistoryTurns
	}
	if c.Agent.SessionTTLSeconds == 0 {
		c.Agent.SessionTTLSeconds = models.DefaultSessionTTL
	}
	if c.Agent.RateLimitMessages == 0 {
		c.Agent.RateLimitMessages = models.RateLimitMessages
	}
	if c.Agent.RateLimitWindow == 0 {
		c.Agent.RateLimitWindow = models.RateLimitWindow
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-1.5-pro"
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
}
