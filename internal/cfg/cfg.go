package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	ServerPort      int
	MetricsPort     int
	ShutdownTimeout time.Duration

	ModelDir       string
	ExplainTimeout time.Duration

	DataPath       string
	RecorderBuffer int

	SlackWebhookURL string
	AlertWebhookURL string
	RESTTimeout     time.Duration
}

type ConfigFile struct {
	Server struct {
		Port            int    `yaml:"port"`
		MetricsPort     int    `yaml:"metricsPort"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Model struct {
		Dir            string `yaml:"dir"`
		ExplainTimeout string `yaml:"explainTimeout"`
	} `yaml:"model"`

	Storage struct {
		DataPath       string `yaml:"dataPath"`
		RecorderBuffer int    `yaml:"recorderBuffer"`
	} `yaml:"storage"`

	Alerts struct {
		SlackWebhookURL string `yaml:"slackWebhookURL"`
		WebhookURL      string `yaml:"webhookURL"`
	} `yaml:"alerts"`

	System struct {
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(config.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}

	explainTimeout, err := time.ParseDuration(config.Model.ExplainTimeout)
	if err != nil {
		explainTimeout = 2 * time.Second
	}

	restTimeout, err := time.ParseDuration(config.System.RESTTimeout)
	if err != nil {
		restTimeout = 5 * time.Second
	}

	settings := Settings{
		ServerPort:      getIntFromEnvOrConfig("SERVER_PORT", config.Server.Port),
		MetricsPort:     getIntFromEnvOrConfig("METRICS_PORT", config.Server.MetricsPort),
		ShutdownTimeout: getDurationFromEnvOrDefault("SHUTDOWN_TIMEOUT", shutdownTimeout),
		ModelDir:        getEnvOrDefault("MODEL_DIR", config.Model.Dir),
		ExplainTimeout:  getDurationFromEnvOrDefault("EXPLAIN_TIMEOUT", explainTimeout),
		DataPath:        getEnvOrDefault("DATA_PATH", config.Storage.DataPath),
		RecorderBuffer:  getIntFromEnvOrConfig("RECORDER_BUFFER", config.Storage.RecorderBuffer),
		SlackWebhookURL: getEnvOrDefault("SLACK_WEBHOOK_URL", config.Alerts.SlackWebhookURL),
		AlertWebhookURL: getEnvOrDefault("ALERT_WEBHOOK_URL", config.Alerts.WebhookURL),
		RESTTimeout:     getDurationFromEnvOrDefault("REST_TIMEOUT", restTimeout),
	}
	applyDefaults(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ServerPort:      getIntOrDefault("SERVER_PORT", 5000),
		MetricsPort:     getIntOrDefault("METRICS_PORT", 8080),
		ShutdownTimeout: getDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
		ModelDir:        getEnvOrDefault("MODEL_DIR", "artifacts"),
		ExplainTimeout:  getDurationOrDefault("EXPLAIN_TIMEOUT", 2*time.Second),
		DataPath:        os.Getenv("DATA_PATH"), // optional
		RecorderBuffer:  getIntOrDefault("RECORDER_BUFFER", 256),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		RESTTimeout:     getDurationOrDefault("REST_TIMEOUT", 5*time.Second),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func applyDefaults(s *Settings) {
	if s.ServerPort == 0 {
		s.ServerPort = 5000
	}
	if s.MetricsPort == 0 {
		s.MetricsPort = 8080
	}
	if s.ModelDir == "" {
		s.ModelDir = "artifacts"
	}
	if s.RecorderBuffer == 0 {
		s.RecorderBuffer = 256
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getDurationFromEnvOrDefault(key string, configValue time.Duration) time.Duration {
	return getDurationOrDefault(key, configValue)
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return getIntOrDefault(key, 0)
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ModelDir == "" {
		return fmt.Errorf("model directory cannot be empty")
	}

	// Validate ports
	if settings.ServerPort < 1 || settings.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", settings.ServerPort)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.ServerPort == settings.MetricsPort {
		return fmt.Errorf("server port and metrics port must differ, both are %d", settings.ServerPort)
	}

	// Validate time durations
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}
	if settings.ExplainTimeout < 100*time.Millisecond || settings.ExplainTimeout > 30*time.Second {
		return fmt.Errorf("explain timeout must be between 100ms and 30s, got %v", settings.ExplainTimeout)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	// Validate integer values
	if settings.RecorderBuffer < 1 || settings.RecorderBuffer > 100000 {
		return fmt.Errorf("recorder buffer must be between 1 and 100000, got %d", settings.RecorderBuffer)
	}

	return nil
}
