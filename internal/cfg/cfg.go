package cfg

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	BaseURL              string
	WsURL                string
	Email                string
	Password             string
	Channels             []string
	Heartbeat            time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	AutoConnect          bool
	DataPath             string
	MetricsPort          int
	RESTTimeout          time.Duration
}

type ConfigFile struct {
	API struct {
		BaseURL string `yaml:"baseURL"`
		WsURL   string `yaml:"wsURL"`
	} `yaml:"api"`

	Auth struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"auth"`

	Realtime struct {
		Channels             []string `yaml:"channels"`
		HeartbeatInterval    string   `yaml:"heartbeatInterval"`
		ReconnectDelay       string   `yaml:"reconnectDelay"`
		MaxReconnectAttempts int      `yaml:"maxReconnectAttempts"`
		AutoConnect          *bool    `yaml:"autoConnect"`
	} `yaml:"realtime"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		MetricsPort int    `yaml:"metricsPort"`
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

	heartbeat, err := time.ParseDuration(config.Realtime.HeartbeatInterval)
	if err != nil {
		heartbeat = 30 * time.Second
	}

	reconnectDelay, err := time.ParseDuration(config.Realtime.ReconnectDelay)
	if err != nil {
		reconnectDelay = 3 * time.Second
	}

	restTimeout, err := time.ParseDuration(config.System.RESTTimeout)
	if err != nil {
		restTimeout = 5 * time.Second
	}

	autoConnect := true
	if config.Realtime.AutoConnect != nil {
		autoConnect = *config.Realtime.AutoConnect
	}

	settings := Settings{
		BaseURL:              getEnvOrDefault("BASE_URL", config.API.BaseURL),
		WsURL:                getEnvOrDefault("WS_URL", config.API.WsURL),
		Email:                getEnvOrDefault("DESK_EMAIL", config.Auth.Email),
		Password:             getEnvOrDefault("DESK_PASSWORD", config.Auth.Password),
		Channels:             getChannelsFromEnvOrConfig(config.Realtime.Channels),
		Heartbeat:            heartbeat,
		ReconnectDelay:       reconnectDelay,
		MaxReconnectAttempts: getIntFromEnvOrConfig("MAX_RECONNECT_ATTEMPTS", config.Realtime.MaxReconnectAttempts),
		AutoConnect:          getBoolFromEnvOrConfig("AUTO_CONNECT", autoConnect),
		DataPath:             getEnvOrDefault("DATA_PATH", config.System.DataPath),
		MetricsPort:          getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		RESTTimeout:          restTimeout,
	}
	if settings.MaxReconnectAttempts == 0 {
		settings.MaxReconnectAttempts = 5
	}
	if settings.MetricsPort == 0 {
		settings.MetricsPort = 8080
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		BaseURL:              getEnvOrDefault("BASE_URL", "https://api.tradedesk.local"),
		WsURL:                getEnvOrDefault("WS_URL", "wss://api.tradedesk.local/ws"),
		Email:                os.Getenv("DESK_EMAIL"),    // optional
		Password:             os.Getenv("DESK_PASSWORD"), // optional
		Channels:             splitOrDefault(os.Getenv("CHANNELS"), nil),
		Heartbeat:            getDurationOrDefault("HEARTBEAT_INTERVAL", 30*time.Second),
		ReconnectDelay:       getDurationOrDefault("RECONNECT_DELAY", 3*time.Second),
		MaxReconnectAttempts: getIntOrDefault("MAX_RECONNECT_ATTEMPTS", 5),
		AutoConnect:          getBoolOrDefault("AUTO_CONNECT", true),
		DataPath:             os.Getenv("DATA_PATH"), // optional
		MetricsPort:          getIntOrDefault("METRICS_PORT", 8080),
		RESTTimeout:          getDurationOrDefault("REST_TIMEOUT", 5*time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
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

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getChannelsFromEnvOrConfig(configChannels []string) []string {
	if env := os.Getenv("CHANNELS"); env != "" {
		return splitOrDefault(env, nil)
	}
	return configChannels
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs validation of configuration values.
func validateSettings(settings *Settings) error {
	if settings.WsURL == "" {
		return fmt.Errorf("WebSocket URL cannot be empty")
	}
	u, err := url.Parse(settings.WsURL)
	if err != nil {
		return fmt.Errorf("invalid WebSocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("WebSocket URL must use ws or wss scheme, got %q", u.Scheme)
	}

	if settings.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	// Credentials are optional but must come as a pair.
	if (settings.Email == "") != (settings.Password == "") {
		return fmt.Errorf("email and password must be set together")
	}

	if settings.Heartbeat < time.Second || settings.Heartbeat > 5*time.Minute {
		return fmt.Errorf("heartbeat interval must be between 1s and 5m, got %v", settings.Heartbeat)
	}
	if settings.ReconnectDelay < 100*time.Millisecond || settings.ReconnectDelay > time.Minute {
		return fmt.Errorf("reconnect delay must be between 100ms and 1m, got %v", settings.ReconnectDelay)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	if settings.MaxReconnectAttempts < 1 || settings.MaxReconnectAttempts > 100 {
		return fmt.Errorf("max reconnect attempts must be between 1 and 100, got %d", settings.MaxReconnectAttempts)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}

	for _, ch := range settings.Channels {
		if strings.ContainsAny(ch, " \t") {
			return fmt.Errorf("channel %q must not contain whitespace", ch)
		}
	}

	return nil
}
