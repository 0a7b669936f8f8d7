package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "BASE_URL", "WS_URL", "DESK_EMAIL", "DESK_PASSWORD",
		"CHANNELS", "HEARTBEAT_INTERVAL", "RECONNECT_DELAY",
		"MAX_RECONNECT_ATTEMPTS", "AUTO_CONNECT", "DATA_PATH",
		"METRICS_PORT", "REST_TIMEOUT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.tradedesk.local", s.BaseURL)
	assert.Equal(t, "wss://api.tradedesk.local/ws", s.WsURL)
	assert.Empty(t, s.Email)
	assert.Empty(t, s.Channels)
	assert.Equal(t, 30*time.Second, s.Heartbeat)
	assert.Equal(t, 3*time.Second, s.ReconnectDelay)
	assert.Equal(t, 5, s.MaxReconnectAttempts)
	assert.True(t, s.AutoConnect)
	assert.Equal(t, 8080, s.MetricsPort)
	assert.Equal(t, 5*time.Second, s.RESTTimeout)
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BASE_URL", "https://desk.example.com")
	t.Setenv("WS_URL", "wss://desk.example.com/ws")
	t.Setenv("DESK_EMAIL", "ops@example.com")
	t.Setenv("DESK_PASSWORD", "hunter2")
	t.Setenv("CHANNELS", "strategy:1, account:main ,")
	t.Setenv("HEARTBEAT_INTERVAL", "10s")
	t.Setenv("RECONNECT_DELAY", "500ms")
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "8")
	t.Setenv("AUTO_CONNECT", "false")
	t.Setenv("METRICS_PORT", "9102")
	t.Setenv("REST_TIMEOUT", "15s")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://desk.example.com", s.BaseURL)
	assert.Equal(t, "wss://desk.example.com/ws", s.WsURL)
	assert.Equal(t, "ops@example.com", s.Email)
	assert.Equal(t, []string{"strategy:1", "account:main"}, s.Channels)
	assert.Equal(t, 10*time.Second, s.Heartbeat)
	assert.Equal(t, 500*time.Millisecond, s.ReconnectDelay)
	assert.Equal(t, 8, s.MaxReconnectAttempts)
	assert.False(t, s.AutoConnect)
	assert.Equal(t, 9102, s.MetricsPort)
	assert.Equal(t, 15*time.Second, s.RESTTimeout)
}

func TestLoad_FromYAML(t *testing.T) {
	clearEnv(t)

	content := `
api:
  baseURL: "https://desk.example.com"
  wsURL: "wss://desk.example.com/ws"
auth:
  email: "ops@example.com"
  password: "hunter2"
realtime:
  channels:
    - "strategy:1"
    - "account:main"
  heartbeatInterval: "20s"
  reconnectDelay: "2s"
  maxReconnectAttempts: 10
  autoConnect: false
system:
  dataPath: "/var/lib/tradedesk"
  metricsPort: 9100
  restTimeout: "8s"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://desk.example.com/ws", s.WsURL)
	assert.Equal(t, "ops@example.com", s.Email)
	assert.Equal(t, []string{"strategy:1", "account:main"}, s.Channels)
	assert.Equal(t, 20*time.Second, s.Heartbeat)
	assert.Equal(t, 2*time.Second, s.ReconnectDelay)
	assert.Equal(t, 10, s.MaxReconnectAttempts)
	assert.False(t, s.AutoConnect)
	assert.Equal(t, "/var/lib/tradedesk", s.DataPath)
	assert.Equal(t, 9100, s.MetricsPort)
	assert.Equal(t, 8*time.Second, s.RESTTimeout)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)

	content := `
api:
  baseURL: "https://file.example.com"
  wsURL: "wss://file.example.com/ws"
realtime:
  channels: ["strategy:file"]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WS_URL", "wss://env.example.com/ws")
	t.Setenv("CHANNELS", "strategy:env")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://env.example.com/ws", s.WsURL)
	assert.Equal(t, "https://file.example.com", s.BaseURL)
	assert.Equal(t, []string{"strategy:env"}, s.Channels)
}

func TestLoad_YAMLMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidateSettings(t *testing.T) {
	valid := func() Settings {
		return Settings{
			BaseURL:              "https://api.tradedesk.local",
			WsURL:                "wss://api.tradedesk.local/ws",
			Heartbeat:            30 * time.Second,
			ReconnectDelay:       3 * time.Second,
			MaxReconnectAttempts: 5,
			MetricsPort:          8080,
			RESTTimeout:          5 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"empty ws url", func(s *Settings) { s.WsURL = "" }, "WebSocket URL cannot be empty"},
		{"http scheme", func(s *Settings) { s.WsURL = "http://x/ws" }, "ws or wss scheme"},
		{"empty base url", func(s *Settings) { s.BaseURL = "" }, "base URL cannot be empty"},
		{"email without password", func(s *Settings) { s.Email = "a@b.c" }, "must be set together"},
		{"password without email", func(s *Settings) { s.Password = "pw" }, "must be set together"},
		{"heartbeat too short", func(s *Settings) { s.Heartbeat = 500 * time.Millisecond }, "heartbeat interval"},
		{"heartbeat too long", func(s *Settings) { s.Heartbeat = 10 * time.Minute }, "heartbeat interval"},
		{"reconnect delay too short", func(s *Settings) { s.ReconnectDelay = 50 * time.Millisecond }, "reconnect delay"},
		{"rest timeout too long", func(s *Settings) { s.RESTTimeout = 2 * time.Minute }, "REST timeout"},
		{"zero attempts", func(s *Settings) { s.MaxReconnectAttempts = 0 }, "max reconnect attempts"},
		{"too many attempts", func(s *Settings) { s.MaxReconnectAttempts = 500 }, "max reconnect attempts"},
		{"privileged port", func(s *Settings) { s.MetricsPort = 80 }, "metrics port"},
		{"channel with whitespace", func(s *Settings) { s.Channels = []string{"bad channel"} }, "must not contain whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := validateSettings(&s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
