package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "SERVER_PORT", "METRICS_PORT", "SHUTDOWN_TIMEOUT",
		"MODEL_DIR", "EXPLAIN_TIMEOUT", "DATA_PATH", "RECORDER_BUFFER",
		"SLACK_WEBHOOK_URL", "ALERT_WEBHOOK_URL", "REST_TIMEOUT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.ServerPort != 5000 || s.MetricsPort != 8080 {
		t.Errorf("ports = %d/%d, want 5000/8080", s.ServerPort, s.MetricsPort)
	}
	if s.ModelDir != "artifacts" {
		t.Errorf("model dir = %q, want artifacts", s.ModelDir)
	}
	if s.ShutdownTimeout != 10*time.Second || s.ExplainTimeout != 2*time.Second {
		t.Errorf("timeouts = %v/%v, want 10s/2s", s.ShutdownTimeout, s.ExplainTimeout)
	}
	if s.RecorderBuffer != 256 {
		t.Errorf("recorder buffer = %d, want 256", s.RecorderBuffer)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SERVER_PORT", "6001")
	t.Setenv("MODEL_DIR", "/var/lib/models")
	t.Setenv("EXPLAIN_TIMEOUT", "500ms")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example.com/slack")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.ServerPort != 6001 {
		t.Errorf("server port = %d, want 6001", s.ServerPort)
	}
	if s.ModelDir != "/var/lib/models" {
		t.Errorf("model dir = %q", s.ModelDir)
	}
	if s.ExplainTimeout != 500*time.Millisecond {
		t.Errorf("explain timeout = %v, want 500ms", s.ExplainTimeout)
	}
	if s.SlackWebhookURL != "https://hooks.example.com/slack" {
		t.Errorf("slack webhook = %q", s.SlackWebhookURL)
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearConfigEnv(t)

	content := `
server:
  port: 7001
  metricsPort: 7002
  shutdownTimeout: 15s
model:
  dir: /opt/models
  explainTimeout: 1s
storage:
  dataPath: /var/lib/trustnet
  recorderBuffer: 512
alerts:
  webhookURL: https://alerts.example.com/hook
system:
  restTimeout: 3s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.ServerPort != 7001 || s.MetricsPort != 7002 {
		t.Errorf("ports = %d/%d, want 7001/7002", s.ServerPort, s.MetricsPort)
	}
	if s.ShutdownTimeout != 15*time.Second {
		t.Errorf("shutdown timeout = %v, want 15s", s.ShutdownTimeout)
	}
	if s.ModelDir != "/opt/models" {
		t.Errorf("model dir = %q", s.ModelDir)
	}
	if s.DataPath != "/var/lib/trustnet" || s.RecorderBuffer != 512 {
		t.Errorf("storage = %q/%d", s.DataPath, s.RecorderBuffer)
	}
	if s.AlertWebhookURL != "https://alerts.example.com/hook" {
		t.Errorf("alert webhook = %q", s.AlertWebhookURL)
	}
	if s.RESTTimeout != 3*time.Second {
		t.Errorf("rest timeout = %v, want 3s", s.RESTTimeout)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7001\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "9001")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.ServerPort != 9001 {
		t.Errorf("server port = %d, env must override the file", s.ServerPort)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("Load() with missing config file should fail")
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"equal ports", map[string]string{"SERVER_PORT": "8080", "METRICS_PORT": "8080"}, "must differ"},
		{"server port out of range", map[string]string{"SERVER_PORT": "70000"}, "server port"},
		{"metrics port privileged", map[string]string{"METRICS_PORT": "80"}, "metrics port"},
		{"buffer too large", map[string]string{"RECORDER_BUFFER": "200000"}, "recorder buffer"},
		{"shutdown timeout too long", map[string]string{"SHUTDOWN_TIMEOUT": "10m"}, "shutdown timeout"},
		{"explain timeout too short", map[string]string{"EXPLAIN_TIMEOUT": "1ms"}, "explain timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load() should fail validation")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
