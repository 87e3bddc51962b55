package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLogLevel(raw); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestNewLoggerJSONHidesSecrets(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(&out, "info", "JSON")
	cfg := Config{HTTPAddr: ":9000", GoogleAPIKey: "secret-key", RedisURL: "redis://user:pw@cache:6379"}
	logger.Debug("dropped")
	logger.Info("configuration loaded", slog.Any("config", cfg))

	if strings.Contains(out.String(), "dropped") {
		t.Fatal("debug lines must be filtered at info level")
	}
	if strings.Contains(out.String(), "secret-key") || strings.Contains(out.String(), "pw@") {
		t.Fatalf("secrets leaked into the log: %s", out.String())
	}
	var line struct {
		Config struct {
			HTTPAddr     string `json:"httpAddr"`
			HasGoogleKey bool   `json:"hasGoogleKey"`
			HasRedis     bool   `json:"hasRedis"`
		} `json:"config"`
	}
	if err := json.Unmarshal(out.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line.Config.HTTPAddr != ":9000" || !line.Config.HasGoogleKey || !line.Config.HasRedis {
		t.Fatalf("unexpected config group: %+v", line.Config)
	}
}
