package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalConfig = `
database:
  dsn: "u:p@tcp(127.0.0.1:3306)/codearena"
redis:
  addr: 127.0.0.1:6379
mongo:
  uri: mongodb://127.0.0.1:27017
  database: codearena
auth:
  jwtSecret: from-file
judge:
  baseURL: http://judge.local
  pollInterval: 250ms
  maxCodeBytes: 1024
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Judge.Client.BaseURL != "http://judge.local" || cfg.Judge.Polling.PollInterval != 250*time.Millisecond {
		t.Fatalf("inline judge config not decoded: %+v", cfg.Judge)
	}
	if cfg.Judge.MaxCodeBytes != 1024 {
		t.Fatalf("unexpected max code bytes: %d", cfg.Judge.MaxCodeBytes)
	}
	if cfg.RateLimit.LoginMax != 60 || cfg.RateLimit.LoginWindow != 360*time.Second {
		t.Fatalf("unexpected login limit: %+v", cfg.RateLimit)
	}
	if cfg.Events.CleanupTopic != "problem.deleted" || cfg.Events.JudgedTopic != "submission.judged" {
		t.Fatalf("unexpected topics: %+v", cfg.Events)
	}
	if cfg.Mongo.PostCollection != "posts" || cfg.Auth.JWTIssuer != "codearena" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Mongo, cfg.Auth)
	}
	if cfg.Redis.ReadTimeout == 0 || cfg.Database.MaxOpenConnections == 0 {
		t.Fatalf("store defaults not applied")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg := AppConfig{}
	cfg.Auth.JWTSecret = "from-file"
	env := map[string]string{
		envJWTSecret:    "from-env",
		envGeminiAPIKey: "gemini-key",
	}
	applyEnvOverrides(&cfg, func(key string) string { return env[key] })
	if cfg.Auth.JWTSecret != "from-env" || cfg.Gemini.APIKey != "gemini-key" {
		t.Fatalf("unexpected overrides: %+v %+v", cfg.Auth, cfg.Gemini)
	}
	if cfg.Judge.Client.APIKey != "" {
		t.Fatalf("judge key should be untouched")
	}
}

func TestValidateConfigRequiredFields(t *testing.T) {
	valid := func() AppConfig {
		cfg := AppConfig{}
		cfg.Database.DSN = "dsn"
		cfg.Redis.Addr = "redis"
		cfg.Mongo.URI = "mongodb://x"
		cfg.Mongo.Database = "db"
		cfg.Auth.JWTSecret = "secret"
		cfg.Judge.Client.BaseURL = "http://judge"
		return cfg
	}
	base := valid()
	if err := validateConfig(&base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	breakers := map[string]func(*AppConfig){
		"dsn":     func(c *AppConfig) { c.Database.DSN = "" },
		"redis":   func(c *AppConfig) { c.Redis.Addr = "" },
		"mongo":   func(c *AppConfig) { c.Mongo.Database = "" },
		"jwt":     func(c *AppConfig) { c.Auth.JWTSecret = "" },
		"judge":   func(c *AppConfig) { c.Judge.Client.BaseURL = "" },
		"bucket":  func(c *AppConfig) { c.MinIO.Endpoint = "minio:9000" },
		"brokers": func(c *AppConfig) { c.Events.Enabled = true },
	}
	for name, breakCfg := range breakers {
		cfg := valid()
		breakCfg(&cfg)
		if err := validateConfig(&cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestSubscribeOptionsDeadLetter(t *testing.T) {
	opts := subscribeOptions(EventsConfig{MaxRetries: 3, DeadLetterSuffix: ".dlq"}, "problem.deleted")
	if opts.DeadLetterTopic != "problem.deleted.dlq" || opts.MaxRetries != 3 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts := subscribeOptions(EventsConfig{}, "x"); opts.DeadLetterTopic != "" {
		t.Fatalf("unexpected dead letter topic: %s", opts.DeadLetterTopic)
	}
}
