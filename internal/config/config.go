package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ResponderEcho   = "echo"
	ResponderOllama = "ollama"
)

// Config holds application configuration for both the client and the relay.
type Config struct {
	// ServerURL is the websocket base, e.g. "ws://localhost:8000". The chat
	// endpoint path is appended by the transport.
	ServerURL string
	Debug     bool
	LogDir    string

	// Reconnection policy
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// Relay server
	ListenAddr  string
	Responder   string // echo|ollama
	OllamaURL   string
	OllamaModel string // Model specification in format "model:version" (e.g., "llama3:latest")
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		ServerURL:            "ws://localhost:8000",
		LogDir:               "logs",
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		ListenAddr:           ":8000",
		Responder:            ResponderEcho,
		OllamaURL:            "http://localhost:11434",
		OllamaModel:          "llama3:latest",
	}
}

// fileConfig mirrors Config for YAML parsing. Fields are pointers so only
// keys present in the file override the defaults; durations are
// human-readable strings ("500ms", "30s").
type fileConfig struct {
	ServerURL            *string `yaml:"server_url"`
	Debug                *bool   `yaml:"debug"`
	LogDir               *string `yaml:"log_dir"`
	MaxReconnectAttempts *int    `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   *string `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    *string `yaml:"reconnect_max_delay"`
	ListenAddr           *string `yaml:"listen_addr"`
	Responder            *string `yaml:"responder"`
	OllamaURL            *string `yaml:"ollama_url"`
	OllamaModel          *string `yaml:"ollama_model"`
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&cfg.ServerURL, fc.ServerURL)
	setString(&cfg.LogDir, fc.LogDir)
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.Responder, fc.Responder)
	setString(&cfg.OllamaURL, fc.OllamaURL)
	setString(&cfg.OllamaModel, fc.OllamaModel)
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}
	if fc.MaxReconnectAttempts != nil {
		cfg.MaxReconnectAttempts = *fc.MaxReconnectAttempts
	}
	if err := setDuration(&cfg.ReconnectBaseDelay, fc.ReconnectBaseDelay, "reconnect_base_delay"); err != nil {
		return cfg, err
	}
	if err := setDuration(&cfg.ReconnectMaxDelay, fc.ReconnectMaxDelay, "reconnect_max_delay"); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, key string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

// Validate checks values that would otherwise fail deep inside the transport.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url cannot be empty")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts cannot be negative")
	}
	if c.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("reconnect_base_delay must be positive")
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return fmt.Errorf("reconnect_max_delay must be >= reconnect_base_delay")
	}
	switch c.Responder {
	case ResponderEcho, ResponderOllama:
	default:
		return fmt.Errorf("unknown responder: %s", c.Responder)
	}
	return nil
}
