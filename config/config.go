package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/nene-agent/sessionmem/pkg/session"
)

type TelegramConfig struct {
	Token     string   `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	Proxy     string   `json:"proxy" env:"TELEGRAM_PROXY"`
	AllowFrom []string `json:"allow_from" env:"SESSIONMEM_ALLOW_FROM" envSeparator:","`
}

type SessionConfig struct {
	Type    string `json:"type" env:"SESSIONMEM_SESSION_TYPE"`
	Persist bool   `json:"persist" env:"SESSIONMEM_PERSIST"`
	DataDir string `json:"data_dir" env:"SESSIONMEM_DATA_DIR"`
}

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Session  SessionConfig  `json:"session"`
	LogLevel string         `json:"log_level" env:"SESSIONMEM_LOG_LEVEL"`
}

func ConfigDir() string {
	if v := os.Getenv("SESSIONMEM_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sessionmem")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func DataDir() string {
	return ConfigDir()
}

func Init() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	cfgPath := ConfigPath()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		return nil
	}

	cfg := &Config{
		Session: SessionConfig{
			Type:    string(session.TypeChat),
			Persist: true,
		},
		LogLevel: "info",
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Created config at %s\n", cfgPath)
	fmt.Println("Please edit the config file and add your telegram token.")
	return nil
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config file at path, applies environment overrides and
// fills defaults. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}

	if err := loadFromFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token is required (set TELEGRAM_BOT_TOKEN env or telegram.token in %s)", path)
	}

	typ, err := session.ParseType(cfg.Session.Type)
	if err != nil {
		return nil, err
	}
	cfg.Session.Type = string(typ)

	if cfg.Session.DataDir == "" {
		cfg.Session.DataDir = DataDir()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

func (c *Config) SessionType() session.Type {
	return session.Type(c.Session.Type)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
