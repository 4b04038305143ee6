// Package config loads settings from the environment, with an optional YAML
// file for the tunables that are awkward as env vars. Environment variables
// always win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRefreshInterval = 15 * time.Minute
	DefaultSessionTimeout  = 10 * time.Minute
)

type Config struct {
	DiscordBotToken      string
	DiscordApplicationID string
	GitHubToken          string
	GitHubOrg            string
	GitHubClientID       string
	EncryptionKey        []byte
	DatabasePath         string
	RefreshInterval      time.Duration
	SessionTimeout       time.Duration
}

// fileConfig is the optional YAML side of the configuration. Durations are
// Go duration strings ("15m", "1h30m").
type fileConfig struct {
	DatabasePath    string `yaml:"database_path"`
	RefreshInterval string `yaml:"refresh_interval"`
	SessionTimeout  string `yaml:"session_timeout"`
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:    "./bot.db",
		RefreshInterval: DefaultRefreshInterval,
		SessionTimeout:  DefaultSessionTimeout,
	}

	if err := loadFile(cfg); err != nil {
		return nil, err
	}

	discordToken := os.Getenv("DISCORD_BOT_TOKEN")
	if discordToken == "" {
		return nil, errors.New("DISCORD_BOT_TOKEN is required")
	}
	cfg.DiscordBotToken = discordToken

	appID := os.Getenv("DISCORD_APPLICATION_ID")
	if appID == "" {
		return nil, errors.New("DISCORD_APPLICATION_ID is required")
	}
	cfg.DiscordApplicationID = appID

	ghToken := os.Getenv("GITHUB_TOKEN")
	if ghToken == "" {
		return nil, errors.New("GITHUB_TOKEN is required")
	}
	cfg.GitHubToken = ghToken

	org := os.Getenv("GITHUB_ORG")
	if org == "" {
		return nil, errors.New("GITHUB_ORG is required")
	}
	cfg.GitHubOrg = org

	ghClientID := os.Getenv("GITHUB_CLIENT_ID")
	if ghClientID == "" {
		return nil, errors.New("GITHUB_CLIENT_ID is required")
	}
	cfg.GitHubClientID = ghClientID

	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		return nil, errors.New("ENCRYPTION_KEY is required (32 bytes for AES-256)")
	}
	if len(encryptionKey) != 32 {
		return nil, errors.New("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	cfg.EncryptionKey = []byte(encryptionKey)

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if err := durationEnv("REFRESH_INTERVAL", &cfg.RefreshInterval); err != nil {
		return nil, err
	}
	if err := durationEnv("SESSION_TIMEOUT", &cfg.SessionTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile applies the YAML file named by CONFIG_PATH, if any. A missing
// file is only an error when the path was set explicitly.
func loadFile(cfg *Config) error {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.DatabasePath != "" {
		cfg.DatabasePath = fc.DatabasePath
	}
	if fc.RefreshInterval != "" {
		d, err := time.ParseDuration(fc.RefreshInterval)
		if err != nil {
			return fmt.Errorf("refresh_interval in %s: %w", path, err)
		}
		cfg.RefreshInterval = d
	}
	if fc.SessionTimeout != "" {
		d, err := time.ParseDuration(fc.SessionTimeout)
		if err != nil {
			return fmt.Errorf("session_timeout in %s: %w", path, err)
		}
		cfg.SessionTimeout = d
	}
	return nil
}

func durationEnv(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
