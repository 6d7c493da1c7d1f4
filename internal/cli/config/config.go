package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const (
	dirName    = "plexshare"
	fileName   = "config.json"
	dirPerms   = 0700
	filePerms  = 0600
	DefaultURL = "http://localhost:8080"

	envServer = "PLEXSHARE_SERVER"
	envToken  = "PLEXSHARE_TOKEN"
)

// Config holds persisted CLI configuration.
type Config struct {
	ServerURL string `json:"server_url"`
	Token     string `json:"token"`
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName, fileName), nil
}

// Load reads the config from disk and applies PLEXSHARE_SERVER and
// PLEXSHARE_TOKEN on top. A missing file is not an error.
func Load() (*Config, error) {
	cfg := &Config{}
	if p, err := Path(); err == nil {
		data, err := os.ReadFile(p)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	if v := os.Getenv(envServer); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv(envToken); v != "" {
		cfg.Token = v
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultURL
	}
	return cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func Save(cfg *Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerms); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, filePerms)
}
