package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type config struct {
	Port       string `yaml:"port"`
	BackendURL string `yaml:"backendURL"`
	StorePath  string `yaml:"storePath"`
	LogLevel   string `yaml:"logLevel"`
}

// loadConfig reads the YAML config file at path. A missing file is not an error so the server can
// be configured purely through the environment; CHAT_BACKEND_URL and PORT override the file
// either way.
func loadConfig(path string) (config, error) {
	cfg := config{
		Port:     "8080",
		LogLevel: "info",
	}

	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if url := os.Getenv("CHAT_BACKEND_URL"); url != "" {
		cfg.BackendURL = url
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if cfg.BackendURL == "" {
		return config{}, fmt.Errorf("backendURL is required (config file or CHAT_BACKEND_URL)")
	}

	return cfg, nil
}

func (c config) slogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
