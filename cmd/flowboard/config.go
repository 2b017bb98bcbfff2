package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the client endpoints and sign-in settings. Values from the
// YAML file are overridden by environment variables.
type Config struct {
	APIURL string `yaml:"api_url"`
	WSURL  string `yaml:"ws_url"`
	Auth   struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
}

func loadConfig(path string) (*Config, error) {
	config := &Config{
		APIURL: "http://localhost:8000/api/v1",
		WSURL:  "ws://localhost:8000/ws",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.APIURL = getEnv("FLOWBOARD_API_URL", config.APIURL)
	config.WSURL = getEnv("FLOWBOARD_WS_URL", config.WSURL)
	config.Auth.Email = getEnv("FLOWBOARD_EMAIL", config.Auth.Email)
	config.Auth.Password = getEnv("FLOWBOARD_PASSWORD", config.Auth.Password)

	return config, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
