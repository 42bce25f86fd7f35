package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values come from an optional yaml
// file and are overridden by environment variables, which is how the
// hosted deployments configure the service.
type Config struct {
	Port        string `yaml:"port"`
	CORSOrigins string `yaml:"cors_origins"` // comma-separated browser origins

	SheetID string `yaml:"sheet_id"`
	Sheets  struct {
		Participants string `yaml:"participants"`
		Prizes       string `yaml:"prizes"`
		Winners      string `yaml:"winners"`
	} `yaml:"sheets"`

	WriteWebAppURL string        `yaml:"write_webapp_url"`
	RNGSalt        string        `yaml:"rng_salt"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

func loadConfig(path string) (*Config, error) {
	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Port = getEnv("PORT", defaultStr(config.Port, "8787"))
	config.CORSOrigins = getEnv("CORS_ORIGIN", defaultStr(config.CORSOrigins, "http://localhost:5173"))
	config.SheetID = getEnv("SHEET_ID", config.SheetID)
	config.Sheets.Participants = getEnv("SHEET_PARTICIPANTS", defaultStr(config.Sheets.Participants, "Participants"))
	config.Sheets.Prizes = getEnv("SHEET_PRIZES", defaultStr(config.Sheets.Prizes, "Prizes"))
	config.Sheets.Winners = getEnv("SHEET_WINNERS", defaultStr(config.Sheets.Winners, "winners_log"))
	config.WriteWebAppURL = strings.TrimSpace(getEnv("WRITE_WEBAPP_URL", config.WriteWebAppURL))
	config.RNGSalt = strings.TrimSpace(getEnv("RNG_SALT", config.RNGSalt))
	if ms := getEnvAsInt("CACHE_TTL_MS", 0); ms > 0 {
		config.CacheTTL = time.Duration(ms) * time.Millisecond
	}

	return config, nil
}

// allowedOrigins splits the configured comma-separated origin list.
func (c *Config) allowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func defaultStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
