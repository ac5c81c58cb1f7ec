package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all cadence server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath           string `json:"db_path"`
	LogLevel         string `json:"log_level"`
	Concurrency      int    `json:"concurrency"`
	LeadsPath        string `json:"leads_path"`
	SenderName       string `json:"sender_name"`
	SenderCompany    string `json:"sender_company"`
	DispatchInterval int    `json:"dispatch_interval_seconds"`
	MaxAttempts      int    `json:"max_attempts"`
	BatchTimeout     int    `json:"batch_timeout_seconds"`
}

func defaultConfig() Config {
	return Config{
		DBPath:           filepath.Join(cadenceDir(), "cadence.db"),
		LogLevel:         "info",
		Concurrency:      1,
		LeadsPath:        filepath.Join(cadenceDir(), "leads.json"),
		DispatchInterval: 60,
		MaxAttempts:      5,
		BatchTimeout:     30,
	}
}

func cadenceDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cadence"
	}
	return filepath.Join(home, ".cadence")
}

func settingsPath() string {
	return filepath.Join(cadenceDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CADENCE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CADENCE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CADENCE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("CADENCE_LEADS_PATH"); v != "" {
		cfg.LeadsPath = v
	}
	if v := os.Getenv("CADENCE_SENDER_NAME"); v != "" {
		cfg.SenderName = v
	}
	if v := os.Getenv("CADENCE_SENDER_COMPANY"); v != "" {
		cfg.SenderCompany = v
	}
	if v := os.Getenv("CADENCE_DISPATCH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DispatchInterval = n
		}
	}
	if v := os.Getenv("CADENCE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("CADENCE_BATCH_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchTimeout = n
		}
	}

	return cfg
}
