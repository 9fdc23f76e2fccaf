// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads daemon settings from an optional TOML file with
// environment overrides. Precedence is defaults, then file, then env.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/luxfi/zkverify/payload"
	"github.com/luxfi/zkverify/receipt"
)

// Config is the resolved daemon configuration.
type Config struct {
	RollupURL        string
	ImageID          string
	VerifyingKey     string
	VerifyingKeyFile string
	JournalSchema    string
	CacheSize        int
	LogLevel         string
	MetricsAddr      string
	DataDir          string
}

// fileConfig maps config.toml keys onto Config fields.
type fileConfig struct {
	RollupURL        string `toml:"rollup-url"`
	ImageID          string `toml:"image-id"`
	VerifyingKey     string `toml:"verifying-key"`
	VerifyingKeyFile string `toml:"verifying-key-file"`
	JournalSchema    string `toml:"journal-schema"`
	CacheSize        int    `toml:"cache-size"`
	LogLevel         string `toml:"log-level"`
	MetricsAddr      string `toml:"metrics-addr"`
	DataDir          string `toml:"data-dir"`
}

// Default returns the built-in configuration. The image ID and verifying
// key have no defaults and must come from the file or the environment.
func Default() Config {
	return Config{
		RollupURL:     "http://127.0.0.1:5004",
		JournalSchema: "bool",
		CacheSize:     256,
		LogLevel:      "info",
	}
}

// Load resolves the configuration: defaults, overlaid by the TOML file at
// path when non-empty, overlaid by environment variables. Validation is
// separate so callers can report all context at once.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}

		if meta.IsDefined("rollup-url") {
			cfg.RollupURL = strings.TrimSpace(raw.RollupURL)
		}
		if meta.IsDefined("image-id") {
			cfg.ImageID = strings.TrimSpace(raw.ImageID)
		}
		if meta.IsDefined("verifying-key") {
			cfg.VerifyingKey = strings.TrimSpace(raw.VerifyingKey)
		}
		if meta.IsDefined("verifying-key-file") {
			cfg.VerifyingKeyFile = strings.TrimSpace(raw.VerifyingKeyFile)
		}
		if meta.IsDefined("journal-schema") {
			cfg.JournalSchema = strings.TrimSpace(raw.JournalSchema)
		}
		if meta.IsDefined("cache-size") {
			cfg.CacheSize = raw.CacheSize
		}
		if meta.IsDefined("log-level") {
			cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
		}
		if meta.IsDefined("metrics-addr") {
			cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
		}
		if meta.IsDefined("data-dir") {
			cfg.DataDir = strings.TrimSpace(raw.DataDir)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ROLLUP_HTTP_SERVER_URL"); v != "" {
		c.RollupURL = v
	}
	if v := os.Getenv("ZKVERIFY_IMAGE_ID"); v != "" {
		c.ImageID = v
	}
	if v := os.Getenv("ZKVERIFY_VERIFYING_KEY"); v != "" {
		c.VerifyingKey = v
	}
	if v := os.Getenv("ZKVERIFY_VERIFYING_KEY_FILE"); v != "" {
		c.VerifyingKeyFile = v
	}
	if v := os.Getenv("ZKVERIFY_JOURNAL_SCHEMA"); v != "" {
		c.JournalSchema = v
	}
	if v := os.Getenv("ZKVERIFY_CACHE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("load config: ZKVERIFY_CACHE_SIZE: %w", err)
		}
		c.CacheSize = size
	}
	if v := os.Getenv("ZKVERIFY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ZKVERIFY_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("ZKVERIFY_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	return nil
}

// Validate checks that the configuration can boot a verifier.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RollupURL) == "" {
		return fmt.Errorf("config: rollup-url must not be empty")
	}
	if _, err := payload.ImageIDFromHex(c.ImageID); err != nil {
		return fmt.Errorf("config: image-id: %w", err)
	}
	hasInline := c.VerifyingKey != ""
	hasFile := c.VerifyingKeyFile != ""
	if hasInline == hasFile {
		return fmt.Errorf("config: exactly one of verifying-key and verifying-key-file must be set")
	}
	if _, err := receipt.ParseSchema(c.JournalSchema); err != nil {
		return fmt.Errorf("config: journal-schema: %w", err)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("config: cache-size must not be negative, got %d", c.CacheSize)
	}
	return nil
}

// Schema returns the parsed journal schema. Call after Validate.
func (c *Config) Schema() (receipt.Schema, error) {
	return receipt.ParseSchema(c.JournalSchema)
}

// VerifyingKeyBytes resolves the configured key material to raw bytes,
// reading the key file when one is set. An optional 0x prefix and
// surrounding whitespace are tolerated in both forms.
func (c *Config) VerifyingKeyBytes() ([]byte, error) {
	text := c.VerifyingKey
	if c.VerifyingKeyFile != "" {
		data, err := os.ReadFile(c.VerifyingKeyFile)
		if err != nil {
			return nil, fmt.Errorf("config: read verifying-key-file: %w", err)
		}
		text = string(data)
	}
	raw, err := hex.DecodeString(payload.Normalize(strings.TrimSpace(text)))
	if err != nil {
		return nil, fmt.Errorf("config: decode verifying key: %w", err)
	}
	return raw, nil
}
