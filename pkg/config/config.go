// Package config loads qbank settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/supersix/qbank/pkg/question"
)

// DefaultKey is the obfuscation key the front-end ships with.
const DefaultKey = "SUPERSIX_SECURE_KEY_2025"

// Environment variables that override the file.
const (
	EnvKey      = "QBANK_KEY"
	EnvStoreDir = "QBANK_STORE_DIR"
	EnvLogLevel = "QBANK_LOG_LEVEL"
	EnvWorkers  = "QBANK_WORKERS"
)

// Fixup is one text correction as written in the config file.
type Fixup struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// Config holds every tunable of the tool.
type Config struct {
	Key      string `yaml:"key"`
	StoreDir string `yaml:"store_dir"`

	Difficulty string `yaml:"difficulty"`
	Subject    string `yaml:"subject"`
	Topic      string `yaml:"topic"`

	DedupPrefix   int      `yaml:"dedup_prefix"`
	SentinelYears []string `yaml:"sentinel_years"`
	FallbackYear  string   `yaml:"fallback_year"`
	MinOptions    int      `yaml:"min_options"`
	// AuditMinOptions is the option count below which audit flags a record.
	AuditMinOptions int `yaml:"audit_min_options"`

	Colleges map[string]string `yaml:"colleges"`
	Fixups   []Fixup           `yaml:"fixups"`

	LogLevel string `yaml:"log_level"`
	Workers  int    `yaml:"workers"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Key:             DefaultKey,
		StoreDir:        "data",
		Difficulty:      question.DefaultDifficulty,
		DedupPrefix:     question.DefaultDedupPrefix,
		SentinelYears:   []string{"XXXX", "Unknown", ""},
		MinOptions:      2,
		AuditMinOptions: 4,
		LogLevel:        "info",
		Workers:         4,
	}
}

// Load reads path (skipped when empty) over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Key = getEnvOrDefault(EnvKey, c.Key)
	c.StoreDir = getEnvOrDefault(EnvStoreDir, c.StoreDir)
	c.LogLevel = getEnvOrDefault(EnvLogLevel, c.LogLevel)
	if v := getEnvOrDefault(EnvWorkers, ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ValidationError{Field: EnvWorkers, Msg: "not an integer: " + v}
		}
		c.Workers = n
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidationError names a setting that cannot be used.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Msg
}

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, msg string) {
		errs = append(errs, &ValidationError{Field: field, Msg: msg})
	}
	if c.Key == "" {
		bad("key", "must not be empty")
	}
	if c.DedupPrefix < 1 || c.DedupPrefix > 1000 {
		bad("dedup_prefix", fmt.Sprintf("%d is outside 1..1000", c.DedupPrefix))
	}
	if c.MinOptions < 2 {
		bad("min_options", "must be at least 2")
	}
	if c.AuditMinOptions < 0 {
		bad("audit_min_options", "must not be negative")
	}
	if c.Workers < 1 {
		bad("workers", "must be at least 1")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		bad("log_level", err.Error())
	}
	for i, f := range c.Fixups {
		if f.Pattern == "" {
			bad(fmt.Sprintf("fixups[%d]", i), "empty pattern")
			continue
		}
		if _, err := regexp.Compile(f.Pattern); err != nil {
			bad(fmt.Sprintf("fixups[%d]", i), err.Error())
		}
	}
	for prefix, code := range c.Colleges {
		if strings.TrimSpace(prefix) == "" || strings.TrimSpace(code) == "" {
			bad("colleges", fmt.Sprintf("empty entry %q: %q", prefix, code))
		}
	}
	return errors.Join(errs...)
}

// Policy builds the normalization policy. Fixup patterns are compiled here.
func (c *Config) Policy() (question.Policy, error) {
	p := question.Policy{
		Difficulty:    c.Difficulty,
		Subject:       c.Subject,
		Topic:         c.Topic,
		Colleges:      c.Colleges,
		SentinelYears: c.SentinelYears,
		FallbackYear:  c.FallbackYear,
		MinOptions:    c.MinOptions,
	}
	for i, f := range c.Fixups {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return question.Policy{}, fmt.Errorf("fixups[%d]: %w", i, err)
		}
		p.Fixups = append(p.Fixups, question.Fixup{Pattern: re, Replace: f.Replace})
	}
	return p, nil
}
