// Package config reads the deployment settings of the tutoring service
// from an optional YAML file and ALIS_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/alis/internal/store"
	"github.com/abhisek/alis/internal/tutor"
)

const envPrefix = "ALIS_"

// Config holds everything outside the LLM layer, which reads its own
// settings through llm.ConfigFromEnv.
type Config struct {
	DBPath      string
	Addr        string
	LogMode     string
	LogPath     string
	RedisAddr   string
	CORSOrigins []string
	Tutor       tutor.Config
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:        ":8080",
		LogMode:     "prod",
		CORSOrigins: []string{"*"},
		Tutor:       tutor.DefaultConfig(),
	}
}

func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + name))
	return v, v != ""
}

// fileConfig models the YAML config file. Pointer fields distinguish an
// absent key from a zero value.
type fileConfig struct {
	DB          string   `yaml:"db"`
	Addr        string   `yaml:"addr"`
	LogMode     string   `yaml:"log_mode"`
	LogFile     string   `yaml:"log_file"`
	RedisAddr   string   `yaml:"redis_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	Tutor       struct {
		PassThreshold     *int  `yaml:"pass_threshold"`
		MaxFailedAttempts *int  `yaml:"max_failed_attempts"`
		Pretest           *bool `yaml:"pretest"`
	} `yaml:"tutor"`
}

// FromEnv loads the file named by ALIS_CONFIG, if any, then overlays
// ALIS_* variables. A malformed value is an error rather than silently
// ignored.
func FromEnv() (Config, error) {
	file, _ := lookup("CONFIG")
	return Load(file)
}

// Load reads the YAML file at path (skipped when empty) on top of Default
// and then overlays ALIS_* variables, which take precedence.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.DBPath, f.DB)
	setString(&c.Addr, f.Addr)
	setString(&c.LogMode, f.LogMode)
	setString(&c.LogPath, f.LogFile)
	setString(&c.RedisAddr, f.RedisAddr)
	if len(f.CORSOrigins) > 0 {
		c.CORSOrigins = f.CORSOrigins
	}
	if f.Tutor.PassThreshold != nil {
		c.Tutor.Threshold = *f.Tutor.PassThreshold
	}
	if f.Tutor.MaxFailedAttempts != nil {
		c.Tutor.MaxFailedAttempts = *f.Tutor.MaxFailedAttempts
	}
	if f.Tutor.Pretest != nil {
		c.Tutor.PretestEnabled = *f.Tutor.Pretest
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("DB"); ok {
		c.DBPath = v
	}
	if v, ok := lookup("ADDR"); ok {
		c.Addr = v
	}
	if v, ok := lookup("LOG_MODE"); ok {
		c.LogMode = v
	}
	if v, ok := lookup("LOG_FILE"); ok {
		c.LogPath = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.RedisAddr = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}

	if v, ok := lookup("PASS_THRESHOLD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPASS_THRESHOLD: %w", envPrefix, err)
		}
		c.Tutor.Threshold = n
	}
	if v, ok := lookup("MAX_FAILED_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_FAILED_ATTEMPTS: %w", envPrefix, err)
		}
		c.Tutor.MaxFailedAttempts = n
	}
	if v, ok := lookup("PRETEST"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPRETEST: %w", envPrefix, err)
		}
		c.Tutor.PretestEnabled = b
	}
	return nil
}

// Validate checks the values that would otherwise fail late.
func (c Config) Validate() error {
	switch c.LogMode {
	case "dev", "prod":
	default:
		return fmt.Errorf("log mode must be dev or prod, got %q", c.LogMode)
	}
	if c.Tutor.Threshold < 1 || c.Tutor.Threshold > 100 {
		return fmt.Errorf("pass threshold must be between 1 and 100, got %d", c.Tutor.Threshold)
	}
	if c.Tutor.MaxFailedAttempts < 0 {
		return fmt.Errorf("max failed attempts must not be negative, got %d", c.Tutor.MaxFailedAttempts)
	}
	return nil
}

// ResolveDBPath returns DBPath, or the per-user default when unset.
func (c Config) ResolveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	return store.DefaultDBPath()
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
