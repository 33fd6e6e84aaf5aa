package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir   string           `yaml:"data_dir"`
	Cache     CacheConfig      `yaml:"cache"`
	Defaults  DefaultsConfig   `yaml:"defaults"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

type CacheConfig struct {
	Addr string `yaml:"addr"`
	TTL  string `yaml:"ttl"`
}

type DefaultsConfig struct {
	HandshakeTimeout string `yaml:"handshake_timeout"`
	CallTimeout      string `yaml:"call_timeout"`
	ChainTimeout     string `yaml:"chain_timeout"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type ScheduleConfig struct {
	Name    string            `yaml:"name"`
	Spec    string            `yaml:"spec"`
	ChainID string            `yaml:"chain_id"`
	Input   string            `yaml:"input"`
	Vars    map[string]string `yaml:"vars"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandEnvFields(cfg *Config) {
	cfg.DataDir = expandEnv(cfg.DataDir)
	cfg.Cache.Addr = expandEnv(cfg.Cache.Addr)
	cfg.Metrics.Listen = expandEnv(cfg.Metrics.Listen)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandEnvFields(&cfg)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	return &cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolweave"
	}
	return home + "/.toolweave"
}

// Duration parses a yaml duration string, returning fallback when the
// field is empty and an error when it is present but malformed.
func Duration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", s, err)
	}
	return d, nil
}
