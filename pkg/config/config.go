package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration
	DatabaseConnectRetryCount int
	DatabaseConnectRetryDelay time.Duration
	DatabaseDebug             bool
	DatabaseFilePath          string
	DatabaseMaxRetries        int
	DataDir                   string
	Environment               string
	Hostname                  string
	ServerHost                string
	ServerPort                int
	UpstreamTimeout           time.Duration
	UpstreamURL               string
}

const (
	environmentENV = "ENVIRONMENT"
	configFileENV  = "CONFIG_FILE"
	envPrefix      = "SHELFMARK_"
)

func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		Hostname:                  hostname,
		ServerPort:                8384,
		UpstreamTimeout:           30 * time.Second,
		UpstreamURL:               "https://readingservices.kobo.com",
	}

	environment := os.Getenv(environmentENV)
	if environment == "" {
		environment = "development"
	}
	cfg.Environment = environment

	switch environment {
	case "development":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	if err := loadOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadOverrides layers an optional YAML config file and SHELFMARK_-prefixed
// environment variables on top of the per-environment defaults. Keys are flat
// snake_case, e.g. `database_file_path` in YAML or SHELFMARK_DATABASE_FILE_PATH
// in the environment.
func loadOverrides(cfg *Config) error {
	k := koanf.New(".")

	if path := os.Getenv(configFileENV); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return errors.Wrap(err, "failed to load config file")
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return errors.WithStack(err)
	}

	if v := k.Duration("database_busy_timeout"); v != 0 {
		cfg.DatabaseBusyTimeout = v
	}
	if k.Exists("database_debug") {
		cfg.DatabaseDebug = k.Bool("database_debug")
	}
	if v := k.String("database_file_path"); v != "" {
		cfg.DatabaseFilePath = v
	}
	if v := k.Int("database_max_retries"); v != 0 {
		cfg.DatabaseMaxRetries = v
	}
	if v := k.String("data_dir"); v != "" {
		cfg.DataDir = v
	}
	if v := k.String("server_host"); v != "" {
		cfg.ServerHost = v
	}
	if v := k.Int("server_port"); v != 0 {
		cfg.ServerPort = v
	}
	if v := k.Duration("upstream_timeout"); v != 0 {
		cfg.UpstreamTimeout = v
	}
	if v := k.String("upstream_url"); v != "" {
		cfg.UpstreamURL = v
	}

	return nil
}
