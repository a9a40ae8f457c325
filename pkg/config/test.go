package config

import (
	"os"
	"time"
)

func loadTestConfig(cfg *Config) {
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 10 * time.Millisecond
	cfg.DatabaseFilePath = ":memory:"
	cfg.DataDir = os.TempDir()
	cfg.ServerHost = "127.0.0.1"
}
