package config

func loadDevelopmentConfig(cfg *Config) {
	cfg.DatabaseDebug = true
	cfg.DatabaseFilePath = "./tmp/data.sqlite"
	cfg.DataDir = "./tmp/data"
	cfg.ServerHost = "127.0.0.1"
}
