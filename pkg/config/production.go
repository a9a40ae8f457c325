package config

func loadProductionConfig(cfg *Config) {
	cfg.DatabaseFilePath = "/data/shelfmark.sqlite"
	cfg.DataDir = "/data/attachments"
}
