package app

import "github.com/charlesng35/quotesync/pkg/logger"

// ConfigureLogging initialises the global logger from the server section.
func ConfigureLogging(cfg ServerConfig) error {
	return logger.Configure(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}
