package main

import (
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"ordkv/pkg/config"
)

// initConfig loads engine options from a YAML file. If the file does not
// exist, it falls back to config.Default(), matching the teacher's own
// cmd/init.go behavior for its high-level node config.
func initConfig(path string) (config.EngineOptions, error) {
	var cfg config.EngineOptions

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return config.Default(), nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// initLogger configures the global slog.Logger (JSON or text), same
// handler choice the teacher's initLogger makes.
func initLogger(cfg config.EngineOptions) {
	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
}
