// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	UserServiceAddress string `env:"USER_SERVICE_ADDRESS"`
	CatalogPath        string `env:"CATALOG_PATH"`
	JWTSecret          string `env:"JWT_SECRET"`
	UploadDir          string `env:"UPLOAD_DIR"`
	LogLevel           string `env:"LOG_LEVEL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.UserServiceAddress, "u", "", "user profile service address")
	flag.StringVar(&cfg.CatalogPath, "c", "", "scheme catalog file, embedded catalog when empty")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret for bearer token signatures")
	flag.StringVar(&cfg.UploadDir, "f", "uploads", "directory for uploaded documents")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")

	flag.Parse()

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.UserServiceAddress, fromEnv.UserServiceAddress)
	override(&cfg.CatalogPath, fromEnv.CatalogPath)
	override(&cfg.JWTSecret, fromEnv.JWTSecret)
	override(&cfg.UploadDir, fromEnv.UploadDir)
	override(&cfg.LogLevel, fromEnv.LogLevel)

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}

	if _, err := cfg.Level(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Level возвращает уровень логирования.
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return lvl, nil
}
