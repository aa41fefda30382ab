// Package config содержит логику чтения конфигурации журнала монет.
package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

const (
	defaultRunAddress    = "localhost:8080"
	defaultLogLevel      = "info"
	defaultJWTSecret     = "coin-ledger-secret"
	defaultQueueSize     = 256
	defaultCoinValue     = "0.10"
	defaultMinWithdrawal = 1
)

// Config содержит параметры конфигурации сервиса. Переменные окружения имеют приоритет над флагами.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	LogLevel         string `env:"LOG_LEVEL"`
	JWTSecret        string `env:"JWT_SECRET"`
	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
	NotifyQueueSize  int    `env:"NOTIFY_QUEUE_SIZE"`
	MinWithdrawal    int64  `env:"MIN_WITHDRAWAL"`

	// CoinValue задаёт стоимость одной монеты в валюте выплаты.
	CoinValue decimal.Decimal `env:"COIN_VALUE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory ledger when empty")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level: debug, info, warn, error")
	flag.StringVar(&cfg.JWTSecret, "s", defaultJWTSecret, "HS256 secret for bearer tokens")
	flag.StringVar(&cfg.NotifyWebhookURL, "n", "", "webhook URL for withdrawal events, log only when empty")
	flag.IntVar(&cfg.NotifyQueueSize, "q", defaultQueueSize, "notifier queue size")
	flag.TextVar(&cfg.CoinValue, "c", decimal.RequireFromString(defaultCoinValue), "payout currency value of one coin")
	flag.Int64Var(&cfg.MinWithdrawal, "m", defaultMinWithdrawal, "minimum withdrawal amount in coins")

	flag.Parse()

	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.LogLevel != "" {
		cfg.LogLevel = fromEnv.LogLevel
	}
	if fromEnv.JWTSecret != "" {
		cfg.JWTSecret = fromEnv.JWTSecret
	}
	if fromEnv.NotifyWebhookURL != "" {
		cfg.NotifyWebhookURL = fromEnv.NotifyWebhookURL
	}
	if fromEnv.NotifyQueueSize != 0 {
		cfg.NotifyQueueSize = fromEnv.NotifyQueueSize
	}
	if !fromEnv.CoinValue.IsZero() {
		cfg.CoinValue = fromEnv.CoinValue
	}
	if fromEnv.MinWithdrawal != 0 {
		cfg.MinWithdrawal = fromEnv.MinWithdrawal
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	if !cfg.CoinValue.IsPositive() {
		return nil, errors.New("coin value must be positive")
	}

	if cfg.MinWithdrawal <= 0 {
		return nil, errors.New("minimum withdrawal must be positive")
	}
	if cfg.NotifyQueueSize <= 0 {
		return nil, errors.New("notifier queue size must be positive")
	}

	return cfg, nil
}
