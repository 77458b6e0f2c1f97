package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

// Config is the process configuration, read from the environment.
type Config struct {
	ServiceName string        `env:"SERVICE_NAME" envDefault:"gameshop"`
	Env         string        `env:"ENV" envDefault:"dev"`
	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogFile     string        `env:"LOG_FILE"`
	LogLevel    zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`
	CatalogFile string        `env:"CATALOG_FILE"`

	StartingGold      int64 `env:"STARTING_GOLD" envDefault:"2000"`
	InventoryCapacity int   `env:"INVENTORY_CAPACITY" envDefault:"14"`

	PaymentDelay       time.Duration `env:"PAYMENT_DELAY" envDefault:"2s"`
	PaymentDeclineRate float64       `env:"PAYMENT_DECLINE_RATE" envDefault:"0.1"`
	AuthorizeTimeout   time.Duration `env:"AUTHORIZE_TIMEOUT" envDefault:"5s"`

	PurchaseRateLimit float64 `env:"PURCHASE_RATE_LIMIT" envDefault:"5"`
	PurchaseRateBurst int     `env:"PURCHASE_RATE_BURST" envDefault:"10"`

	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if c.StartingGold < 0 {
		errs = append(errs, errors.New("STARTING_GOLD must be zero or greater"))
	}
	if c.InventoryCapacity <= 0 {
		errs = append(errs, errors.New("INVENTORY_CAPACITY must be greater than zero"))
	}
	if c.PaymentDelay < 0 {
		errs = append(errs, errors.New("PAYMENT_DELAY must not be negative"))
	}
	if c.PaymentDeclineRate < 0 || c.PaymentDeclineRate > 1 {
		errs = append(errs, errors.New("PAYMENT_DECLINE_RATE must be within [0, 1]"))
	}
	if c.AuthorizeTimeout <= 0 {
		errs = append(errs, errors.New("AUTHORIZE_TIMEOUT must be greater than zero"))
	} else if c.PaymentDelay >= c.AuthorizeTimeout {
		// every authorization would time out
		errs = append(errs, errors.New("PAYMENT_DELAY must be shorter than AUTHORIZE_TIMEOUT"))
	}
	if c.PurchaseRateLimit <= 0 || c.PurchaseRateBurst <= 0 {
		errs = append(errs, errors.New("PURCHASE_RATE_LIMIT and PURCHASE_RATE_BURST must be greater than zero"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be greater than zero"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
