// Package config loads process configuration from the environment, reading a
// .env file from the working directory or one of its parents first.
package config

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	RPCURLs            []string `env:"RPC_URLS" envSeparator:","`
	PerformanceRPCURLs []string `env:"PERFORMANCE_RPC_URLS" envSeparator:","`

	StreamEnabled bool               `env:"STREAM_ENABLED" envDefault:"true"`
	GRPCURL       string             `env:"GRPC_URL"`
	GRPCToken     string             `env:"GRPC_TOKEN"`
	CachedWallets []solana.PublicKey `env:"CACHED_WALLETS" envSeparator:","`

	JitoURLs                 []string `env:"JITO_URLS" envSeparator:","`
	NozomiURLs               []string `env:"NOZOMI_URLS" envSeparator:","`
	RelayRequestsPerEndpoint int      `env:"RELAY_REQUESTS_PER_ENDPOINT" envDefault:"5"`

	// WalletPrivateKey enables order execution when set.
	WalletPrivateKey string `env:"WALLET_PRIVATE_KEY"`

	HTTPAddr         string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"solanatrade"`

	ConfirmationTimeout     time.Duration `env:"CONFIRMATION_TIMEOUT" envDefault:"60s"`
	SlotConfirmationTimeout time.Duration `env:"SLOT_CONFIRMATION_TIMEOUT" envDefault:"60s"`
	CacheRetention          time.Duration `env:"CACHE_RETENTION" envDefault:"60s"`
}

// Load reads the nearest .env file, if any, then parses and validates the environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if path, ok := findDotEnv(); ok {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func findDotEnv() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func (c Config) Validate() error {
	if len(c.RPCURLs) == 0 && len(c.PerformanceRPCURLs) == 0 {
		return errors.New("at least one of RPC_URLS or PERFORMANCE_RPC_URLS is required")
	}
	if c.StreamEnabled && c.GRPCURL == "" {
		return errors.New("GRPC_URL is required when the stream is enabled")
	}
	if c.RelayRequestsPerEndpoint <= 0 {
		return errors.New("RELAY_REQUESTS_PER_ENDPOINT must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.WalletPrivateKey != "" {
		if _, err := c.Wallet(); err != nil {
			return err
		}
	}
	return nil
}

// Wallet decodes WALLET_PRIVATE_KEY. It returns nil when no key is configured.
func (c Config) Wallet() (solana.PrivateKey, error) {
	if c.WalletPrivateKey == "" {
		return nil, nil
	}
	key, err := solana.PrivateKeyFromBase58(c.WalletPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid WALLET_PRIVATE_KEY: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid WALLET_PRIVATE_KEY: expected %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return key, nil
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
