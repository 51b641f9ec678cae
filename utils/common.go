package utils

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/sqlite"

	"github.com/seigneur/takefi-sub000/pkg/store"
)

// NetworkParams resolves a configured network name to its chain parameters.
func NetworkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// LoadDB opens the swap store: redis when a redis URL is configured, sqlite
// otherwise.
func LoadDB(config Config) (store.Store, error) {
	if config.RedisURL != "" {
		return store.NewRedisStore(config.RedisURL)
	}
	path := config.DB
	if path == "" {
		path = DefaultStorePath()
	}
	return store.NewGormStore(sqlite.Open(path))
}

// LoadKeys derives the key cache from the wallet entropy, creating the
// mnemonic file on first run.
func LoadKeys(config Config) (Keys, error) {
	entropy, err := LoadEntropy(config)
	if err != nil {
		return Keys{}, err
	}
	return NewKeys(entropy), nil
}

// NewLogger builds the process logger. Production encoding unless debug is
// set.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	return config.Build()
}
