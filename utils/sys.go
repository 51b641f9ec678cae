package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/tyler-smith/go-bip39"
)

var HomeDir string

var ErrMnemonicFileMissing = errors.New("mnemonic file missing")

func init() {
	var err error
	HomeDir, err = os.UserHomeDir()
	if err != nil {
		log.Fatal("failed to get $HOME value")
	}
}

func DefaultTakefiDirectory() string {
	return filepath.Join(HomeDir, ".takefi")
}

func DefaultMnemonicPath() string {
	return filepath.Join(DefaultTakefiDirectory(), "MNEMONIC")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultTakefiDirectory(), "config.json")
}

func DefaultStorePath() string {
	return filepath.Join(DefaultTakefiDirectory(), "data.db")
}

// LoadMnemonic reads the mnemonic file and returns its entropy.
func LoadMnemonic(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMnemonicFileMissing
		}
		return nil, err
	}
	return bip39.EntropyFromMnemonic(string(data))
}

// NewMnemonic generates a fresh mnemonic, persists it to path and prints it
// once for the operator to back up.
func NewMnemonic(path string) ([]byte, error) {
	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy[:]); err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(mnemonic), 0600); err != nil {
		return nil, err
	}
	color.Green("Generating new mnemonic:\n[ %v ]", mnemonic)
	return entropy[:], nil
}

// LoadEntropy returns the wallet entropy. A mnemonic embedded in the config
// takes precedence; otherwise the mnemonic file is read, generated on first
// run.
func LoadEntropy(config Config) ([]byte, error) {
	if config.Mnemonic != "" {
		return bip39.EntropyFromMnemonic(config.Mnemonic)
	}
	entropy, err := LoadMnemonic(DefaultMnemonicPath())
	if errors.Is(err, ErrMnemonicFileMissing) {
		return NewMnemonic(DefaultMnemonicPath())
	}
	return entropy, err
}

// Config is the daemon configuration, read from a JSON file under ~/.takefi
// unless another path is given.
type Config struct {
	// Network is one of mainnet, testnet3 or regtest.
	Network string `json:"network"`

	// Addr is the listen address of the HTTP API.
	Addr string `json:"addr"`

	// BtcAPI is the base URL of the esplora-compatible chain indexer.
	BtcAPI string `json:"btcAPI"`
	// BtcNodeRPC optionally points at a bitcoind JSON-RPC endpoint used for
	// transaction dry runs.
	BtcNodeRPC string `json:"btcNodeRPC"`

	// VenueURL and VenueWS locate the order venue's REST and push APIs.
	VenueURL string `json:"venueURL"`
	VenueWS  string `json:"venueWS"`

	// SellToken is the wrapped BTC token address on the venue chain, and
	// Tokens maps target token symbols to their addresses.
	SellToken    string            `json:"sellToken"`
	Tokens       map[string]string `json:"tokens"`
	DefaultToken string            `json:"defaultToken"`

	// DB is the sqlite dialector path; RedisURL selects the redis store
	// instead when set.
	DB       string `json:"db"`
	RedisURL string `json:"redisURL"`

	// Mnemonic optionally overrides the MNEMONIC file under ~/.takefi.
	Mnemonic  string `json:"mnemonic"`
	JWTSecret string `json:"jwtSecret"`

	// OrderValidityMinutes bounds order lifetime when the venue quote has no
	// deadline.
	OrderValidityMinutes int `json:"orderValidityMinutes"`

	DiscordToken   string `json:"discordToken"`
	DiscordChannel string `json:"discordChannel"`
}

// LoadConfig reads the config file. A missing file yields the zero config;
// the wallet mnemonic has its own first-run flow in LoadEntropy.
func LoadConfig(path string) (Config, error) {
	config := Config{}
	configFile, err := os.ReadFile(path)
	if err == nil {
		json.Unmarshal(configFile, &config)
	}
	return config, nil
}
