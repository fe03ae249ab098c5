// Package config handles wallet configuration.
//
// Settings come from three layers, each overriding the previous one:
// built-in defaults for the selected network, the key = value config file
// in the data directory, and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds the wallet's runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Wallet
	Wallet WalletConfig

	// External signer service
	Signer SignerConfig

	// Ledger node
	Ledger LedgerConfig

	// Logging
	Log LogConfig
}

// WalletConfig holds per-wallet settings.
type WalletConfig struct {
	Name          string        `conf:"wallet.name"`
	CoinType      uint32        `conf:"wallet.cointype"`
	StrictStaging bool          `conf:"wallet.strictstaging"`
	PollInterval  time.Duration `conf:"wallet.pollinterval"`
	Decimals      int32         `conf:"wallet.decimals"` // Display precision of asset amounts.
}

// SignerConfig holds the signer service endpoint.
type SignerConfig struct {
	URL          string        `conf:"signer.url"`
	Timeout      time.Duration `conf:"signer.timeout"`      // Per request; proof generation is slow.
	ProbeTimeout time.Duration `conf:"signer.probetimeout"` // Version probe only.
}

// LedgerConfig holds the ledger node's JSON-RPC endpoint.
type LedgerConfig struct {
	URL     string        `conf:"ledger.url"`
	Timeout time.Duration `conf:"ledger.timeout"`
	MaxRPS  int           `conf:"ledger.maxrps"` // 0 disables pacing.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.shieldwallet
//	macOS:   ~/Library/Application Support/ShieldWallet
//	Windows: %APPDATA%\ShieldWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shieldwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "ShieldWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "ShieldWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "ShieldWallet")
	default:
		return filepath.Join(home, ".shieldwallet")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// WalletDBDir returns the wallet database directory. Every wallet of the
// network shares it under its own key prefix.
func (c *Config) WalletDBDir() string {
	return filepath.Join(c.NetworkDataDir(), "wallets")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "shieldwallet.conf")
}
