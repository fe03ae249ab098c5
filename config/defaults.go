package config

import (
	"time"

	"github.com/Klingon-tech/shieldwallet/internal/ledger"
	"github.com/Klingon-tech/shieldwallet/internal/signer"
	"github.com/Klingon-tech/shieldwallet/internal/wallet"
)

// Defaults not owned by the client packages.
const (
	DefaultLedgerURL     = "http://127.0.0.1:9933"
	DefaultLedgerTimeout = 30 * time.Second
	DefaultWalletName    = "default"
	DefaultDecimals      = 12
)

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Wallet: WalletConfig{
			Name:          DefaultWalletName,
			CoinType:      wallet.CoinTypeMainnet,
			StrictStaging: false,
			PollInterval:  wallet.DefaultPollInterval,
			Decimals:      DefaultDecimals,
		},
		Signer: SignerConfig{
			URL:          signer.DefaultURL,
			Timeout:      signer.DefaultTimeout,
			ProbeTimeout: signer.DefaultProbeTimeout,
		},
		Ledger: LedgerConfig{
			URL:     DefaultLedgerURL,
			Timeout: DefaultLedgerTimeout,
			MaxRPS:  ledger.DefaultMaxRPS,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Wallet.CoinType = wallet.CoinTypeTestnet
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
