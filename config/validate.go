package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tyler-smith/go-bip32"

	klog "github.com/Klingon-tech/shieldwallet/internal/log"
)

// MaxDecimals bounds wallet.decimals.
const MaxDecimals = 18

// Validate checks the configuration for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("datadir is empty")
	}

	name := strings.TrimSpace(cfg.Wallet.Name)
	if name == "" {
		return fmt.Errorf("wallet.name is empty")
	}
	if strings.ContainsAny(name, "/\\:") {
		return fmt.Errorf("wallet.name %q contains a path separator", name)
	}
	cfg.Wallet.Name = name
	if cfg.Wallet.CoinType >= bip32.FirstHardenedChild {
		return fmt.Errorf("wallet.cointype must be below 2^31")
	}
	if cfg.Wallet.PollInterval <= 0 {
		return fmt.Errorf("wallet.pollinterval must be positive")
	}
	if cfg.Wallet.Decimals < 0 || cfg.Wallet.Decimals > MaxDecimals {
		return fmt.Errorf("wallet.decimals must be in range [0, %d]", MaxDecimals)
	}

	if err := validateURL(cfg.Signer.URL, "signer.url"); err != nil {
		return err
	}
	if cfg.Signer.Timeout <= 0 {
		return fmt.Errorf("signer.timeout must be positive")
	}
	if cfg.Signer.ProbeTimeout <= 0 {
		return fmt.Errorf("signer.probetimeout must be positive")
	}

	if err := validateURL(cfg.Ledger.URL, "ledger.url"); err != nil {
		return err
	}
	if cfg.Ledger.Timeout <= 0 {
		return fmt.Errorf("ledger.timeout must be positive")
	}
	if cfg.Ledger.MaxRPS < 0 {
		return fmt.Errorf("ledger.maxrps must not be negative")
	}

	if !klog.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of trace, debug, info, warn, error, disabled", cfg.Log.Level)
	}
	return nil
}

func validateURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", field)
	}
	return nil
}
