package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration values from a .conf file.
// A missing file yields no values.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Wallet
	case "wallet.name", "wallet":
		cfg.Wallet.Name = value
	case "wallet.cointype":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Wallet.CoinType = uint32(n)
	case "wallet.strictstaging":
		cfg.Wallet.StrictStaging = parseBool(value)
	case "wallet.pollinterval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Wallet.PollInterval = d
	case "wallet.decimals":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Wallet.Decimals = int32(n)

	// Signer
	case "signer.url", "signer":
		cfg.Signer.URL = value
	case "signer.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Signer.Timeout = d
	case "signer.probetimeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Signer.ProbeTimeout = d

	// Ledger
	case "ledger.url", "ledger":
		cfg.Ledger.URL = value
	case "ledger.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Ledger.Timeout = d
	case "ledger.maxrps":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Ledger.MaxRPS = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	cfg := Default(network)
	content := `# Shielded Wallet Configuration
#
# Command-line flags override the values in this file.

# Network: mainnet (default) or testnet
# network = ` + string(network) + `

# Data directory (default: ~/.shieldwallet)
# datadir = ~/.shieldwallet

# ============================================================================
# Wallet
# ============================================================================

wallet.name = ` + cfg.Wallet.Name + `

# BIP-44 coin type (default: 611 on mainnet, 612 on testnet)
# wallet.cointype = ` + strconv.FormatUint(uint64(cfg.Wallet.CoinType), 10) + `

# Fail instead of warning when a change-address commit or rollback finds
# nothing staged
# wallet.strictstaging = false

# Background recovery interval for the watch command
wallet.pollinterval = ` + cfg.Wallet.PollInterval.String() + `

# Decimal places used to display and parse amounts
wallet.decimals = ` + strconv.Itoa(int(cfg.Wallet.Decimals)) + `

# ============================================================================
# Signer
# ============================================================================

signer.url = ` + cfg.Signer.URL + `
signer.timeout = ` + cfg.Signer.Timeout.String() + `
signer.probetimeout = ` + cfg.Signer.ProbeTimeout.String() + `

# ============================================================================
# Ledger Node
# ============================================================================

ledger.url = ` + cfg.Ledger.URL + `
ledger.timeout = ` + cfg.Ledger.Timeout.String() + `
# Maximum requests per second against the node (0 = unlimited)
ledger.maxrps = ` + strconv.Itoa(cfg.Ledger.MaxRPS) + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
