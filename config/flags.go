package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Flags holds parsed global command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	Testnet bool
	DataDir string
	Config  string

	// Wallet
	Wallet        string
	StrictStaging bool

	// Signer
	SignerURL     string
	SignerTimeout time.Duration

	// Ledger
	LedgerURL    string
	LedgerMaxRPS int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args: the subcommand and its own flags.
	Args []string

	// Explicitly-set flags (for false and zero overrides).
	SetStrictStaging bool
	SetLedgerMaxRPS  bool
	SetLogJSON       bool
}

// ParseFlags parses global flags from args (without the program name).
// Parsing stops at the first non-flag argument, which starts the
// subcommand.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("shieldwallet", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.BoolVar(&f.Testnet, "testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Wallet
	fs.StringVar(&f.Wallet, "wallet", "", "Wallet name")
	fs.StringVar(&f.Wallet, "w", "", "Wallet name (shorthand)")
	fs.BoolVar(&f.StrictStaging, "strict-staging", false, "Fail on commit or rollback with nothing staged")

	// Signer
	fs.StringVar(&f.SignerURL, "signer", "", "Signer service URL")
	fs.DurationVar(&f.SignerTimeout, "signer-timeout", 0, "Signer request timeout")

	// Ledger
	fs.StringVar(&f.LedgerURL, "ledger", "", "Ledger node JSON-RPC URL")
	fs.IntVar(&f.LedgerMaxRPS, "ledger-maxrps", 0, "Maximum ledger requests per second (0 = unlimited)")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if f.Testnet {
		f.Network = string(Testnet)
	}
	f.SetStrictStaging = isFlagSet(fs, "strict-staging")
	f.SetLedgerMaxRPS = isFlagSet(fs, "ledger-maxrps")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Wallet
	if f.Wallet != "" {
		cfg.Wallet.Name = f.Wallet
	}
	if f.SetStrictStaging {
		cfg.Wallet.StrictStaging = f.StrictStaging
	}

	// Signer
	if f.SignerURL != "" {
		cfg.Signer.URL = f.SignerURL
	}
	if f.SignerTimeout != 0 {
		cfg.Signer.Timeout = f.SignerTimeout
	}

	// Ledger
	if f.LedgerURL != "" {
		cfg.Ledger.URL = f.LedgerURL
	}
	if f.SetLedgerMaxRPS {
		cfg.Ledger.MaxRPS = f.LedgerMaxRPS
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the global usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, `Shielded Wallet - private asset wallet driving an external signer

Usage:
  shieldwallet [global options] <command> [command options]
  shieldwallet --help

Global Options:
  --help, -h          Show this help message
  --version           Show version information
  --network           Network type: mainnet (default) or testnet
  --testnet           Shorthand for --network=testnet
  --datadir           Data directory (default: ~/.shieldwallet)
  --config, -c        Config file path (default: <datadir>/shieldwallet.conf)
  --wallet, -w        Wallet name (default: default)
  --strict-staging    Fail on change-address commit/rollback with nothing staged
  --signer            Signer service URL (default: http://127.0.0.1:29987)
  --signer-timeout    Signer request timeout (default: 5m)
  --ledger            Ledger node URL (default: http://127.0.0.1:9933)
  --ledger-maxrps     Maximum ledger requests per second (default: 20)
  --log-level         Log level: trace, debug, info, warn, error (default: info)
  --log-file          Log file path (default: stderr only)
  --log-json          Output logs as JSON

Commands:
  status                          Show signer and ledger status
  recover                         Scan the ledger for new notes
  balance --asset <id>            Show the spendable balance of an asset
  notes [--asset <id>]            List stored notes
  address [--new]                 Show receiving addresses, or derive a new one
  mint --asset <id> --amount <n>  Build a mint of private notes
  send --asset <id> --to <addr> --amount <n>
                                  Build a private transfer
  reclaim --asset <id> --amount <n>
                                  Build a reclaim to the public balance
  reset [--yes]                   Clear all wallet state and rescan later
  watch                           Recover in the background until interrupted

Build commands print the payloads to submit and then ask whether the
submission succeeded. Pass --yes to confirm without a prompt.
`)
}

// Load builds the configuration with the following precedence:
// 1. Default values for the network
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
//
// The network is taken from the flags, then the config file, so the
// defaults match the network the file and flags are applied over.
func Load(flags *Flags) (*Config, error) {
	dataDir := flags.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	configPath := flags.Config
	if configPath == "" {
		configPath = (&Config{DataDir: dataDir}).ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	network := Mainnet
	selected := flags.Network
	if selected == "" {
		selected = fileValues["network"]
	}
	if strings.ToLower(selected) == string(Testnet) {
		network = Testnet
	}

	cfg := Default(network)
	cfg.DataDir = dataDir
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}
	ApplyFlags(cfg, flags)
	if cfg.Log.File != "" && !filepath.IsAbs(cfg.Log.File) {
		cfg.Log.File = filepath.Join(cfg.LogsDir(), cfg.Log.File)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. It is safe to call on every start.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.WalletDBDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
