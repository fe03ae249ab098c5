package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConf(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault_Networks(t *testing.T) {
	main := Default(Mainnet)
	if main.Wallet.CoinType != 611 || main.Network != Mainnet {
		t.Errorf("mainnet defaults = %+v", main.Wallet)
	}
	test := Default(Testnet)
	if test.Wallet.CoinType != 612 || test.Network != Testnet {
		t.Errorf("testnet defaults = %+v", test.Wallet)
	}
	if main.Signer.ProbeTimeout != 500*time.Millisecond || main.Signer.Timeout != 5*time.Minute {
		t.Errorf("signer defaults = %+v", main.Signer)
	}
	for _, cfg := range []*Config{main, test} {
		if err := Validate(cfg); err != nil {
			t.Errorf("Validate(%s defaults) error: %v", cfg.Network, err)
		}
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := &Config{Network: Testnet, DataDir: "/data"}
	if got := cfg.WalletDBDir(); got != filepath.Join("/data", "testnet", "wallets") {
		t.Errorf("WalletDBDir() = %s", got)
	}
	if got := cfg.ConfigFile(); got != filepath.Join("/data", "shieldwallet.conf") {
		t.Errorf("ConfigFile() = %s", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")
	writeConf(t, path, `# comment
wallet.name = "alice"

signer.url='http://10.0.0.1:29987'
log.json = yes
`)
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if values["wallet.name"] != "alice" {
		t.Errorf("wallet.name = %q", values["wallet.name"])
	}
	if values["signer.url"] != "http://10.0.0.1:29987" {
		t.Errorf("signer.url = %q", values["signer.url"])
	}
	if len(values) != 3 {
		t.Errorf("got %d values, want 3", len(values))
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil || len(values) != 0 {
		t.Errorf("LoadFile(missing) = %v, %v", values, err)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	writeConf(t, path, "network = mainnet\njust words\n")
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 error, got %v", err)
	}
}

func TestApplyFileConfig(t *testing.T) {
	cfg := DefaultMainnet()
	err := ApplyFileConfig(cfg, map[string]string{
		"wallet.cointype":      "612",
		"wallet.strictstaging": "true",
		"wallet.pollinterval":  "1m",
		"wallet.decimals":      "6",
		"signer.timeout":       "90s",
		"signer.probetimeout":  "250ms",
		"ledger.url":           "https://node.example:443",
		"ledger.maxrps":        "0",
		"log.level":            "debug",
		"some.future.key":      "ignored",
	})
	if err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}
	if cfg.Wallet.CoinType != 612 || !cfg.Wallet.StrictStaging || cfg.Wallet.PollInterval != time.Minute || cfg.Wallet.Decimals != 6 {
		t.Errorf("wallet = %+v", cfg.Wallet)
	}
	if cfg.Signer.Timeout != 90*time.Second || cfg.Signer.ProbeTimeout != 250*time.Millisecond {
		t.Errorf("signer = %+v", cfg.Signer)
	}
	if cfg.Ledger.URL != "https://node.example:443" || cfg.Ledger.MaxRPS != 0 {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %s", cfg.Log.Level)
	}
}

func TestApplyFileConfig_BadValues(t *testing.T) {
	for key, value := range map[string]string{
		"wallet.cointype":     "-1",
		"wallet.pollinterval": "soon",
		"signer.timeout":      "5",
		"ledger.maxrps":       "many",
	} {
		if err := ApplyFileConfig(DefaultMainnet(), map[string]string{key: value}); err == nil {
			t.Errorf("%s = %q: expected error", key, value)
		}
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{"--testnet", "--wallet", "alice", "--log-json=false", "send", "--to", "x"})
	if err != nil {
		t.Fatalf("ParseFlags() error: %v", err)
	}
	if f.Network != "testnet" || f.Wallet != "alice" {
		t.Errorf("flags = %+v", f)
	}
	if !f.SetLogJSON || f.LogJSON {
		t.Error("explicit --log-json=false not recorded")
	}
	if f.SetLedgerMaxRPS {
		t.Error("ledger-maxrps reported set")
	}
	if strings.Join(f.Args, " ") != "send --to x" {
		t.Errorf("Args = %v", f.Args)
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	if _, err := ParseFlags([]string{"--bogus"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestLoad_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	f, _ := ParseFlags([]string{"--datadir", dir})
	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != Mainnet || cfg.DataDir != dir {
		t.Errorf("cfg = %s %s", cfg.Network, cfg.DataDir)
	}
	for _, p := range []string{cfg.WalletDBDir(), cfg.LogsDir(), cfg.ConfigFile()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not created: %v", p, err)
		}
	}

	// The generated file loads cleanly.
	again, err := Load(f)
	if err != nil {
		t.Fatalf("second Load() error: %v", err)
	}
	if again.Signer.Timeout != DefaultMainnet().Signer.Timeout || again.Wallet.PollInterval != DefaultMainnet().Wallet.PollInterval {
		t.Errorf("generated file changed defaults: %+v %+v", again.Signer, again.Wallet)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeConf(t, filepath.Join(dir, "shieldwallet.conf"), `network = testnet
signer.url = http://signer.local:1
ledger.maxrps = 5
wallet.name = bob
`)
	f, err := ParseFlags([]string{"--datadir", dir, "--signer", "http://other.local:2", "--ledger-maxrps", "0"})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Network != Testnet || cfg.Wallet.CoinType != 612 {
		t.Errorf("network from file not applied: %s cointype %d", cfg.Network, cfg.Wallet.CoinType)
	}
	if cfg.Wallet.Name != "bob" {
		t.Errorf("wallet.name = %s, want bob", cfg.Wallet.Name)
	}
	if cfg.Signer.URL != "http://other.local:2" {
		t.Errorf("signer.url = %s, want flag value", cfg.Signer.URL)
	}
	if cfg.Ledger.MaxRPS != 0 {
		t.Errorf("ledger.maxrps = %d, want explicit flag 0", cfg.Ledger.MaxRPS)
	}

	f, _ = ParseFlags([]string{"--datadir", dir, "--network", "mainnet"})
	cfg, err = Load(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Network != Mainnet || cfg.Wallet.CoinType != 611 {
		t.Errorf("flag network not applied: %s cointype %d", cfg.Network, cfg.Wallet.CoinType)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeConf(t, filepath.Join(dir, "shieldwallet.conf"), "signer.url = ftp://nope\n")
	f, _ := ParseFlags([]string{"--datadir", dir})
	if _, err := Load(f); err == nil || !strings.Contains(err.Error(), "signer.url") {
		t.Errorf("expected signer.url error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"network", func(c *Config) { c.Network = "devnet" }, "network"},
		{"datadir", func(c *Config) { c.DataDir = " " }, "datadir"},
		{"wallet name", func(c *Config) { c.Wallet.Name = "" }, "wallet.name"},
		{"wallet path", func(c *Config) { c.Wallet.Name = "../x" }, "wallet.name"},
		{"cointype", func(c *Config) { c.Wallet.CoinType = 1 << 31 }, "wallet.cointype"},
		{"poll", func(c *Config) { c.Wallet.PollInterval = 0 }, "wallet.pollinterval"},
		{"decimals", func(c *Config) { c.Wallet.Decimals = 19 }, "wallet.decimals"},
		{"signer scheme", func(c *Config) { c.Signer.URL = "tcp://x:1" }, "signer.url"},
		{"signer host", func(c *Config) { c.Signer.URL = "http://" }, "signer.url"},
		{"signer timeout", func(c *Config) { c.Signer.Timeout = -time.Second }, "signer.timeout"},
		{"probe timeout", func(c *Config) { c.Signer.ProbeTimeout = 0 }, "signer.probetimeout"},
		{"ledger url", func(c *Config) { c.Ledger.URL = "" }, "ledger.url"},
		{"ledger timeout", func(c *Config) { c.Ledger.Timeout = 0 }, "ledger.timeout"},
		{"ledger rps", func(c *Config) { c.Ledger.MaxRPS = -1 }, "ledger.maxrps"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMainnet()
			cfg.DataDir = "/tmp/x"
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.want)
			}
		})
	}
	if err := Validate(nil); err == nil {
		t.Error("Validate(nil) should fail")
	}
}

func TestLoad_RelativeLogFile(t *testing.T) {
	dir := t.TempDir()
	f, err := ParseFlags([]string{"--datadir", dir, "--testnet", "--log-file", "wallet.log"})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if want := filepath.Join(dir, "logs", "wallet.log"); cfg.Log.File != want {
		t.Errorf("log.file = %s, want %s", cfg.Log.File, want)
	}
}
