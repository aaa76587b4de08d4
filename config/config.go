package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// AssetConfig seeds a registry entry at startup. Mode is "stable" or
// "oracle"; OracleRef names the price feed for oracle-priced assets.
type AssetConfig struct {
	Address   string `toml:"Address"`
	Precision uint8  `toml:"Precision"`
	Mode      string `toml:"Mode"`
	OracleRef string `toml:"OracleRef,omitempty"`
}

// FeedConfig seeds the manual price oracle. Price is a decimal string at
// Decimals fractional digits.
type FeedConfig struct {
	Ref      string `toml:"Ref"`
	Price    string `toml:"Price"`
	Decimals uint8  `toml:"Decimals"`
}

type Config struct {
	RPCAddress      string        `toml:"RPCAddress"`
	DataDir         string        `toml:"DataDir"`
	NetworkName     string        `toml:"NetworkName"`
	Environment     string        `toml:"Environment"`
	OwnerAddress    string        `toml:"OwnerAddress"`
	PriceMaxAgeSecs int64         `toml:"PriceMaxAgeSecs"`
	MinConsume      string        `toml:"MinConsume,omitempty"`
	Relayers        []string      `toml:"Relayers"`
	Assets          []AssetConfig `toml:"Assets,omitempty"`
	Feeds           []FeedConfig  `toml:"Feeds,omitempty"`
	MetricsEnabled  bool          `toml:"MetricsEnabled"`
	LogRequests     bool          `toml:"LogRequests"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir(path)
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "creditnet-local"
	}
	if cfg.PriceMaxAgeSecs <= 0 {
		cfg.PriceMaxAgeSecs = 3600
	}
	if cfg.Relayers == nil {
		cfg.Relayers = []string{}
	}
	if strings.TrimSpace(cfg.OwnerAddress) == "" {
		return nil, fmt.Errorf("config file %s is missing OwnerAddress", path)
	}
	if _, err := ParseAddress(cfg.OwnerAddress); err != nil {
		return nil, fmt.Errorf("config file %s: invalid OwnerAddress: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:      "127.0.0.1:8645",
		DataDir:         defaultDataDir(path),
		NetworkName:     "creditnet-local",
		Environment:     "local",
		OwnerAddress:    "0x" + strings.Repeat("00", 19) + "01",
		PriceMaxAgeSecs: 3600,
		Relayers:        []string{},
		MetricsEnabled:  true,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultDataDir(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "data")
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: want %d bytes, got %d", s, len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}
