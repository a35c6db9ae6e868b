package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Network describes one supported chain environment. The viewer talks to
// exactly two of these; every fetch carries an explicit Network value rather
// than reading ambient global state.
type Network struct {
	Name       string `toml:"Name"`
	RPCURL     string `toml:"RPCURL"`
	Passphrase string `toml:"Passphrase"`
}

// LogConfig controls optional rotating-file log output.
type LogConfig struct {
	Path       string `toml:"Path"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// TelemetryConfig toggles the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// RateLimitConfig bounds inbound request rates per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Config captures runtime configuration for the escrow viewer service.
type Config struct {
	ListenAddress  string          `toml:"ListenAddress"`
	DefaultNetwork string          `toml:"DefaultNetwork"`
	Networks       []Network       `toml:"Networks"`
	Log            LogConfig       `toml:"Log"`
	Telemetry      TelemetryConfig `toml:"Telemetry"`
	RateLimit      RateLimitConfig `toml:"RateLimit"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists. Endpoint URLs may be overridden per network through
// ESCROWSCAN_RPC_URL_<NETWORK> environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if listen := strings.TrimSpace(os.Getenv("ESCROWSCAN_LISTEN")); listen != "" {
		cfg.ListenAddress = listen
	}
	for i := range cfg.Networks {
		key := "ESCROWSCAN_RPC_URL_" + strings.ToUpper(strings.TrimSpace(cfg.Networks[i].Name))
		if override := strings.TrimSpace(os.Getenv(key)); override != "" {
			cfg.Networks[i].RPCURL = override
		}
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if len(c.Networks) != 2 {
		return fmt.Errorf("config: exactly two networks must be defined, got %d", len(c.Networks))
	}
	seen := make(map[string]struct{}, len(c.Networks))
	for _, n := range c.Networks {
		name := strings.ToLower(strings.TrimSpace(n.Name))
		if name == "" {
			return fmt.Errorf("config: network name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("config: duplicate network %q", name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(n.RPCURL) == "" {
			return fmt.Errorf("config: network %q is missing an RPC URL", name)
		}
		if strings.TrimSpace(n.Passphrase) == "" {
			return fmt.Errorf("config: network %q is missing a passphrase", name)
		}
	}
	if strings.TrimSpace(c.DefaultNetwork) == "" {
		c.DefaultNetwork = c.Networks[0].Name
	}
	if _, ok := c.Network(c.DefaultNetwork); !ok {
		return fmt.Errorf("config: default network %q is not defined", c.DefaultNetwork)
	}
	return nil
}

// Network resolves a network definition by name (case-insensitive). An empty
// name resolves to the configured default.
func (c *Config) Network(name string) (Network, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		trimmed = strings.ToLower(strings.TrimSpace(c.DefaultNetwork))
	}
	for _, n := range c.Networks {
		if strings.ToLower(strings.TrimSpace(n.Name)) == trimmed {
			return n, true
		}
	}
	return Network{}, false
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:  ":8080",
		DefaultNetwork: "testnet",
		Networks: []Network{
			{
				Name:       "testnet",
				RPCURL:     "https://soroban-testnet.stellar.org",
				Passphrase: "Test SDF Network ; September 2015",
			},
			{
				Name:       "mainnet",
				RPCURL:     "https://soroban-rpc.mainnet.stellar.gateway.fm",
				Passphrase: "Public Global Stellar Network ; September 2015",
			},
		},
		Log: LogConfig{
			MaxSizeMB:  64,
			MaxBackups: 4,
			MaxAgeDays: 14,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 240,
			Burst:             60,
		},
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}
