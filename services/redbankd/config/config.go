package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
)

const (
	defaultListen   = ":8090"
	defaultDataDir  = "data/redbank"
	defaultContract = "redbank"
)

// Config captures the runtime settings for the red bank daemon.
type Config struct {
	ListenAddress string            `yaml:"listen"`
	DataDir       string            `yaml:"data_dir"`
	GenesisPath   string            `yaml:"genesis"`
	Contract      string            `yaml:"contract"`
	Paused        bool              `yaml:"paused"`
	Log           LogConfig         `yaml:"log"`
	RateLimit     RateLimitConfig   `yaml:"rate_limit"`
	Auth          AuthConfig        `yaml:"auth"`
	Roles         RolesConfig       `yaml:"roles"`
	Prices        map[string]string `yaml:"prices"`
	ShutdownGrace time.Duration     `yaml:"shutdown_grace"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// RateLimitConfig bounds requests per client IP. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// AuthConfig configures HMAC-signed bearer tokens. The token subject is the
// bech32 address the request acts for.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RolesConfig lists the bech32 addresses protocol income is paid to.
type RolesConfig struct {
	SafetyFund string `yaml:"safety_fund"`
	Treasury   string `yaml:"treasury"`
	Staking    string `yaml:"staking"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	cfg.Contract = strings.TrimSpace(cfg.Contract)
	if cfg.Contract == "" {
		cfg.Contract = defaultContract
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	cfg.Roles.SafetyFund = strings.TrimSpace(cfg.Roles.SafetyFund)
	cfg.Roles.Treasury = strings.TrimSpace(cfg.Roles.Treasury)
	cfg.Roles.Staking = strings.TrimSpace(cfg.Roles.Staking)
	if len(cfg.Prices) > 0 {
		trimmed := make(map[string]string, len(cfg.Prices))
		for ref, price := range cfg.Prices {
			trimmed[strings.TrimSpace(ref)] = strings.TrimSpace(price)
		}
		cfg.Prices = trimmed
	}
}

func (cfg *Config) validate() error {
	if cfg.GenesisPath == "" {
		return fmt.Errorf("genesis path required")
	}
	if len(cfg.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth: hmac_secret must be at least 32 bytes")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must be non-negative")
	}
	if _, err := cfg.Roles.Registry(); err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	if _, err := cfg.InitialPrices(); err != nil {
		return fmt.Errorf("prices: %w", err)
	}
	return nil
}

// Registry decodes the configured role addresses. Unset roles are omitted.
func (r RolesConfig) Registry() (map[redbank.Role]crypto.Address, error) {
	out := make(map[redbank.Role]crypto.Address, 3)
	for role, raw := range map[redbank.Role]string{
		redbank.RoleSafetyFund: r.SafetyFund,
		redbank.RoleTreasury:   r.Treasury,
		redbank.RoleStaking:    r.Staking,
	} {
		if raw == "" {
			continue
		}
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		out[role] = addr
	}
	return out, nil
}

// PriceEntry is one seeded oracle quote.
type PriceEntry struct {
	Asset redbank.Asset
	Price numeric.Decimal
}

// InitialPrices parses the prices table, keyed by denom or token address,
// in a stable order.
func (cfg Config) InitialPrices() ([]PriceEntry, error) {
	refs := make([]string, 0, len(cfg.Prices))
	for ref := range cfg.Prices {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	out := make([]PriceEntry, 0, len(refs))
	for _, ref := range refs {
		asset, err := redbank.ParseAsset(ref)
		if err != nil {
			return nil, err
		}
		price, err := numeric.ParseDecimal(cfg.Prices[ref])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		out = append(out, PriceEntry{Asset: asset, Price: price})
	}
	return out, nil
}
