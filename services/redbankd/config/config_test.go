package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	treasury := crypto.ModuleAddress("treasury")
	path := writeConfig(t, `
genesis: " genesis.toml "
auth:
  hmac_secret: "`+secret+`"
roles:
  treasury: "`+treasury.String()+`"
prices:
  " uusd ": " 1 "
  uluna: "2.5"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != defaultListen || cfg.DataDir != defaultDataDir || cfg.Contract != defaultContract {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.GenesisPath != "genesis.toml" {
		t.Fatalf("unexpected genesis path %q", cfg.GenesisPath)
	}
	if cfg.Auth.ClockSkew != 2*time.Minute || cfg.ShutdownGrace != 5*time.Second {
		t.Fatalf("unexpected durations: %+v", cfg)
	}

	roles, err := cfg.Roles.Registry()
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if len(roles) != 1 || roles[redbank.RoleTreasury] != treasury {
		t.Fatalf("unexpected roles: %v", roles)
	}

	prices, err := cfg.InitialPrices()
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if len(prices) != 2 || prices[0].Asset.Reference != "uluna" || prices[0].Price.String() != "2.5" {
		t.Fatalf("unexpected prices: %+v", prices)
	}
	if prices[1].Asset != redbank.NativeAsset("uusd") || prices[1].Price.String() != "1" {
		t.Fatalf("unexpected prices: %+v", prices)
	}
}

func TestTokenPriceKeys(t *testing.T) {
	token := crypto.ModuleAddress("cw20")
	path := writeConfig(t, `
genesis: genesis.toml
auth:
  hmac_secret: "`+secret+`"
prices:
  "`+token.String()+`": "0.5"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	prices, _ := cfg.InitialPrices()
	if len(prices) != 1 || prices[0].Asset != redbank.TokenAsset(token) {
		t.Fatalf("expected token asset, got %+v", prices)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing genesis": `
auth:
  hmac_secret: "` + secret + `"
`,
		"short secret": `
genesis: genesis.toml
auth:
  hmac_secret: short
`,
		"bad role": `
genesis: genesis.toml
auth:
  hmac_secret: "` + secret + `"
roles:
  staking: not-an-address
`,
		"bad price": `
genesis: genesis.toml
auth:
  hmac_secret: "` + secret + `"
prices:
  uusd: "-1"
`,
		"unknown field": `
genesis: genesis.toml
listen_addr: ":1"
auth:
  hmac_secret: "` + secret + `"
`,
		"negative rate": `
genesis: genesis.toml
auth:
  hmac_secret: "` + secret + `"
rate_limit:
  burst: -1
`,
	}
	for name, body := range cases {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
