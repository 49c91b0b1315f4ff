package redbank

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Genesis is the initial module configuration and the markets listed at
// start-up.
type Genesis struct {
	Config  Config          `toml:"config"`
	Markets []MarketListing `toml:"markets"`
}

// MarketListing lists one asset with its parameters.
type MarketListing struct {
	Asset  Asset       `toml:"asset"`
	Params AssetParams `toml:"params"`
}

// LoadGenesis decodes a TOML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	var g Genesis
	meta, err := toml.DecodeFile(path, &g)
	if err != nil {
		return nil, fmt.Errorf("redbank: decode genesis %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("redbank: unknown genesis keys %v", undecoded)
	}
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// InitGenesis stores the config and lists every market in g. It fails when
// the module already has a config.
func (e *Engine) InitGenesis(g *Genesis) ([]Effect, error) {
	if g == nil {
		return nil, ErrInvalidConfig
	}
	effects, err := e.run("init_genesis", false, func(a *action) error {
		if a.config != nil {
			return fmt.Errorf("%w: genesis already applied", ErrInvalidConfig)
		}
		cfg := g.Config
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := a.tx.PutConfig(&cfg); err != nil {
			return err
		}
		a.config = &cfg
		for _, listing := range g.Markets {
			if err := e.initAsset(a, listing.Asset, listing.Params); err != nil {
				return fmt.Errorf("list %s: %w", listing.Asset, err)
			}
		}
		return nil
	})
	return effects, err
}
