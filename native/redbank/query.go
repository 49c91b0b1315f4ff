package redbank

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// UserAssetDebt is a user's debt in one market.
type UserAssetDebt struct {
	Asset        Asset        `json:"asset"`
	AmountScaled *uint256.Int `json:"amount_scaled"`
	Amount       *uint256.Int `json:"amount"`
}

// UserAssetCollateral lists an asset the user has enabled as collateral.
type UserAssetCollateral struct {
	Asset   Asset `json:"asset"`
	Enabled bool  `json:"enabled"`
}

// view runs fn against a read-only transaction that is always discarded.
func (e *Engine) view(fn func(st State, now uint64) error) error {
	if e == nil || e.backend == nil {
		return ErrNilState
	}
	tx, err := e.backend.Begin()
	if err != nil {
		return err
	}
	defer tx.Discard()
	return fn(tx, e.now())
}

func (e *Engine) QueryConfig() (*Config, error) {
	var out *Config
	err := e.view(func(st State, _ uint64) error {
		cfg, ok, err := st.Config()
		if err != nil {
			return err
		}
		if !ok {
			return ErrConfigMissing
		}
		out = cfg
		return nil
	})
	return out, err
}

// QueryMarket returns the stored market for asset.
func (e *Engine) QueryMarket(asset Asset) (*Market, error) {
	var out *Market
	err := e.view(func(st State, _ uint64) error {
		m, err := loadMarket(st, asset.Key())
		out = m
		return err
	})
	return out, err
}

// QueryMarkets returns every market in listing order.
func (e *Engine) QueryMarkets() ([]*Market, error) {
	var out []*Market
	err := e.view(func(st State, _ uint64) error {
		markets, err := allMarkets(st)
		out = markets
		return err
	})
	return out, err
}

func (e *Engine) QueryUncollateralizedLoanLimit(user crypto.Address, asset Asset) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(st State, _ uint64) error {
		if _, err := loadMarket(st, asset.Key()); err != nil {
			return err
		}
		limit, err := st.UncollateralizedLoanLimit(asset.Key(), user)
		out = limit
		return err
	})
	return out, err
}

// QueryUserDebt lists the user's debt in every market, including zeros.
func (e *Engine) QueryUserDebt(user crypto.Address) ([]UserAssetDebt, error) {
	var out []UserAssetDebt
	err := e.view(func(st State, now uint64) error {
		markets, err := allMarkets(st)
		if err != nil {
			return err
		}
		for _, m := range markets {
			entry := UserAssetDebt{Asset: m.Asset, AmountScaled: new(uint256.Int), Amount: new(uint256.Int)}
			d, ok, err := st.Debt(m.Asset.Key(), user)
			if err != nil {
				return err
			}
			if ok && d != nil && d.AmountScaled != nil {
				_, borrowIndex, err := ProjectedIndices(m, now)
				if err != nil {
					return err
				}
				entry.AmountScaled = d.AmountScaled
				if entry.Amount, err = Descale(d.AmountScaled, borrowIndex); err != nil {
					return err
				}
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

// QueryUserCollateral lists the assets the user has enabled as collateral.
func (e *Engine) QueryUserCollateral(user crypto.Address) ([]UserAssetCollateral, error) {
	var out []UserAssetCollateral
	err := e.view(func(st State, _ uint64) error {
		u, ok, err := st.User(user)
		if err != nil || !ok {
			return err
		}
		for _, index := range u.CollateralAssets.Indices() {
			key, found, err := st.MarketKeyByIndex(index)
			if err != nil {
				return err
			}
			if !found {
				return ErrMarketIndexMissing
			}
			m, err := loadMarket(st, key)
			if err != nil {
				return err
			}
			out = append(out, UserAssetCollateral{Asset: m.Asset, Enabled: true})
		}
		return nil
	})
	return out, err
}

func (e *Engine) QueryUserPosition(user crypto.Address) (*Position, error) {
	var out *Position
	err := e.view(func(st State, now uint64) error {
		u, ok, err := st.User(user)
		if err != nil {
			return err
		}
		if !ok {
			u = &User{}
		}
		pos, err := e.userPosition(st, user, u, now)
		out = pos
		return err
	})
	return out, err
}

// QueryScaledLiquidityAmount converts a nominal deposit into liquidity token
// units at the current projected index.
func (e *Engine) QueryScaledLiquidityAmount(asset Asset, amount *uint256.Int) (*uint256.Int, error) {
	return e.convert(asset, func(liquidityIndex, _ numeric.Decimal) (*uint256.Int, error) {
		return Scale(amount, liquidityIndex)
	})
}

func (e *Engine) QueryScaledDebtAmount(asset Asset, amount *uint256.Int) (*uint256.Int, error) {
	return e.convert(asset, func(_, borrowIndex numeric.Decimal) (*uint256.Int, error) {
		return Scale(amount, borrowIndex)
	})
}

func (e *Engine) QueryUnderlyingLiquidityAmount(asset Asset, scaled *uint256.Int) (*uint256.Int, error) {
	return e.convert(asset, func(liquidityIndex, _ numeric.Decimal) (*uint256.Int, error) {
		return Descale(scaled, liquidityIndex)
	})
}

func (e *Engine) QueryUnderlyingDebtAmount(asset Asset, scaled *uint256.Int) (*uint256.Int, error) {
	return e.convert(asset, func(_, borrowIndex numeric.Decimal) (*uint256.Int, error) {
		return Descale(scaled, borrowIndex)
	})
}

func (e *Engine) convert(asset Asset, fn func(liquidityIndex, borrowIndex numeric.Decimal) (*uint256.Int, error)) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(st State, now uint64) error {
		m, err := loadMarket(st, asset.Key())
		if err != nil {
			return err
		}
		liquidityIndex, borrowIndex, err := ProjectedIndices(m, now)
		if err != nil {
			return err
		}
		out, err = fn(liquidityIndex, borrowIndex)
		return err
	})
	return out, err
}

func loadMarket(st State, key string) (*Market, error) {
	m, ok, err := st.Market(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotInitialized, key)
	}
	return m, nil
}

func allMarkets(st State) ([]*Market, error) {
	global, err := st.GlobalState()
	if err != nil {
		return nil, err
	}
	out := make([]*Market, 0, global.MarketCount)
	for index := uint32(0); index < global.MarketCount; index++ {
		key, ok, err := st.MarketKeyByIndex(index)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrMarketIndexMissing, index)
		}
		m, err := loadMarket(st, key)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
