package redbank

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// AssetParams are the owner-controlled market parameters. Nil fields are
// left unchanged on update; on listing every field except InitialBorrowRate
// is required.
type AssetParams struct {
	InitialBorrowRate    *numeric.Decimal      `json:"initial_borrow_rate,omitempty" toml:"initial_borrow_rate"`
	ReserveFactor        *numeric.Decimal      `json:"reserve_factor,omitempty" toml:"reserve_factor"`
	MaxLoanToValue       *numeric.Decimal      `json:"max_loan_to_value,omitempty" toml:"max_loan_to_value"`
	MaintenanceMargin    *numeric.Decimal      `json:"maintenance_margin,omitempty" toml:"maintenance_margin"`
	LiquidationBonus     *numeric.Decimal      `json:"liquidation_bonus,omitempty" toml:"liquidation_bonus"`
	InterestRateStrategy *InterestRateStrategy `json:"interest_rate_strategy,omitempty" toml:"interest_rate_strategy"`
}

func (p AssetParams) complete() error {
	switch {
	case p.ReserveFactor == nil:
		return fmt.Errorf("%w: reserve_factor required", ErrInvalidParams)
	case p.MaxLoanToValue == nil:
		return fmt.Errorf("%w: max_loan_to_value required", ErrInvalidParams)
	case p.MaintenanceMargin == nil:
		return fmt.Errorf("%w: maintenance_margin required", ErrInvalidParams)
	case p.LiquidationBonus == nil:
		return fmt.Errorf("%w: liquidation_bonus required", ErrInvalidParams)
	case p.InterestRateStrategy == nil:
		return fmt.Errorf("%w: interest_rate_strategy required", ErrInvalidParams)
	}
	return nil
}

// apply merges the non-nil fields into m. A replaced strategy starts with a
// fresh dynamic state.
func (p AssetParams) apply(m *Market, now uint64) {
	if p.ReserveFactor != nil {
		m.ReserveFactor = *p.ReserveFactor
	}
	if p.MaxLoanToValue != nil {
		m.MaxLoanToValue = *p.MaxLoanToValue
	}
	if p.MaintenanceMargin != nil {
		m.MaintenanceMargin = *p.MaintenanceMargin
	}
	if p.LiquidationBonus != nil {
		m.LiquidationBonus = *p.LiquidationBonus
	}
	if p.InterestRateStrategy != nil {
		m.InterestRateStrategy = p.InterestRateStrategy.Clone()
		m.InterestRateStrategy.State = DynamicState{BorrowRateLastUpdated: now}
	}
}

// InitAsset lists a new market. The market waits for its liquidity token to
// call back before it accepts deposits.
func (e *Engine) InitAsset(sender crypto.Address, asset Asset, params AssetParams) ([]Effect, error) {
	return e.execute("init_asset", func(a *action) error {
		if err := a.requireOwner(sender); err != nil {
			return err
		}
		return e.initAsset(a, asset, params)
	})
}

func (e *Engine) initAsset(a *action, asset Asset, params AssetParams) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if _, exists, err := a.tx.Market(asset.Key()); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s", ErrAssetAlreadyInitialized, asset)
	}
	global, err := a.tx.GlobalState()
	if err != nil {
		return err
	}
	if global.MarketCount >= a.config.MarketCapacity || global.MarketCount >= BitmapCapacity {
		return ErrMarketCapacityReached
	}
	if err := params.complete(); err != nil {
		return err
	}

	market := &Market{
		Index:                      global.MarketCount,
		Asset:                      asset,
		Status:                     MarketAwaitingTokenCallback,
		LiquidityIndex:             numeric.OneDecimal(),
		BorrowIndex:                numeric.OneDecimal(),
		DebtTotalScaled:            new(uint256.Int),
		ProtocolIncomeToDistribute: new(uint256.Int),
		InterestsLastUpdated:       a.now,
	}
	if params.InitialBorrowRate != nil {
		market.BorrowRate = *params.InitialBorrowRate
	}
	params.apply(market, a.now)
	if err := market.Validate(); err != nil {
		return err
	}
	if err := a.putMarket(market); err != nil {
		return err
	}
	global.MarketCount++
	if err := a.tx.PutGlobalState(global); err != nil {
		return err
	}
	a.effect(instantiateEffect(asset))
	a.emit(newInitAssetEvent(market))
	return nil
}

// UpdateAsset changes a listed market's parameters. Interest is accrued
// under the old parameters and rates are refreshed under the new ones.
func (e *Engine) UpdateAsset(sender crypto.Address, asset Asset, params AssetParams) ([]Effect, error) {
	return e.execute("update_asset", func(a *action) error {
		if err := a.requireOwner(sender); err != nil {
			return err
		}
		market, err := a.market(asset)
		if err != nil {
			return err
		}
		if err := AccrueInterest(market, a.now); err != nil {
			return err
		}
		updated := market.Clone()
		params.apply(updated, a.now)
		if err := updated.Validate(); err != nil {
			return err
		}
		if err := e.updateInterestRates(updated, a.now, new(uint256.Int)); err != nil {
			return err
		}
		if err := a.putMarket(updated); err != nil {
			return err
		}
		a.emit(newRecord(EventTypeUpdateAsset, asset, nil))
		a.emit(newInterestUpdatedEvent(updated))
		return nil
	})
}

// InitAssetTokenCallback activates a market. The caller is the liquidity
// token instantiated for it; only the first callback is accepted.
func (e *Engine) InitAssetTokenCallback(caller crypto.Address, asset Asset) ([]Effect, error) {
	return e.execute("init_asset_token_callback", func(a *action) error {
		market, err := a.market(asset)
		if err != nil {
			return err
		}
		if market.Status != MarketAwaitingTokenCallback {
			return ErrTokenAlreadySet
		}
		if caller.IsZero() {
			return fmt.Errorf("%w: zero liquidity token address", ErrInvalidAsset)
		}
		if _, taken, err := a.tx.MarketKeyByToken(caller); err != nil {
			return err
		} else if taken {
			return ErrTokenAlreadySet
		}
		market.LiquidityToken = caller
		market.Status = MarketActive
		if err := a.putMarket(market); err != nil {
			return err
		}
		a.emit(newMarketActivatedEvent(market))
		return nil
	})
}

// ConfigUpdate is a partial Config; nil fields keep their value.
type ConfigUpdate struct {
	Owner              *crypto.Address  `json:"owner,omitempty"`
	CloseFactor        *numeric.Decimal `json:"close_factor,omitempty"`
	SafetyFundFeeShare *numeric.Decimal `json:"safety_fund_fee_share,omitempty"`
	TreasuryFeeShare   *numeric.Decimal `json:"treasury_fee_share,omitempty"`
	MarketCapacity     *uint32          `json:"market_capacity,omitempty"`
}

func (e *Engine) UpdateConfig(sender crypto.Address, update ConfigUpdate) ([]Effect, error) {
	return e.execute("update_config", func(a *action) error {
		if err := a.requireOwner(sender); err != nil {
			return err
		}
		cfg := *a.config
		if update.Owner != nil {
			cfg.Owner = *update.Owner
		}
		if update.CloseFactor != nil {
			cfg.CloseFactor = *update.CloseFactor
		}
		if update.SafetyFundFeeShare != nil {
			cfg.SafetyFundFeeShare = *update.SafetyFundFeeShare
		}
		if update.TreasuryFeeShare != nil {
			cfg.TreasuryFeeShare = *update.TreasuryFeeShare
		}
		if update.MarketCapacity != nil {
			cfg.MarketCapacity = *update.MarketCapacity
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		global, err := a.tx.GlobalState()
		if err != nil {
			return err
		}
		if cfg.MarketCapacity < global.MarketCount {
			return fmt.Errorf("%w: market_capacity below listed market count %d", ErrInvalidConfig, global.MarketCount)
		}
		if err := a.tx.PutConfig(&cfg); err != nil {
			return err
		}
		a.config = &cfg
		a.emit(newRecord(EventTypeUpdateConfig, Asset{}, map[string]string{"owner": cfg.Owner.String()}))
		return nil
	})
}

// UpdateUncollateralizedLoanLimit sets the cap up to which user may borrow
// asset without collateral. A nonzero limit also exempts the debt from
// liquidation and from the health factor denominator.
func (e *Engine) UpdateUncollateralizedLoanLimit(sender, user crypto.Address, asset Asset, limit *uint256.Int) ([]Effect, error) {
	return e.execute("update_uncollateralized_loan_limit", func(a *action) error {
		if err := a.requireOwner(sender); err != nil {
			return err
		}
		if _, err := a.market(asset); err != nil {
			return err
		}
		key := asset.Key()
		value := numeric.CloneInt(limit)
		if err := a.tx.PutUncollateralizedLoanLimit(key, user, value); err != nil {
			return err
		}
		debt, err := a.debt(key, user)
		if err != nil {
			return err
		}
		debt.Uncollateralized = !value.IsZero()
		if err := a.tx.PutDebt(key, user, debt); err != nil {
			return err
		}
		a.emit(newRecord(EventTypeUncollateralizedLimit, asset, map[string]string{
			"user":  user.String(),
			"limit": formatAmount(value),
		}))
		return nil
	})
}
