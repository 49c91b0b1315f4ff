package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// UpdateCollateralStatus enables or disables asset as collateral for addr.
// Enabling requires a liquidity token balance; disabling is always allowed
// and does not re-check the health factor.
func (e *Engine) UpdateCollateralStatus(addr crypto.Address, asset Asset, enable bool) ([]Effect, error) {
	return e.execute("update_collateral", func(a *action) error {
		market, err := a.activeMarket(asset)
		if err != nil {
			return err
		}
		user, err := a.user(addr)
		if err != nil {
			return err
		}
		enabled, err := user.CollateralAssets.Get(market.Index)
		if err != nil {
			return err
		}
		switch {
		case enabled && !enable:
			if err := user.CollateralAssets.Unset(market.Index); err != nil {
				return err
			}
		case !enabled && enable:
			balance, err := e.tokenBalance(market, addr)
			if err != nil {
				return err
			}
			if balance.IsZero() {
				return ErrNoCollateralBalance
			}
			if err := user.CollateralAssets.Set(market.Index); err != nil {
				return err
			}
		default:
			return nil
		}
		if err := a.tx.PutUser(addr, user); err != nil {
			return err
		}
		a.emit(newCollateralEvent(asset, addr, enable))
		return nil
	})
}

// FinalizeLiquidityTokenTransfer is called by a liquidity token after it has
// moved amount from one holder to another. A sender that has the market
// enabled as collateral must remain healthy; collateral flags follow the
// balances.
func (e *Engine) FinalizeLiquidityTokenTransfer(token, from, to crypto.Address, fromPrevious, toPrevious, amount *uint256.Int) ([]Effect, error) {
	return e.execute("finalize_liquidity_token_transfer", func(a *action) error {
		key, ok, err := a.tx.MarketKeyByToken(token)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownLiquidityToken
		}
		market, ok, err := a.tx.Market(key)
		if err != nil {
			return err
		}
		if !ok || !market.IsActive() {
			return ErrUnknownLiquidityToken
		}

		fromUser, err := a.user(from)
		if err != nil {
			return err
		}
		enabled, err := fromUser.CollateralAssets.Get(market.Index)
		if err != nil {
			return err
		}
		if enabled {
			pos, err := e.userPosition(a.tx, from, fromUser, a.now)
			if err != nil {
				return err
			}
			if pos.Health.Liquidatable() {
				return ErrHealthFactorBelowOne
			}
		}
		if from == to {
			return nil
		}

		remaining, err := numeric.CheckedSub(fromPrevious, amount)
		if err != nil {
			return ErrInvalidAmount
		}
		if remaining.IsZero() {
			if err := fromUser.CollateralAssets.Unset(market.Index); err != nil {
				return err
			}
			if err := a.tx.PutUser(from, fromUser); err != nil {
				return err
			}
		}
		if numeric.IsZeroInt(toPrevious) && !numeric.IsZeroInt(amount) {
			toUser, err := a.user(to)
			if err != nil {
				return err
			}
			if err := toUser.CollateralAssets.Set(market.Index); err != nil {
				return err
			}
			if err := a.tx.PutUser(to, toUser); err != nil {
				return err
			}
		}
		a.emit(newRecord(EventTypeLiquidityTokenTransfer, market.Asset, map[string]string{
			"from":   from.String(),
			"to":     to.String(),
			"amount": formatAmount(amount),
		}))
		return nil
	})
}
