package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// Withdraw burns the withdrawer's liquidity tokens and pays out the
// underlying to recipient (the withdrawer when zero). A nil amount withdraws
// the full balance. Withdrawing enabled collateral while borrowing must leave
// the health factor at or above one.
func (e *Engine) Withdraw(withdrawer crypto.Address, asset Asset, amount *uint256.Int, recipient crypto.Address) ([]Effect, error) {
	return e.execute("withdraw", func(a *action) error {
		market, err := a.activeMarket(asset)
		if err != nil {
			return err
		}
		if err := AccrueInterest(market, a.now); err != nil {
			return err
		}
		balanceScaled, err := e.tokenBalance(market, withdrawer)
		if err != nil {
			return err
		}
		if balanceScaled.IsZero() {
			return ErrNoBalance
		}

		var scaled, nominal *uint256.Int
		if amount == nil {
			scaled = balanceScaled
			if nominal, err = Descale(balanceScaled, market.LiquidityIndex); err != nil {
				return err
			}
		} else {
			if amount.IsZero() {
				return ErrInvalidWithdrawAmount
			}
			withdrawable, err := Descale(balanceScaled, market.LiquidityIndex)
			if err != nil {
				return err
			}
			if amount.Gt(withdrawable) {
				return ErrInvalidWithdrawAmount
			}
			if amount.Eq(withdrawable) {
				scaled = balanceScaled
			} else {
				if scaled, err = ScaleCeil(amount, market.LiquidityIndex); err != nil {
					return err
				}
				scaled = numeric.MinInt(scaled, balanceScaled)
			}
			nominal = numeric.CloneInt(amount)
		}

		user, err := a.user(withdrawer)
		if err != nil {
			return err
		}
		enabled, err := user.CollateralAssets.Get(market.Index)
		if err != nil {
			return err
		}
		if enabled && !user.BorrowedAssets.IsZero() {
			if err := e.checkWithdrawHealth(a, withdrawer, user, market, nominal); err != nil {
				return err
			}
		}
		if enabled && scaled.Eq(balanceScaled) {
			if err := user.CollateralAssets.Unset(market.Index); err != nil {
				return err
			}
			if err := a.tx.PutUser(withdrawer, user); err != nil {
				return err
			}
		}

		if err := e.updateInterestRates(market, a.now, nominal); err != nil {
			return err
		}
		if err := a.putMarket(market); err != nil {
			return err
		}

		to := pick(recipient, withdrawer)
		a.effect(
			burnEffect(market, withdrawer, scaled),
			transferEffect(asset, e.contract, to, nominal),
		)
		a.emit(newUserAmountEvent(EventTypeWithdraw, asset, withdrawer, nominal, map[string]string{
			"recipient":    to.String(),
			"amountScaled": formatAmount(scaled),
		}))
		a.emit(newInterestUpdatedEvent(market))
		return nil
	})
}

// checkWithdrawHealth evaluates the health factor as if nominal had already
// left the user's collateral.
func (e *Engine) checkWithdrawHealth(a *action, addr crypto.Address, user *User, market *Market, nominal *uint256.Int) error {
	pos, err := e.userPosition(a.tx, addr, user, a.now)
	if err != nil {
		return err
	}
	if pos.TotalCollateralizedDebt.IsZero() {
		return nil
	}
	ap, ok := pos.Asset(market.Index)
	if !ok {
		return ErrMarketIndexMissing
	}
	value, err := ap.Price.MulInt(nominal)
	if err != nil {
		return err
	}
	reduction, err := market.MaintenanceMargin.MulInt(value)
	if err != nil {
		return err
	}
	if reduction.Gt(pos.WeightedMaintenanceMargin) {
		return ErrHealthFactorBelowOne
	}
	remaining := new(uint256.Int).Sub(pos.WeightedMaintenanceMargin, reduction)
	factor, err := HealthFactor(remaining, pos.TotalCollateralizedDebt)
	if err != nil {
		return err
	}
	if factor.LT(numeric.OneDecimal()) {
		return ErrHealthFactorBelowOne
	}
	return nil
}
