package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// Deposit credits amount of asset, already received by the contract, to
// onBehalfOf (or the depositor when zero) as scaled liquidity tokens. The
// asset is enabled as collateral the first time the user deposits it.
func (e *Engine) Deposit(depositor, onBehalfOf crypto.Address, asset Asset, amount *uint256.Int) ([]Effect, error) {
	return e.execute("deposit", func(a *action) error {
		if numeric.IsZeroInt(amount) {
			return ErrInvalidAmount
		}
		market, err := a.activeMarket(asset)
		if err != nil {
			return err
		}
		beneficiary := pick(onBehalfOf, depositor)

		user, err := a.user(beneficiary)
		if err != nil {
			return err
		}
		enabled, err := user.CollateralAssets.Get(market.Index)
		if err != nil {
			return err
		}
		if !enabled {
			if err := user.CollateralAssets.Set(market.Index); err != nil {
				return err
			}
			if err := a.tx.PutUser(beneficiary, user); err != nil {
				return err
			}
		}

		if err := AccrueInterest(market, a.now); err != nil {
			return err
		}
		if err := e.updateInterestRates(market, a.now, new(uint256.Int)); err != nil {
			return err
		}
		scaled, err := Scale(amount, market.LiquidityIndex)
		if err != nil {
			return err
		}
		if scaled.IsZero() {
			return ErrInvalidAmount
		}
		if err := a.putMarket(market); err != nil {
			return err
		}

		a.effect(mintEffect(market, beneficiary, scaled))
		a.emit(newUserAmountEvent(EventTypeDeposit, asset, beneficiary, amount, map[string]string{
			"sender":       depositor.String(),
			"amountScaled": formatAmount(scaled),
		}))
		a.emit(newInterestUpdatedEvent(market))
		return nil
	})
}
