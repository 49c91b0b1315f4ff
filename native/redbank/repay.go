package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// Repay applies amount of asset, already received by the contract, against
// the debt of onBehalfOf (the sender when zero). Any excess over the
// outstanding debt is refunded to the sender.
func (e *Engine) Repay(sender, onBehalfOf crypto.Address, asset Asset, amount *uint256.Int) ([]Effect, error) {
	return e.execute("repay", func(a *action) error {
		if numeric.IsZeroInt(amount) {
			return ErrInvalidAmount
		}
		market, err := a.activeMarket(asset)
		if err != nil {
			return err
		}
		borrower := pick(onBehalfOf, sender)
		key := asset.Key()
		debt, err := a.debt(key, borrower)
		if err != nil {
			return err
		}
		if debt.AmountScaled.IsZero() {
			return ErrNoDebt
		}
		if err := AccrueInterest(market, a.now); err != nil {
			return err
		}

		scaled, err := Scale(amount, market.BorrowIndex)
		if err != nil {
			return err
		}
		if scaled.IsZero() {
			return ErrInvalidAmount
		}
		refund := new(uint256.Int)
		if scaled.Gt(debt.AmountScaled) {
			excess := new(uint256.Int).Sub(scaled, debt.AmountScaled)
			if refund, err = Descale(excess, market.BorrowIndex); err != nil {
				return err
			}
			scaled = numeric.CloneInt(debt.AmountScaled)
		}

		debt.AmountScaled = new(uint256.Int).Sub(debt.AmountScaled, scaled)
		if err := a.tx.PutDebt(key, borrower, debt); err != nil {
			return err
		}
		if debt.AmountScaled.IsZero() {
			user, err := a.user(borrower)
			if err != nil {
				return err
			}
			if err := user.BorrowedAssets.Unset(market.Index); err != nil {
				return err
			}
			if err := a.tx.PutUser(borrower, user); err != nil {
				return err
			}
		}
		if market.DebtTotalScaled, err = numeric.CheckedSub(market.DebtTotalScaled, scaled); err != nil {
			return ErrDebtTotalExceeded
		}
		if err := e.updateInterestRates(market, a.now, refund); err != nil {
			return err
		}
		if err := a.putMarket(market); err != nil {
			return err
		}

		if !refund.IsZero() {
			a.effect(transferEffect(asset, e.contract, sender, refund))
		}
		a.emit(newUserAmountEvent(EventTypeRepay, asset, borrower, amount, map[string]string{
			"sender":       sender.String(),
			"amountScaled": formatAmount(scaled),
			"refund":       formatAmount(refund),
		}))
		a.emit(newInterestUpdatedEvent(market))
		return nil
	})
}
