package redbank

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// Borrow lends amount of asset to borrower, paid to recipient (the borrower
// when zero). A positive uncollateralized loan limit replaces the collateral
// check with a cap on the borrower's total debt in the asset.
func (e *Engine) Borrow(borrower crypto.Address, asset Asset, amount *uint256.Int, recipient crypto.Address) ([]Effect, error) {
	return e.execute("borrow", func(a *action) error {
		if numeric.IsZeroInt(amount) {
			return ErrInvalidAmount
		}
		market, err := a.activeMarket(asset)
		if err != nil {
			return err
		}
		if err := AccrueInterest(market, a.now); err != nil {
			return err
		}
		key := asset.Key()
		user, err := a.user(borrower)
		if err != nil {
			return err
		}
		debt, err := a.debt(key, borrower)
		if err != nil {
			return err
		}
		limit, err := a.tx.UncollateralizedLoanLimit(key, borrower)
		if err != nil {
			return err
		}

		if numeric.IsZeroInt(limit) {
			pos, err := e.userPosition(a.tx, borrower, user, a.now)
			if err != nil {
				return err
			}
			price, err := e.price(asset)
			if err != nil {
				return err
			}
			value, err := price.MulInt(amount)
			if err != nil {
				return err
			}
			after, err := numeric.CheckedAdd(pos.TotalDebt, value)
			if err != nil {
				return err
			}
			if after.Gt(pos.MaxDebt) {
				return fmt.Errorf("%w: debt %s exceeds max %s", ErrBorrowExceedsCollateral, after.Dec(), pos.MaxDebt.Dec())
			}
		} else {
			current, err := Descale(debt.AmountScaled, market.BorrowIndex)
			if err != nil {
				return err
			}
			after, err := numeric.CheckedAdd(current, amount)
			if err != nil {
				return err
			}
			if after.Gt(limit) {
				return fmt.Errorf("%w: debt %s exceeds limit %s", ErrBorrowExceedsLimit, after.Dec(), limit.Dec())
			}
		}

		scaled, err := ScaleCeil(amount, market.BorrowIndex)
		if err != nil {
			return err
		}
		borrowed, err := user.BorrowedAssets.Get(market.Index)
		if err != nil {
			return err
		}
		if !borrowed {
			if err := user.BorrowedAssets.Set(market.Index); err != nil {
				return err
			}
			if err := a.tx.PutUser(borrower, user); err != nil {
				return err
			}
		}
		if debt.AmountScaled, err = numeric.CheckedAdd(debt.AmountScaled, scaled); err != nil {
			return err
		}
		debt.Uncollateralized = !numeric.IsZeroInt(limit)
		if err := a.tx.PutDebt(key, borrower, debt); err != nil {
			return err
		}
		if market.DebtTotalScaled, err = numeric.CheckedAdd(market.DebtTotalScaled, scaled); err != nil {
			return err
		}
		if err := e.updateInterestRates(market, a.now, amount); err != nil {
			return err
		}
		if err := a.putMarket(market); err != nil {
			return err
		}

		to := pick(recipient, borrower)
		a.effect(transferEffect(asset, e.contract, to, amount))
		a.emit(newUserAmountEvent(EventTypeBorrow, asset, borrower, amount, map[string]string{
			"recipient":    to.String(),
			"amountScaled": formatAmount(scaled),
		}))
		a.emit(newInterestUpdatedEvent(market))
		return nil
	})
}
