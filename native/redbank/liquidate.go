package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/observability/metrics"
)

// LiquidateRequest selects the position to liquidate. SentAmount of
// DebtAsset must already be held by the contract.
type LiquidateRequest struct {
	CollateralAsset       Asset          `json:"collateral_asset"`
	DebtAsset             Asset          `json:"debt_asset"`
	User                  crypto.Address `json:"user"`
	SentAmount            *uint256.Int   `json:"sent_amount"`
	ReceiveLiquidityToken bool           `json:"receive_liquidity_token"`
}

// Liquidate repays part of an unhealthy user's debt and pays the liquidator
// the bonus-adjusted collateral, either as liquidity tokens or as the
// underlying asset.
func (e *Engine) Liquidate(liquidator crypto.Address, req LiquidateRequest) ([]Effect, error) {
	return e.execute("liquidate", func(a *action) error {
		if numeric.IsZeroInt(req.SentAmount) {
			return ErrInvalidLiquidateAmount
		}
		debtKey := req.DebtAsset.Key()
		limit, err := a.tx.UncollateralizedLoanLimit(debtKey, req.User)
		if err != nil {
			return err
		}
		if !numeric.IsZeroInt(limit) {
			return ErrLiquidateUncollateralized
		}

		collateralMarket, err := a.activeMarket(req.CollateralAsset)
		if err != nil {
			return err
		}
		debtMarket, err := a.activeMarket(req.DebtAsset)
		if err != nil {
			return err
		}
		sameMarket := collateralMarket == debtMarket

		user, err := a.user(req.User)
		if err != nil {
			return err
		}
		enabled, err := user.CollateralAssets.Get(collateralMarket.Index)
		if err != nil {
			return err
		}
		if !enabled {
			return ErrLiquidateCollateralDisabled
		}
		balanceScaled, err := e.tokenBalance(collateralMarket, req.User)
		if err != nil {
			return err
		}
		if balanceScaled.IsZero() {
			return ErrLiquidateNoCollateral
		}
		debt, err := a.debt(debtKey, req.User)
		if err != nil {
			return err
		}
		if debt.AmountScaled.IsZero() {
			return ErrLiquidateNoDebt
		}

		pos, err := e.userPosition(a.tx, req.User, user, a.now)
		if err != nil {
			return err
		}
		if pos.Health.Status == NotBorrowing {
			return ErrLiquidateNotBorrowing
		}
		if !pos.Health.Liquidatable() {
			return ErrLiquidateHealthyPosition
		}
		collateralPos, ok := pos.Asset(collateralMarket.Index)
		if !ok {
			return ErrMarketIndexMissing
		}
		debtPos, ok := pos.Asset(debtMarket.Index)
		if !ok {
			return ErrMarketIndexMissing
		}

		if err := AccrueInterest(debtMarket, a.now); err != nil {
			return err
		}
		if !sameMarket {
			if err := AccrueInterest(collateralMarket, a.now); err != nil {
				return err
			}
		}
		totalDebt, err := Descale(debt.AmountScaled, debtMarket.BorrowIndex)
		if err != nil {
			return err
		}
		collateralBalance, err := Descale(balanceScaled, collateralMarket.LiquidityIndex)
		if err != nil {
			return err
		}
		amounts, err := ComputeLiquidation(LiquidationInputs{
			CollateralPrice:       collateralPos.Price,
			DebtPrice:             debtPos.Price,
			CloseFactor:           a.config.CloseFactor,
			UserCollateralBalance: collateralBalance,
			LiquidationBonus:      collateralMarket.LiquidationBonus,
			UserTotalDebt:         totalDebt,
			SentAmount:            req.SentAmount,
		})
		if err != nil {
			return err
		}
		seizedScaled := numeric.CloneInt(balanceScaled)
		if amounts.CollateralSeized.Lt(collateralBalance) {
			if seizedScaled, err = ScaleCeil(amounts.CollateralSeized, collateralMarket.LiquidityIndex); err != nil {
				return err
			}
			seizedScaled = numeric.MinInt(seizedScaled, balanceScaled)
		}

		// Collateral side.
		debtLiquidityTaken := numeric.CloneInt(amounts.Refund)
		if req.ReceiveLiquidityToken {
			liq := user
			if liquidator != req.User {
				if liq, err = a.user(liquidator); err != nil {
					return err
				}
			}
			if err := liq.CollateralAssets.Set(collateralMarket.Index); err != nil {
				return err
			}
			if liquidator != req.User {
				if err := a.tx.PutUser(liquidator, liq); err != nil {
					return err
				}
			}
			a.effect(transferOnLiquidationEffect(collateralMarket, req.User, liquidator, seizedScaled))
			if !sameMarket {
				if err := e.updateInterestRates(collateralMarket, a.now, new(uint256.Int)); err != nil {
					return err
				}
			}
		} else {
			available, err := e.contractBalance(collateralMarket.Asset)
			if err != nil {
				return err
			}
			if available.Lt(amounts.CollateralSeized) {
				return ErrLiquidateInsufficientFunds
			}
			if sameMarket {
				if debtLiquidityTaken, err = numeric.CheckedAdd(debtLiquidityTaken, amounts.CollateralSeized); err != nil {
					return err
				}
			} else if err := e.updateInterestRates(collateralMarket, a.now, amounts.CollateralSeized); err != nil {
				return err
			}
			a.effect(
				burnEffect(collateralMarket, req.User, seizedScaled),
				transferEffect(collateralMarket.Asset, e.contract, liquidator, amounts.CollateralSeized),
			)
		}
		if seizedScaled.Eq(balanceScaled) {
			if err := user.CollateralAssets.Unset(collateralMarket.Index); err != nil {
				return err
			}
		}

		// Debt side.
		repaidScaled, err := Scale(amounts.DebtRepaid, debtMarket.BorrowIndex)
		if err != nil {
			return err
		}
		if debt.AmountScaled, err = numeric.CheckedSub(debt.AmountScaled, repaidScaled); err != nil {
			return ErrDebtTotalExceeded
		}
		if debt.AmountScaled.IsZero() {
			if err := user.BorrowedAssets.Unset(debtMarket.Index); err != nil {
				return err
			}
		}
		if err := a.tx.PutDebt(debtKey, req.User, debt); err != nil {
			return err
		}
		if err := a.tx.PutUser(req.User, user); err != nil {
			return err
		}
		if debtMarket.DebtTotalScaled, err = numeric.CheckedSub(debtMarket.DebtTotalScaled, repaidScaled); err != nil {
			return ErrDebtTotalExceeded
		}
		if err := e.updateInterestRates(debtMarket, a.now, debtLiquidityTaken); err != nil {
			return err
		}
		if err := a.putMarket(debtMarket); err != nil {
			return err
		}
		if !sameMarket {
			if err := a.putMarket(collateralMarket); err != nil {
				return err
			}
		}

		if !amounts.Refund.IsZero() {
			a.effect(transferEffect(req.DebtAsset, e.contract, liquidator, amounts.Refund))
		}
		a.afterCommit(func() { metrics.RedBank().ObserveLiquidation(req.CollateralAsset.Key(), debtKey) })
		a.emit(newLiquidateEvent(req.CollateralAsset, req.DebtAsset, req.User, liquidator, amounts, req.ReceiveLiquidityToken))
		a.emit(newInterestUpdatedEvent(debtMarket))
		if !sameMarket {
			a.emit(newInterestUpdatedEvent(collateralMarket))
		}
		return nil
	})
}
