package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
)

// LiquidationInputs are the prices, parameters and balances a liquidation is
// sized from. Balances and debt are nominal.
type LiquidationInputs struct {
	CollateralPrice       numeric.Decimal
	DebtPrice             numeric.Decimal
	CloseFactor           numeric.Decimal
	UserCollateralBalance *uint256.Int
	LiquidationBonus      numeric.Decimal
	UserTotalDebt         *uint256.Int
	SentAmount            *uint256.Int
}

// LiquidationAmounts is the outcome of ComputeLiquidation.
// DebtRepaid + Refund always equals the sent amount.
type LiquidationAmounts struct {
	DebtRepaid       *uint256.Int
	CollateralSeized *uint256.Int
	Refund           *uint256.Int
}

// ComputeLiquidation sizes a liquidation. Repayment is capped by the close
// factor; when the bonus-adjusted collateral exceeds the user's balance the
// whole balance is seized and the repayment shrinks to match.
func ComputeLiquidation(in LiquidationInputs) (LiquidationAmounts, error) {
	sent := numeric.CloneInt(in.SentAmount)
	maxRepayable, err := in.CloseFactor.MulInt(in.UserTotalDebt)
	if err != nil {
		return LiquidationAmounts{}, err
	}
	repay := numeric.MinInt(sent, maxRepayable)

	bonusFactor, err := numeric.OneDecimal().Add(in.LiquidationBonus)
	if err != nil {
		return LiquidationAmounts{}, err
	}
	value, err := in.DebtPrice.MulInt(repay)
	if err != nil {
		return LiquidationAmounts{}, err
	}
	if value, err = bonusFactor.MulInt(value); err != nil {
		return LiquidationAmounts{}, err
	}
	seize, err := numeric.DivIntByDecimal(value, in.CollateralPrice)
	if err != nil {
		return LiquidationAmounts{}, err
	}

	balance := numeric.CloneInt(in.UserCollateralBalance)
	if seize.Gt(balance) {
		seize = balance
		collateralValue, err := in.CollateralPrice.MulInt(balance)
		if err != nil {
			return LiquidationAmounts{}, err
		}
		debtFactor, err := in.DebtPrice.Mul(bonusFactor)
		if err != nil {
			return LiquidationAmounts{}, err
		}
		reduced, err := numeric.DivIntByDecimal(collateralValue, debtFactor)
		if err != nil {
			return LiquidationAmounts{}, err
		}
		repay = numeric.MinInt(reduced, repay)
	}

	refund, err := numeric.CheckedSub(sent, repay)
	if err != nil {
		return LiquidationAmounts{}, err
	}
	return LiquidationAmounts{DebtRepaid: repay, CollateralSeized: seize, Refund: refund}, nil
}
