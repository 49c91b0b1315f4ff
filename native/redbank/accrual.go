package redbank

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
)

// appliedIndex returns index * (1 + rate * elapsed / SecondsPerYear).
func appliedIndex(index, rate numeric.Decimal, elapsed uint64) (numeric.Decimal, error) {
	if rate.IsZero() || elapsed == 0 {
		return index, nil
	}
	factor, err := rate.MulRatio(elapsed, SecondsPerYear)
	if err != nil {
		return numeric.Decimal{}, err
	}
	growth, err := numeric.OneDecimal().Add(factor)
	if err != nil {
		return numeric.Decimal{}, err
	}
	return index.Mul(growth)
}

// ProjectedIndices returns the liquidity and borrow indices the market would
// carry at now without mutating it.
func ProjectedIndices(m *Market, now uint64) (numeric.Decimal, numeric.Decimal, error) {
	if now <= m.InterestsLastUpdated {
		return m.LiquidityIndex, m.BorrowIndex, nil
	}
	elapsed := now - m.InterestsLastUpdated
	liquidityIndex, err := appliedIndex(m.LiquidityIndex, m.LiquidityRate, elapsed)
	if err != nil {
		return numeric.Decimal{}, numeric.Decimal{}, err
	}
	borrowIndex, err := appliedIndex(m.BorrowIndex, m.BorrowRate, elapsed)
	if err != nil {
		return numeric.Decimal{}, numeric.Decimal{}, err
	}
	return liquidityIndex, borrowIndex, nil
}

// AccrueInterest advances both indices to now and books the reserve share of
// newly accrued borrow interest as protocol income. It is a no-op when now is
// not after the last update.
func AccrueInterest(m *Market, now uint64) error {
	if now <= m.InterestsLastUpdated {
		return nil
	}
	liquidityIndex, borrowIndex, err := ProjectedIndices(m, now)
	if err != nil {
		return err
	}
	debtBefore, err := Descale(m.DebtTotalScaled, m.BorrowIndex)
	if err != nil {
		return err
	}
	debtAfter, err := Descale(m.DebtTotalScaled, borrowIndex)
	if err != nil {
		return err
	}
	accrued, err := numeric.CheckedSub(debtAfter, debtBefore)
	if err != nil {
		return err
	}
	income, err := m.ReserveFactor.MulInt(accrued)
	if err != nil {
		return err
	}
	total, err := numeric.CheckedAdd(m.ProtocolIncomeToDistribute, income)
	if err != nil {
		return err
	}
	m.LiquidityIndex = liquidityIndex
	m.BorrowIndex = borrowIndex
	m.ProtocolIncomeToDistribute = total
	m.InterestsLastUpdated = now
	return nil
}

// Utilization is total_debt / (available + total_debt), where available is
// the contract balance less liquidityTaken and undistributed income.
func Utilization(m *Market, contractBalance, liquidityTaken *uint256.Int) (numeric.Decimal, error) {
	reserved, err := numeric.CheckedAdd(liquidityTaken, m.ProtocolIncomeToDistribute)
	if err != nil {
		return numeric.Decimal{}, err
	}
	available, err := numeric.CheckedSub(contractBalance, reserved)
	if err != nil {
		return numeric.Decimal{}, fmt.Errorf("%w: balance %s, taken %s, income %s", ErrLiquidityTakenExceeded,
			numeric.CloneInt(contractBalance), numeric.CloneInt(liquidityTaken), numeric.CloneInt(m.ProtocolIncomeToDistribute))
	}
	totalDebt, err := Descale(m.DebtTotalScaled, m.BorrowIndex)
	if err != nil {
		return numeric.Decimal{}, err
	}
	if totalDebt.IsZero() {
		return numeric.ZeroDecimal(), nil
	}
	denominator, err := numeric.CheckedAdd(available, totalDebt)
	if err != nil {
		return numeric.Decimal{}, err
	}
	return numeric.NewDecimalFromIntRatio(totalDebt, denominator)
}

// updateInterestRates recomputes both rates from the market's utilisation
// after liquidityTaken leaves the contract.
func (e *Engine) updateInterestRates(m *Market, now uint64, liquidityTaken *uint256.Int) error {
	balance, err := e.contractBalance(m.Asset)
	if err != nil {
		return err
	}
	return UpdateInterestRates(m, now, balance, liquidityTaken)
}

// UpdateInterestRates is the pure form of the rate refresh.
func UpdateInterestRates(m *Market, now uint64, contractBalance, liquidityTaken *uint256.Int) error {
	utilization, err := Utilization(m, contractBalance, liquidityTaken)
	if err != nil {
		return err
	}
	borrowRate, liquidityRate, err := m.InterestRateStrategy.Update(now, utilization, m.BorrowRate, m.ReserveFactor)
	if err != nil {
		return err
	}
	m.BorrowRate = borrowRate
	m.LiquidityRate = liquidityRate
	return nil
}

func (e *Engine) contractBalance(asset Asset) (*uint256.Int, error) {
	if e.collab.AssetBalances == nil {
		return nil, fmt.Errorf("redbank: asset balances not configured")
	}
	balance, err := e.collab.AssetBalances.Balance(asset, e.contract)
	if err != nil {
		return nil, fmt.Errorf("redbank: query %s balance: %w", asset, err)
	}
	return numeric.CloneInt(balance), nil
}
