package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
)

// DistributeProtocolIncome pays out amount (all of it when nil) of the
// market's undistributed income. The safety fund and staking shares leave as
// transfers; the treasury share stays in the pool as minted liquidity tokens.
func (e *Engine) DistributeProtocolIncome(asset Asset, amount *uint256.Int) ([]Effect, error) {
	return e.execute("distribute_income", func(a *action) error {
		market, err := a.activeMarket(asset)
		if err != nil {
			return err
		}
		if err := AccrueInterest(market, a.now); err != nil {
			return err
		}
		income := numeric.CloneInt(market.ProtocolIncomeToDistribute)
		toDistribute := income
		if amount != nil {
			if amount.Gt(income) {
				return ErrAmountExceedsIncome
			}
			toDistribute = numeric.CloneInt(amount)
		}
		if toDistribute.IsZero() {
			return ErrInvalidAmount
		}
		market.ProtocolIncomeToDistribute = new(uint256.Int).Sub(income, toDistribute)

		safety, err := a.config.SafetyFundFeeShare.MulInt(toDistribute)
		if err != nil {
			return err
		}
		treasury, err := a.config.TreasuryFeeShare.MulInt(toDistribute)
		if err != nil {
			return err
		}
		retained, err := numeric.CheckedAdd(safety, treasury)
		if err != nil {
			return err
		}
		staking, err := numeric.CheckedSub(toDistribute, retained)
		if err != nil {
			return err
		}
		taken, err := numeric.CheckedAdd(safety, staking)
		if err != nil {
			return err
		}
		if err := e.updateInterestRates(market, a.now, taken); err != nil {
			return err
		}
		if err := a.putMarket(market); err != nil {
			return err
		}

		if !treasury.IsZero() {
			treasuryScaled, err := Scale(treasury, market.LiquidityIndex)
			if err != nil {
				return err
			}
			addr, err := e.resolve(RoleTreasury)
			if err != nil {
				return err
			}
			a.effect(mintEffect(market, addr, treasuryScaled))
		}
		if !safety.IsZero() {
			addr, err := e.resolve(RoleSafetyFund)
			if err != nil {
				return err
			}
			a.effect(transferEffect(asset, e.contract, addr, safety))
		}
		if !staking.IsZero() {
			addr, err := e.resolve(RoleStaking)
			if err != nil {
				return err
			}
			a.effect(transferEffect(asset, e.contract, addr, staking))
		}
		a.emit(newDistributeIncomeEvent(asset, safety, treasury, staking))
		a.emit(newInterestUpdatedEvent(market))
		return nil
	})
}
