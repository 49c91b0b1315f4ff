package redbank

import (
	"strconv"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/events"
	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

const (
	EventTypeInitAsset              = "redbank.init_asset"
	EventTypeUpdateAsset            = "redbank.update_asset"
	EventTypeMarketActivated        = "redbank.market_activated"
	EventTypeUpdateConfig           = "redbank.update_config"
	EventTypeUncollateralizedLimit  = "redbank.uncollateralized_loan_limit"
	EventTypeDeposit                = "redbank.deposit"
	EventTypeWithdraw               = "redbank.withdraw"
	EventTypeBorrow                 = "redbank.borrow"
	EventTypeRepay                  = "redbank.repay"
	EventTypeLiquidate              = "redbank.liquidate"
	EventTypeCollateralEnabled      = "redbank.collateral.enabled"
	EventTypeCollateralDisabled     = "redbank.collateral.disabled"
	EventTypeDistributeIncome       = "redbank.distribute_income"
	EventTypeLiquidityTokenTransfer = "redbank.liquidity_token_transfer"
	EventTypeInterestUpdated        = "redbank.interest_updated"
)

func formatAmount(x *uint256.Int) string { return numeric.CloneInt(x).Dec() }

func newRecord(typ string, asset Asset, attrs map[string]string) *events.Record {
	if attrs == nil {
		attrs = map[string]string{}
	}
	if asset.Reference != "" {
		attrs["asset"] = asset.Reference
	}
	return &events.Record{Type: typ, Attributes: attrs}
}

func newInterestUpdatedEvent(m *Market) *events.Record {
	return newRecord(EventTypeInterestUpdated, m.Asset, map[string]string{
		"liquidityIndex": m.LiquidityIndex.String(),
		"borrowIndex":    m.BorrowIndex.String(),
		"liquidityRate":  m.LiquidityRate.String(),
		"borrowRate":     m.BorrowRate.String(),
	})
}

func newInitAssetEvent(m *Market) *events.Record {
	return newRecord(EventTypeInitAsset, m.Asset, map[string]string{
		"index": strconv.FormatUint(uint64(m.Index), 10),
		"type":  m.Asset.Type.String(),
	})
}

func newMarketActivatedEvent(m *Market) *events.Record {
	return newRecord(EventTypeMarketActivated, m.Asset, map[string]string{
		"liquidityToken": m.LiquidityToken.String(),
	})
}

func newUserAmountEvent(typ string, asset Asset, user crypto.Address, amount *uint256.Int, extra map[string]string) *events.Record {
	attrs := map[string]string{
		"user":   user.String(),
		"amount": formatAmount(amount),
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return newRecord(typ, asset, attrs)
}

func newCollateralEvent(asset Asset, user crypto.Address, enabled bool) *events.Record {
	typ := EventTypeCollateralDisabled
	if enabled {
		typ = EventTypeCollateralEnabled
	}
	return newRecord(typ, asset, map[string]string{"user": user.String()})
}

func newLiquidateEvent(collateral, debt Asset, user, liquidator crypto.Address, amounts LiquidationAmounts, receiveToken bool) *events.Record {
	return newRecord(EventTypeLiquidate, Asset{}, map[string]string{
		"collateralAsset":       collateral.Reference,
		"debtAsset":             debt.Reference,
		"user":                  user.String(),
		"liquidator":            liquidator.String(),
		"debtRepaid":            formatAmount(amounts.DebtRepaid),
		"collateralSeized":      formatAmount(amounts.CollateralSeized),
		"refund":                formatAmount(amounts.Refund),
		"receiveLiquidityToken": strconv.FormatBool(receiveToken),
	})
}

func newDistributeIncomeEvent(asset Asset, safety, treasury, staking *uint256.Int) *events.Record {
	return newRecord(EventTypeDistributeIncome, asset, map[string]string{
		"safetyFund": formatAmount(safety),
		"treasury":   formatAmount(treasury),
		"staking":    formatAmount(staking),
	})
}
