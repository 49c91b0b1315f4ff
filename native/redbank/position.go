package redbank

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// HealthStatus tags whether a user carries any debt.
type HealthStatus uint8

const (
	NotBorrowing HealthStatus = iota
	Borrowing
)

func (s HealthStatus) String() string {
	if s == Borrowing {
		return "borrowing"
	}
	return "not_borrowing"
}

func (s HealthStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Health is NotBorrowing or Borrowing with a health factor. A factor below
// one is liquidatable.
type Health struct {
	Status HealthStatus    `json:"status"`
	Factor numeric.Decimal `json:"health_factor"`
}

func (h Health) Liquidatable() bool {
	return h.Status == Borrowing && h.Factor.LT(numeric.OneDecimal())
}

// AssetPosition is one market's contribution to a Position.
type AssetPosition struct {
	Asset             Asset           `json:"asset"`
	Index             uint32          `json:"index"`
	Price             numeric.Decimal `json:"price"`
	CollateralEnabled bool            `json:"collateral_enabled"`
	CollateralAmount  *uint256.Int    `json:"collateral_amount"`
	DebtAmount        *uint256.Int    `json:"debt_amount"`
	Uncollateralized  bool            `json:"uncollateralized"`
	MaxLoanToValue    numeric.Decimal `json:"max_loan_to_value"`
	MaintenanceMargin numeric.Decimal `json:"maintenance_margin"`
}

// Position aggregates a user's collateral and debt in quote currency.
type Position struct {
	TotalCollateral           *uint256.Int    `json:"total_collateral_in_quote"`
	TotalDebt                 *uint256.Int    `json:"total_debt_in_quote"`
	TotalCollateralizedDebt   *uint256.Int    `json:"total_collateralized_debt_in_quote"`
	MaxDebt                   *uint256.Int    `json:"max_debt_in_quote"`
	WeightedMaintenanceMargin *uint256.Int    `json:"weighted_maintenance_margin_in_quote"`
	Health                    Health          `json:"health"`
	Assets                    []AssetPosition `json:"assets"`
}

// Asset returns the entry for the market at index, if the user has one.
func (p *Position) Asset(index uint32) (AssetPosition, bool) {
	for _, ap := range p.Assets {
		if ap.Index == index {
			return ap, true
		}
	}
	return AssetPosition{}, false
}

// HealthFactor is weighted maintenance margin over collateralized debt. With
// no collateralized debt the factor is unbounded.
func HealthFactor(weighted, collateralizedDebt *uint256.Int) (numeric.Decimal, error) {
	if numeric.IsZeroInt(collateralizedDebt) {
		return numeric.MaxDecimal(), nil
	}
	return numeric.NewDecimalFromIntRatio(numeric.CloneInt(weighted), collateralizedDebt)
}

// userPosition walks both bitmaps and prices every market the user touches.
// Indices are projected to now; any failed lookup aborts the whole position.
func (e *Engine) userPosition(st State, addr crypto.Address, u *User, now uint64) (*Position, error) {
	pos := &Position{
		TotalCollateral:           new(uint256.Int),
		TotalDebt:                 new(uint256.Int),
		TotalCollateralizedDebt:   new(uint256.Int),
		MaxDebt:                   new(uint256.Int),
		WeightedMaintenanceMargin: new(uint256.Int),
	}
	var combined Bitmap
	combined[0] = u.CollateralAssets[0] | u.BorrowedAssets[0]
	combined[1] = u.CollateralAssets[1] | u.BorrowedAssets[1]

	for _, index := range combined.Indices() {
		key, ok, err := st.MarketKeyByIndex(index)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrMarketIndexMissing, index)
		}
		m, ok, err := st.Market(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrMarketIndexMissing, index)
		}
		liquidityIndex, borrowIndex, err := ProjectedIndices(m, now)
		if err != nil {
			return nil, err
		}
		price, err := e.price(m.Asset)
		if err != nil {
			return nil, err
		}
		ap := AssetPosition{
			Asset:             m.Asset,
			Index:             index,
			Price:             price,
			CollateralAmount:  new(uint256.Int),
			DebtAmount:        new(uint256.Int),
			MaxLoanToValue:    m.MaxLoanToValue,
			MaintenanceMargin: m.MaintenanceMargin,
		}

		if enabled, _ := u.CollateralAssets.Get(index); enabled {
			ap.CollateralEnabled = true
			scaled, err := e.tokenBalance(m, addr)
			if err != nil {
				return nil, err
			}
			if ap.CollateralAmount, err = Descale(scaled, liquidityIndex); err != nil {
				return nil, err
			}
			value, err := price.MulInt(ap.CollateralAmount)
			if err != nil {
				return nil, err
			}
			if err := addWeighted(pos, value, m); err != nil {
				return nil, err
			}
		}

		if borrowed, _ := u.BorrowedAssets.Get(index); borrowed {
			d, ok, err := st.Debt(key, addr)
			if err != nil {
				return nil, err
			}
			if ok && d != nil {
				ap.Uncollateralized = d.Uncollateralized
				if ap.DebtAmount, err = Descale(d.AmountScaled, borrowIndex); err != nil {
					return nil, err
				}
			}
			value, err := price.MulInt(ap.DebtAmount)
			if err != nil {
				return nil, err
			}
			if pos.TotalDebt, err = numeric.CheckedAdd(pos.TotalDebt, value); err != nil {
				return nil, err
			}
			if !ap.Uncollateralized {
				if pos.TotalCollateralizedDebt, err = numeric.CheckedAdd(pos.TotalCollateralizedDebt, value); err != nil {
					return nil, err
				}
			}
		}
		pos.Assets = append(pos.Assets, ap)
	}

	if pos.TotalDebt.IsZero() {
		pos.Health = Health{Status: NotBorrowing}
		return pos, nil
	}
	factor, err := HealthFactor(pos.WeightedMaintenanceMargin, pos.TotalCollateralizedDebt)
	if err != nil {
		return nil, err
	}
	pos.Health = Health{Status: Borrowing, Factor: factor}
	return pos, nil
}

func addWeighted(pos *Position, value *uint256.Int, m *Market) error {
	var err error
	if pos.TotalCollateral, err = numeric.CheckedAdd(pos.TotalCollateral, value); err != nil {
		return err
	}
	ltvValue, err := m.MaxLoanToValue.MulInt(value)
	if err != nil {
		return err
	}
	if pos.MaxDebt, err = numeric.CheckedAdd(pos.MaxDebt, ltvValue); err != nil {
		return err
	}
	mmValue, err := m.MaintenanceMargin.MulInt(value)
	if err != nil {
		return err
	}
	pos.WeightedMaintenanceMargin, err = numeric.CheckedAdd(pos.WeightedMaintenanceMargin, mmValue)
	return err
}
