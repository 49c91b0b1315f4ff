package redbank

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

// SecondsPerYear is the accrual period rates are quoted against.
const SecondsPerYear = 31_536_000

// MarketStatus tracks the two-step activation of a market.
type MarketStatus uint8

const (
	MarketUninitialized MarketStatus = iota
	MarketAwaitingTokenCallback
	MarketActive
)

func (s MarketStatus) String() string {
	switch s {
	case MarketAwaitingTokenCallback:
		return "awaiting_token_callback"
	case MarketActive:
		return "active"
	default:
		return "uninitialized"
	}
}

func (s MarketStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Market holds the pooled accounting for one listed asset.
type Market struct {
	// Index is the bit position in user bitmaps. Never reassigned.
	Index          uint32         `json:"index"`
	Asset          Asset          `json:"asset"`
	Status         MarketStatus   `json:"status"`
	LiquidityToken crypto.Address `json:"liquidity_token"`

	LiquidityIndex numeric.Decimal `json:"liquidity_index"`
	BorrowIndex    numeric.Decimal `json:"borrow_index"`
	LiquidityRate  numeric.Decimal `json:"liquidity_rate"`
	BorrowRate     numeric.Decimal `json:"borrow_rate"`

	DebtTotalScaled            *uint256.Int `json:"debt_total_scaled"`
	ProtocolIncomeToDistribute *uint256.Int `json:"protocol_income_to_distribute"`

	ReserveFactor     numeric.Decimal `json:"reserve_factor"`
	MaxLoanToValue    numeric.Decimal `json:"max_loan_to_value"`
	MaintenanceMargin numeric.Decimal `json:"maintenance_margin"`
	LiquidationBonus  numeric.Decimal `json:"liquidation_bonus"`

	InterestsLastUpdated uint64               `json:"interests_last_updated"`
	InterestRateStrategy InterestRateStrategy `json:"interest_rate_strategy"`
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	clone.DebtTotalScaled = numeric.CloneInt(m.DebtTotalScaled)
	clone.ProtocolIncomeToDistribute = numeric.CloneInt(m.ProtocolIncomeToDistribute)
	clone.InterestRateStrategy = m.InterestRateStrategy.Clone()
	return &clone
}

func (m *Market) IsActive() bool { return m != nil && m.Status == MarketActive }

// Validate checks the risk parameters and strategy.
func (m *Market) Validate() error {
	one := numeric.OneDecimal()
	for name, ratio := range map[string]numeric.Decimal{
		"reserve_factor":     m.ReserveFactor,
		"max_loan_to_value":  m.MaxLoanToValue,
		"maintenance_margin": m.MaintenanceMargin,
		"liquidation_bonus":  m.LiquidationBonus,
	} {
		if ratio.GT(one) {
			return fmt.Errorf("%w: %s must be at most 1", ErrInvalidParams, name)
		}
	}
	if !m.MaintenanceMargin.GT(m.MaxLoanToValue) {
		return fmt.Errorf("%w: maintenance_margin must exceed max_loan_to_value", ErrInvalidParams)
	}
	return m.InterestRateStrategy.Validate()
}

// User flags the markets an address participates in.
type User struct {
	CollateralAssets Bitmap `json:"collateral_assets"`
	BorrowedAssets   Bitmap `json:"borrowed_assets"`
}

// Debt is a user's scaled debt in one market.
type Debt struct {
	AmountScaled     *uint256.Int `json:"amount_scaled"`
	Uncollateralized bool         `json:"uncollateralized"`
}

func (d *Debt) Clone() *Debt {
	if d == nil {
		return nil
	}
	return &Debt{AmountScaled: numeric.CloneInt(d.AmountScaled), Uncollateralized: d.Uncollateralized}
}

// GlobalState counts markets ever created; the count assigns the next index.
type GlobalState struct {
	MarketCount uint32 `json:"market_count"`
}

// Config holds the protocol-wide parameters.
type Config struct {
	Owner              crypto.Address  `json:"owner" toml:"owner"`
	CloseFactor        numeric.Decimal `json:"close_factor" toml:"close_factor"`
	SafetyFundFeeShare numeric.Decimal `json:"safety_fund_fee_share" toml:"safety_fund_fee_share"`
	TreasuryFeeShare   numeric.Decimal `json:"treasury_fee_share" toml:"treasury_fee_share"`
	MarketCapacity     uint32          `json:"market_capacity" toml:"market_capacity"`
}

func (c *Config) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	one := numeric.OneDecimal()
	if c.Owner.IsZero() {
		return fmt.Errorf("%w: owner must be set", ErrInvalidConfig)
	}
	if c.CloseFactor.GT(one) {
		return fmt.Errorf("%w: close_factor must be at most 1", ErrInvalidConfig)
	}
	shares, err := c.SafetyFundFeeShare.Add(c.TreasuryFeeShare)
	if err != nil || shares.GT(one) {
		return fmt.Errorf("%w: fee shares must sum to at most 1", ErrInvalidConfig)
	}
	if c.MarketCapacity == 0 || c.MarketCapacity > BitmapCapacity {
		return fmt.Errorf("%w: market_capacity must be in [1, %d]", ErrInvalidConfig, BitmapCapacity)
	}
	return nil
}

// Role names an address the registry resolves.
type Role string

const (
	RoleSafetyFund Role = "safety_fund"
	RoleTreasury   Role = "treasury"
	RoleStaking    Role = "staking"
)

// Oracle quotes assets in the common quote currency.
type Oracle interface {
	Price(asset Asset) (numeric.Decimal, error)
}

// LiquidityTokens answers scaled balance queries against liquidity tokens.
type LiquidityTokens interface {
	BalanceOf(token, holder crypto.Address) (*uint256.Int, error)
}

// AssetBalances answers underlying balance queries.
type AssetBalances interface {
	Balance(asset Asset, holder crypto.Address) (*uint256.Int, error)
}

// Registry resolves protocol roles to addresses.
type Registry interface {
	Resolve(role Role) (crypto.Address, error)
}

// Collaborators bundles the external query interfaces the engine consumes.
type Collaborators struct {
	Oracle          Oracle
	LiquidityTokens LiquidityTokens
	AssetBalances   AssetBalances
	Registry        Registry
}
