package redbank

import "errors"

// Error kinds. Every sentinel below matches exactly one of them under
// errors.Is.
var (
	ErrValidation   = errors.New("redbank: validation failed")
	ErrUnauthorized = errors.New("redbank: unauthorized")
	ErrSolvency     = errors.New("redbank: solvency check failed")
	ErrConsistency  = errors.New("redbank: state inconsistency")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return "redbank: " + e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func newError(kind error, msg string) error { return &kindError{kind: kind, msg: msg} }

var (
	ErrNilState = errors.New("redbank: state not configured")

	ErrInvalidAmount               = newError(ErrValidation, "amount must be positive")
	ErrInvalidAsset                = newError(ErrValidation, "invalid asset reference")
	ErrAssetNotInitialized         = newError(ErrValidation, "asset not initialized")
	ErrAssetAlreadyInitialized     = newError(ErrValidation, "asset already initialized")
	ErrMarketNotActive             = newError(ErrValidation, "market awaiting liquidity token")
	ErrMarketCapacityReached       = newError(ErrValidation, "market capacity reached")
	ErrInvalidParams               = newError(ErrValidation, "invalid market parameters")
	ErrInvalidConfig               = newError(ErrValidation, "invalid config")
	ErrInvalidStrategy             = newError(ErrValidation, "invalid interest rate strategy")
	ErrBitOutOfRange               = newError(ErrValidation, "bit index out of range")
	ErrNoBalance                   = newError(ErrValidation, "user has no balance")
	ErrInvalidWithdrawAmount       = newError(ErrValidation, "invalid withdraw amount")
	ErrNoCollateralBalance         = newError(ErrValidation, "user has no collateral balance")
	ErrNoDebt                      = newError(ErrValidation, "user has no debt")
	ErrAmountExceedsIncome         = newError(ErrValidation, "amount exceeds protocol income to distribute")
	ErrInvalidLiquidateAmount      = newError(ErrValidation, "liquidation amount must be positive")
	ErrLiquidateCollateralDisabled = newError(ErrValidation, "collateral asset not enabled for user")
	ErrLiquidateNoCollateral       = newError(ErrValidation, "user has no balance in collateral asset")
	ErrLiquidateNoDebt             = newError(ErrValidation, "user has no debt in debt asset")

	ErrNotOwner              = newError(ErrUnauthorized, "caller is not the owner")
	ErrTokenAlreadySet       = newError(ErrUnauthorized, "liquidity token already set")
	ErrUnknownLiquidityToken = newError(ErrUnauthorized, "caller is not a listed liquidity token")

	ErrBorrowExceedsCollateral    = newError(ErrSolvency, "borrow amount exceeds collateral capacity")
	ErrBorrowExceedsLimit         = newError(ErrSolvency, "borrow amount exceeds uncollateralized loan limit")
	ErrHealthFactorBelowOne       = newError(ErrSolvency, "health factor would fall below 1")
	ErrLiquidateHealthyPosition   = newError(ErrSolvency, "user position is healthy")
	ErrLiquidateNotBorrowing      = newError(ErrSolvency, "user is not borrowing")
	ErrLiquidateUncollateralized  = newError(ErrSolvency, "cannot liquidate a positive uncollateralized loan limit")
	ErrLiquidateInsufficientFunds = newError(ErrSolvency, "not enough liquidity to pay out collateral")

	ErrConfigMissing          = newError(ErrConsistency, "config not initialized")
	ErrMarketIndexMissing     = newError(ErrConsistency, "no market registered at bit index")
	ErrDebtTotalExceeded      = newError(ErrConsistency, "amount exceeds market debt total")
	ErrLiquidityTakenExceeded = newError(ErrConsistency, "liquidity taken exceeds contract balance")
)
