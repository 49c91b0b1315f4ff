package redbank

import (
	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
)

// Scale converts a nominal amount into index-scaled units, truncating.
func Scale(nominal *uint256.Int, index numeric.Decimal) (*uint256.Int, error) {
	return numeric.DivIntByDecimal(nominal, index)
}

// ScaleCeil converts a nominal amount into index-scaled units, rounding up.
// Burned liquidity tokens and recorded debt are scaled with it.
func ScaleCeil(nominal *uint256.Int, index numeric.Decimal) (*uint256.Int, error) {
	return numeric.DivIntByDecimalCeil(nominal, index)
}

// Descale converts a scaled amount back to nominal units, truncating.
func Descale(scaled *uint256.Int, index numeric.Decimal) (*uint256.Int, error) {
	return index.MulInt(scaled)
}
