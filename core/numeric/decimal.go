// Package numeric provides the fixed-point and overflow-checked integer
// arithmetic used by the red bank accounting core. Every operation either
// returns an exact (truncated) result or an error; nothing wraps or saturates.
package numeric

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DecimalPlaces is the number of fractional digits carried by Decimal.
const DecimalPlaces = 18

var (
	ErrOverflow       = errors.New("numeric: overflow")
	ErrUnderflow      = errors.New("numeric: underflow")
	ErrDivideByZero   = errors.New("numeric: division by zero")
	ErrInvalidDecimal = errors.New("numeric: invalid decimal")
)

var decimalFractional = uint256.NewInt(1_000_000_000_000_000_000)

// Decimal is an unsigned fixed-point number with 18 fractional digits. The
// zero value is 0.
type Decimal struct {
	atomics uint256.Int
}

// ZeroDecimal returns 0.
func ZeroDecimal() Decimal { return Decimal{} }

// OneDecimal returns 1.
func OneDecimal() Decimal { return Decimal{atomics: *decimalFractional} }

// MaxDecimal returns the largest representable Decimal.
func MaxDecimal() Decimal {
	var d Decimal
	d.atomics.SetAllOne()
	return d
}

// NewDecimal returns the whole number n as a Decimal.
func NewDecimal(n uint64) Decimal {
	var d Decimal
	d.atomics.Mul(uint256.NewInt(n), decimalFractional)
	return d
}

// NewPercent returns p/100.
func NewPercent(p uint64) Decimal {
	d, _ := NewDecimalFromRatio(p, 100)
	return d
}

// NewPermille returns p/1000.
func NewPermille(p uint64) Decimal {
	d, _ := NewDecimalFromRatio(p, 1000)
	return d
}

// NewDecimalFromAtomics interprets atomics as value * 10^18.
func NewDecimalFromAtomics(atomics *uint256.Int) Decimal {
	var d Decimal
	if atomics != nil {
		d.atomics.Set(atomics)
	}
	return d
}

// NewDecimalFromRatio returns floor(num / den) at 18 digit precision.
func NewDecimalFromRatio(num, den uint64) (Decimal, error) {
	return NewDecimalFromIntRatio(uint256.NewInt(num), uint256.NewInt(den))
}

// NewDecimalFromIntRatio returns floor(num / den) at 18 digit precision.
func NewDecimalFromIntRatio(num, den *uint256.Int) (Decimal, error) {
	if den == nil || den.IsZero() {
		return Decimal{}, ErrDivideByZero
	}
	if num == nil {
		return Decimal{}, nil
	}
	var d Decimal
	if _, overflow := d.atomics.MulDivOverflow(num, decimalFractional, den); overflow {
		return Decimal{}, ErrOverflow
	}
	return d, nil
}

// ParseDecimal parses a non-negative base-10 string such as "0.75". Digits
// beyond the 18th fractional place are truncated.
func ParseDecimal(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Decimal{}, fmt.Errorf("%w: empty string", ErrInvalidDecimal)
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Decimal{}, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	if parsed.IsNegative() {
		return Decimal{}, fmt.Errorf("%w: %q is negative", ErrInvalidDecimal, s)
	}
	scaled := parsed.Shift(DecimalPlaces).Truncate(0)
	atomics, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return Decimal{}, ErrOverflow
	}
	return Decimal{atomics: *atomics}, nil
}

// MustParseDecimal is ParseDecimal for constants; it panics on bad input.
func MustParseDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Atomics returns a copy of the underlying value * 10^18.
func (d Decimal) Atomics() *uint256.Int { return new(uint256.Int).Set(&d.atomics) }

func (d Decimal) IsZero() bool { return d.atomics.IsZero() }

// Cmp returns -1, 0 or +1.
func (d Decimal) Cmp(o Decimal) int { return d.atomics.Cmp(&o.atomics) }

func (d Decimal) Equal(o Decimal) bool { return d.atomics.Eq(&o.atomics) }
func (d Decimal) LT(o Decimal) bool    { return d.atomics.Lt(&o.atomics) }
func (d Decimal) LTE(o Decimal) bool   { return !d.atomics.Gt(&o.atomics) }
func (d Decimal) GT(o Decimal) bool    { return d.atomics.Gt(&o.atomics) }
func (d Decimal) GTE(o Decimal) bool   { return !d.atomics.Lt(&o.atomics) }

func (d Decimal) Add(o Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.atomics.AddOverflow(&d.atomics, &o.atomics); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

func (d Decimal) Sub(o Decimal) (Decimal, error) {
	var out Decimal
	if _, underflow := out.atomics.SubOverflow(&d.atomics, &o.atomics); underflow {
		return Decimal{}, ErrUnderflow
	}
	return out, nil
}

// Mul returns floor(d * o).
func (d Decimal) Mul(o Decimal) (Decimal, error) {
	var out Decimal
	if _, overflow := out.atomics.MulDivOverflow(&d.atomics, &o.atomics, decimalFractional); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// Quo returns floor(d / o).
func (d Decimal) Quo(o Decimal) (Decimal, error) {
	if o.IsZero() {
		return Decimal{}, ErrDivideByZero
	}
	var out Decimal
	if _, overflow := out.atomics.MulDivOverflow(&d.atomics, decimalFractional, &o.atomics); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// MulRatio returns floor(d * num / den) without rounding the ratio first.
func (d Decimal) MulRatio(num, den uint64) (Decimal, error) {
	if den == 0 {
		return Decimal{}, ErrDivideByZero
	}
	var out Decimal
	if _, overflow := out.atomics.MulDivOverflow(&d.atomics, uint256.NewInt(num), uint256.NewInt(den)); overflow {
		return Decimal{}, ErrOverflow
	}
	return out, nil
}

// MulInt returns floor(x * d).
func (d Decimal) MulInt(x *uint256.Int) (*uint256.Int, error) {
	if x == nil {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, &d.atomics, decimalFractional)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// DivIntByDecimal returns floor(x / d).
func DivIntByDecimal(x *uint256.Int, d Decimal) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivideByZero
	}
	if x == nil {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(x, decimalFractional, &d.atomics)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// DivIntByDecimalCeil returns ceil(x / d).
func DivIntByDecimalCeil(x *uint256.Int, d Decimal) (*uint256.Int, error) {
	out, err := DivIntByDecimal(x, d)
	if err != nil {
		return nil, err
	}
	// out*d <= x*10^18, so the product cannot overflow
	back, err := d.MulInt(out)
	if err != nil {
		return nil, err
	}
	if back.Lt(CloneInt(x)) {
		if _, overflow := out.AddOverflow(out, uint256.NewInt(1)); overflow {
			return nil, ErrOverflow
		}
	}
	return out, nil
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b Decimal) Decimal {
	if a.LT(b) {
		return a
	}
	return b
}

// MaxOfDecimals returns the larger of a and b.
func MaxOfDecimals(a, b Decimal) Decimal {
	if a.GT(b) {
		return a
	}
	return b
}

func (d Decimal) String() string {
	return decimal.NewFromBigInt(d.atomics.ToBig(), -DecimalPlaces).String()
}

// MarshalText renders the decimal string so JSON, TOML and YAML encoders all
// see "0.75" rather than the raw atomics.
func (d Decimal) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Decimal) UnmarshalText(text []byte) error {
	parsed, err := ParseDecimal(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EncodeRLP stores the atomics as a big integer.
func (d Decimal) EncodeRLP(w io.Writer) error { return rlp.Encode(w, d.atomics.ToBig()) }

func (d *Decimal) DecodeRLP(s *rlp.Stream) error {
	value, err := s.BigInt()
	if err != nil {
		return err
	}
	atomics, overflow := uint256.FromBig(value)
	if overflow {
		return ErrOverflow
	}
	d.atomics = *atomics
	return nil
}

// Float64 is a lossy conversion for metrics and logs.
func (d Decimal) Float64() float64 {
	return decimal.NewFromBigInt(d.atomics.ToBig(), -DecimalPlaces).InexactFloat64()
}
