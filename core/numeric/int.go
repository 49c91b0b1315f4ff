package numeric

import "github.com/holiman/uint256"

// CloneInt returns a copy of x, treating nil as zero.
func CloneInt(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

func CheckedAdd(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(CloneInt(x), CloneInt(y))
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func CheckedSub(x, y *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(CloneInt(x), CloneInt(y))
	if underflow {
		return nil, ErrUnderflow
	}
	return out, nil
}

func CheckedMul(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(CloneInt(x), CloneInt(y))
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// MinInt returns a copy of the smaller operand.
func MinInt(x, y *uint256.Int) *uint256.Int {
	a, b := CloneInt(x), CloneInt(y)
	if a.Lt(b) {
		return a
	}
	return b
}

// IsZeroInt reports whether x is nil or zero.
func IsZeroInt(x *uint256.Int) bool { return x == nil || x.IsZero() }
