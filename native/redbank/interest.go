package redbank

import (
	"fmt"
	"strings"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
)

// StrategyKind tags the active interest rate strategy.
type StrategyKind uint8

const (
	StrategyUnset StrategyKind = iota
	StrategyLinear
	StrategyDynamic
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyLinear:
		return "linear"
	case StrategyDynamic:
		return "dynamic"
	default:
		return "unset"
	}
}

func (k StrategyKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *StrategyKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "linear":
		*k = StrategyLinear
	case "dynamic":
		*k = StrategyDynamic
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidStrategy, text)
	}
	return nil
}

// LinearParams describe a kinked utilisation curve.
type LinearParams struct {
	OptimalUtilizationRate numeric.Decimal `json:"optimal_utilization_rate" toml:"optimal_utilization_rate"`
	Base                   numeric.Decimal `json:"base" toml:"base"`
	Slope1                 numeric.Decimal `json:"slope_1" toml:"slope_1"`
	Slope2                 numeric.Decimal `json:"slope_2" toml:"slope_2"`
}

// DynamicParams describe a proportional controller that nudges the borrow
// rate towards the optimal utilisation.
type DynamicParams struct {
	MinBorrowRate           numeric.Decimal `json:"min_borrow_rate" toml:"min_borrow_rate"`
	MaxBorrowRate           numeric.Decimal `json:"max_borrow_rate" toml:"max_borrow_rate"`
	OptimalUtilizationRate  numeric.Decimal `json:"optimal_utilization_rate" toml:"optimal_utilization_rate"`
	KpAugmentationThreshold numeric.Decimal `json:"kp_augmentation_threshold" toml:"kp_augmentation_threshold"`
	Kp1                     numeric.Decimal `json:"kp_1" toml:"kp_1"`
	Kp2                     numeric.Decimal `json:"kp_2" toml:"kp_2"`
	UpdateThresholdTxs      uint32          `json:"update_threshold_txs" toml:"update_threshold_txs"`
	UpdateThresholdSeconds  uint64          `json:"update_threshold_seconds" toml:"update_threshold_seconds"`
}

// DynamicState tracks when the dynamic borrow rate last moved.
type DynamicState struct {
	TxsSinceLastBorrowRateUpdate uint32 `json:"txs_since_last_borrow_rate_update"`
	BorrowRateLastUpdated        uint64 `json:"borrow_rate_last_updated"`
}

// InterestRateStrategy is a closed sum type: exactly one of Linear or Dynamic
// is set, matching Kind.
type InterestRateStrategy struct {
	Kind    StrategyKind   `json:"kind" toml:"kind"`
	Linear  *LinearParams  `json:"linear,omitempty" toml:"linear" rlp:"nil"`
	Dynamic *DynamicParams `json:"dynamic,omitempty" toml:"dynamic" rlp:"nil"`
	State   DynamicState   `json:"state" toml:"-"`
}

func NewLinearStrategy(p LinearParams) InterestRateStrategy {
	return InterestRateStrategy{Kind: StrategyLinear, Linear: &p}
}

func NewDynamicStrategy(p DynamicParams) InterestRateStrategy {
	return InterestRateStrategy{Kind: StrategyDynamic, Dynamic: &p}
}

// Clone returns a deep copy.
func (s InterestRateStrategy) Clone() InterestRateStrategy {
	out := InterestRateStrategy{Kind: s.Kind, State: s.State}
	if s.Linear != nil {
		linear := *s.Linear
		out.Linear = &linear
	}
	if s.Dynamic != nil {
		dynamic := *s.Dynamic
		out.Dynamic = &dynamic
	}
	return out
}

func (s InterestRateStrategy) Validate() error {
	one := numeric.OneDecimal()
	switch s.Kind {
	case StrategyLinear:
		if s.Linear == nil || s.Dynamic != nil {
			return fmt.Errorf("%w: linear strategy requires linear params only", ErrInvalidStrategy)
		}
		opt := s.Linear.OptimalUtilizationRate
		if opt.IsZero() || opt.GT(one) {
			return fmt.Errorf("%w: optimal utilization rate must be in (0, 1]", ErrInvalidStrategy)
		}
	case StrategyDynamic:
		if s.Dynamic == nil || s.Linear != nil {
			return fmt.Errorf("%w: dynamic strategy requires dynamic params only", ErrInvalidStrategy)
		}
		p := s.Dynamic
		if !p.MinBorrowRate.LT(p.MaxBorrowRate) {
			return fmt.Errorf("%w: min borrow rate must be below max borrow rate", ErrInvalidStrategy)
		}
		if p.OptimalUtilizationRate.IsZero() || p.OptimalUtilizationRate.GT(one) {
			return fmt.Errorf("%w: optimal utilization rate must be in (0, 1]", ErrInvalidStrategy)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidStrategy, s.Kind)
	}
	return nil
}

// BorrowRate evaluates the curve at the given utilisation.
func (s InterestRateStrategy) BorrowRate(utilization, current numeric.Decimal) (numeric.Decimal, error) {
	switch s.Kind {
	case StrategyLinear:
		if s.Linear == nil {
			return numeric.Decimal{}, ErrInvalidStrategy
		}
		return linearBorrowRate(*s.Linear, utilization)
	case StrategyDynamic:
		if s.Dynamic == nil {
			return numeric.Decimal{}, ErrInvalidStrategy
		}
		return dynamicBorrowRate(*s.Dynamic, utilization, current)
	default:
		return numeric.Decimal{}, ErrInvalidStrategy
	}
}

// Update returns the new borrow and liquidity rates. A dynamic strategy only
// re-evaluates its borrow rate once enough transactions or seconds have passed
// since the last move; State is advanced in place.
func (s *InterestRateStrategy) Update(now uint64, utilization, current, reserveFactor numeric.Decimal) (numeric.Decimal, numeric.Decimal, error) {
	borrowRate := current
	switch s.Kind {
	case StrategyLinear:
		rate, err := s.BorrowRate(utilization, current)
		if err != nil {
			return numeric.Decimal{}, numeric.Decimal{}, err
		}
		borrowRate = rate
	case StrategyDynamic:
		if s.Dynamic == nil {
			return numeric.Decimal{}, numeric.Decimal{}, ErrInvalidStrategy
		}
		if s.State.TxsSinceLastBorrowRateUpdate < ^uint32(0) {
			s.State.TxsSinceLastBorrowRateUpdate++
		}
		var elapsed uint64
		if now > s.State.BorrowRateLastUpdated {
			elapsed = now - s.State.BorrowRateLastUpdated
		}
		if s.State.TxsSinceLastBorrowRateUpdate >= s.Dynamic.UpdateThresholdTxs ||
			elapsed >= s.Dynamic.UpdateThresholdSeconds {
			rate, err := s.BorrowRate(utilization, current)
			if err != nil {
				return numeric.Decimal{}, numeric.Decimal{}, err
			}
			borrowRate = rate
			s.State = DynamicState{BorrowRateLastUpdated: now}
		}
	default:
		return numeric.Decimal{}, numeric.Decimal{}, ErrInvalidStrategy
	}
	liquidityRate, err := LiquidityRate(borrowRate, utilization, reserveFactor)
	if err != nil {
		return numeric.Decimal{}, numeric.Decimal{}, err
	}
	return borrowRate, liquidityRate, nil
}

// LiquidityRate is borrow_rate * utilization * (1 - reserve_factor).
func LiquidityRate(borrowRate, utilization, reserveFactor numeric.Decimal) (numeric.Decimal, error) {
	kept, err := numeric.OneDecimal().Sub(reserveFactor)
	if err != nil {
		return numeric.Decimal{}, err
	}
	rate, err := borrowRate.Mul(utilization)
	if err != nil {
		return numeric.Decimal{}, err
	}
	return rate.Mul(kept)
}

func linearBorrowRate(p LinearParams, utilization numeric.Decimal) (numeric.Decimal, error) {
	if utilization.LTE(p.OptimalUtilizationRate) {
		slope, err := p.Slope1.Mul(utilization)
		if err != nil {
			return numeric.Decimal{}, err
		}
		return p.Base.Add(slope)
	}
	atKink, err := p.Slope1.Mul(p.OptimalUtilizationRate)
	if err != nil {
		return numeric.Decimal{}, err
	}
	excess, err := utilization.Sub(p.OptimalUtilizationRate)
	if err != nil {
		return numeric.Decimal{}, err
	}
	beyond, err := p.Slope2.Mul(excess)
	if err != nil {
		return numeric.Decimal{}, err
	}
	rate, err := p.Base.Add(atKink)
	if err != nil {
		return numeric.Decimal{}, err
	}
	return rate.Add(beyond)
}

func dynamicBorrowRate(p DynamicParams, utilization, current numeric.Decimal) (numeric.Decimal, error) {
	above := utilization.GTE(p.OptimalUtilizationRate)
	var errValue numeric.Decimal
	var err error
	if above {
		errValue, err = utilization.Sub(p.OptimalUtilizationRate)
	} else {
		errValue, err = p.OptimalUtilizationRate.Sub(utilization)
	}
	if err != nil {
		return numeric.Decimal{}, err
	}
	kp := p.Kp1
	if errValue.GTE(p.KpAugmentationThreshold) {
		kp = p.Kp2
	}
	step, err := kp.Mul(errValue)
	if err != nil {
		return numeric.Decimal{}, err
	}
	var rate numeric.Decimal
	if above {
		if rate, err = current.Add(step); err != nil {
			return numeric.Decimal{}, err
		}
	} else if current.GT(step) {
		if rate, err = current.Sub(step); err != nil {
			return numeric.Decimal{}, err
		}
	}
	if rate.LT(p.MinBorrowRate) {
		rate = p.MinBorrowRate
	}
	if rate.GT(p.MaxBorrowRate) {
		rate = p.MaxBorrowRate
	}
	return rate, nil
}
