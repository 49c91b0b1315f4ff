package redbank

import (
	"errors"
	"testing"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
)

func linearTestStrategy() InterestRateStrategy {
	return NewLinearStrategy(LinearParams{
		OptimalUtilizationRate: numeric.NewPercent(80),
		Base:                   numeric.ZeroDecimal(),
		Slope1:                 numeric.NewPercent(4),
		Slope2:                 numeric.NewPercent(75),
	})
}

func dynamicTestStrategy() InterestRateStrategy {
	return NewDynamicStrategy(DynamicParams{
		MinBorrowRate:           numeric.NewPercent(1),
		MaxBorrowRate:           numeric.NewPercent(90),
		OptimalUtilizationRate:  numeric.NewPercent(80),
		KpAugmentationThreshold: numeric.NewPercent(20),
		Kp1:                     numeric.NewPercent(10),
		Kp2:                     numeric.NewPercent(40),
		UpdateThresholdTxs:      3,
		UpdateThresholdSeconds:  100,
	})
}

func TestLinearBorrowRate(t *testing.T) {
	s := linearTestStrategy()
	cases := map[string]string{
		"0":   "0",
		"0.4": "0.016",
		"0.8": "0.032",
		"0.9": "0.107",
		"1":   "0.182",
	}
	for u, want := range cases {
		got, err := s.BorrowRate(numeric.MustParseDecimal(u), numeric.ZeroDecimal())
		if err != nil {
			t.Fatalf("borrow rate at %s: %v", u, err)
		}
		if !got.Equal(numeric.MustParseDecimal(want)) {
			t.Fatalf("borrow rate at %s: got %s want %s", u, got, want)
		}
	}
}

func TestLinearUpdateSetsLiquidityRate(t *testing.T) {
	s := linearTestStrategy()
	borrow, liquidity, err := s.Update(10, numeric.NewPercent(90), numeric.ZeroDecimal(), numeric.NewPercent(10))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !borrow.Equal(numeric.MustParseDecimal("0.107")) {
		t.Fatalf("unexpected borrow rate %s", borrow)
	}
	// 0.107 * 0.9 * 0.9
	if !liquidity.Equal(numeric.MustParseDecimal("0.08667")) {
		t.Fatalf("unexpected liquidity rate %s", liquidity)
	}
}

func TestDynamicBorrowRateSteps(t *testing.T) {
	s := dynamicTestStrategy()
	current := numeric.NewPercent(10)

	up, err := s.BorrowRate(numeric.NewPercent(90), current)
	if err != nil {
		t.Fatalf("rate above optimal: %v", err)
	}
	if !up.Equal(numeric.NewPercent(11)) {
		t.Fatalf("expected small step up to 0.11, got %s", up)
	}

	// error 0.3 crosses the augmentation threshold; the step would go negative
	down, err := s.BorrowRate(numeric.NewPercent(50), current)
	if err != nil {
		t.Fatalf("rate below optimal: %v", err)
	}
	if !down.Equal(numeric.NewPercent(1)) {
		t.Fatalf("expected clamp to min rate, got %s", down)
	}

	capped, err := s.BorrowRate(numeric.OneDecimal(), numeric.NewPercent(89))
	if err != nil {
		t.Fatalf("rate at full utilisation: %v", err)
	}
	if !capped.Equal(numeric.NewPercent(90)) {
		t.Fatalf("expected clamp to max rate, got %s", capped)
	}
}

func TestDynamicUpdateWaitsForThreshold(t *testing.T) {
	s := dynamicTestStrategy()
	s.State = DynamicState{BorrowRateLastUpdated: 1_000}
	current := numeric.NewPercent(10)
	u := numeric.NewPercent(90)
	rf := numeric.ZeroDecimal()

	for i := 1; i <= 2; i++ {
		borrow, _, err := s.Update(1_010, u, current, rf)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !borrow.Equal(current) {
			t.Fatalf("update %d moved the rate early: %s", i, borrow)
		}
		if s.State.TxsSinceLastBorrowRateUpdate != uint32(i) {
			t.Fatalf("tx counter %d after %d updates", s.State.TxsSinceLastBorrowRateUpdate, i)
		}
	}
	borrow, liquidity, err := s.Update(1_010, u, current, rf)
	if err != nil {
		t.Fatalf("third update: %v", err)
	}
	if !borrow.Equal(numeric.NewPercent(11)) {
		t.Fatalf("expected tx threshold to trigger, got %s", borrow)
	}
	if !liquidity.Equal(numeric.MustParseDecimal("0.099")) {
		t.Fatalf("unexpected liquidity rate %s", liquidity)
	}
	if s.State != (DynamicState{BorrowRateLastUpdated: 1_010}) {
		t.Fatalf("state not reset: %+v", s.State)
	}

	borrow, _, err = s.Update(1_110, u, borrow, rf)
	if err != nil {
		t.Fatalf("time threshold update: %v", err)
	}
	if !borrow.Equal(numeric.NewPercent(12)) {
		t.Fatalf("expected time threshold to trigger, got %s", borrow)
	}
}

func TestStrategyValidate(t *testing.T) {
	if err := linearTestStrategy().Validate(); err != nil {
		t.Fatalf("linear: %v", err)
	}
	if err := dynamicTestStrategy().Validate(); err != nil {
		t.Fatalf("dynamic: %v", err)
	}
	bad := dynamicTestStrategy()
	bad.Dynamic.MinBorrowRate = bad.Dynamic.MaxBorrowRate
	if err := bad.Validate(); !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("expected invalid strategy, got %v", err)
	}
	mixed := linearTestStrategy()
	mixed.Dynamic = dynamicTestStrategy().Dynamic
	if err := mixed.Validate(); !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("expected invalid strategy for mixed params, got %v", err)
	}
	if err := (InterestRateStrategy{}).Validate(); !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("expected invalid strategy for unset kind, got %v", err)
	}
}
