package redbank

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
)

func TestScaleRoundTripNeverInflates(t *testing.T) {
	indices := []numeric.Decimal{
		numeric.OneDecimal(),
		numeric.MustParseDecimal("1.000000317097919837"),
		numeric.MustParseDecimal("1.1"),
		numeric.MustParseDecimal("3.333333333333333333"),
		numeric.NewDecimal(250),
	}
	amounts := []uint64{0, 1, 7, 999, 110_000, 123_456_789, 1 << 40}
	for _, index := range indices {
		bound, err := index.MulInt(uint256.NewInt(1))
		if err != nil {
			t.Fatalf("bound: %v", err)
		}
		bound.AddUint64(bound, 1)
		for _, x := range amounts {
			nominal := uint256.NewInt(x)
			scaled, err := Scale(nominal, index)
			if err != nil {
				t.Fatalf("scale %d at %s: %v", x, index, err)
			}
			back, err := Descale(scaled, index)
			if err != nil {
				t.Fatalf("descale: %v", err)
			}
			if back.Gt(nominal) {
				t.Fatalf("round trip inflated %d to %s at index %s", x, back, index)
			}
			gap := new(uint256.Int).Sub(nominal, back)
			if gap.Gt(bound) {
				t.Fatalf("round trip lost %s from %d at index %s", gap, x, index)
			}
		}
	}
}

func TestScaleCeilNeverUnderstates(t *testing.T) {
	indices := []numeric.Decimal{
		numeric.OneDecimal(),
		numeric.MustParseDecimal("1.1"),
		numeric.MustParseDecimal("2.8"),
		numeric.MustParseDecimal("3.333333333333333333"),
		numeric.MustParseDecimal("5.5"),
	}
	amounts := []uint64{0, 1, 7, 8, 999, 110_000, 1 << 40}
	for _, index := range indices {
		for _, x := range amounts {
			nominal := uint256.NewInt(x)
			floor, err := Scale(nominal, index)
			if err != nil {
				t.Fatalf("scale: %v", err)
			}
			ceil, err := ScaleCeil(nominal, index)
			if err != nil {
				t.Fatalf("scale ceil %d at %s: %v", x, index, err)
			}
			if ceil.Lt(floor) || new(uint256.Int).Sub(ceil, floor).Uint64() > 1 {
				t.Fatalf("ceil %s and floor %s differ by more than one unit", ceil, floor)
			}
			back, err := Descale(ceil, index)
			if err != nil {
				t.Fatalf("descale: %v", err)
			}
			if back.Lt(nominal) {
				t.Fatalf("scaled %s is worth %s, less than %d at index %s", ceil, back, x, index)
			}
		}
	}

	cases := []struct {
		nominal uint64
		index   string
		want    uint64
	}{
		{7, "2.8", 3},
		{14, "2.8", 5},
		{8, "5.5", 2},
		{11, "5.5", 2},
		{5, "1", 5},
	}
	for _, tc := range cases {
		got, err := ScaleCeil(uint256.NewInt(tc.nominal), numeric.MustParseDecimal(tc.index))
		if err != nil || got.Uint64() != tc.want {
			t.Fatalf("ScaleCeil(%d, %s) = %s (%v), want %d", tc.nominal, tc.index, got, err, tc.want)
		}
	}
}

func TestDepositScalingScenario(t *testing.T) {
	m := &Market{
		LiquidityIndex:             numeric.MustParseDecimal("1.1"),
		BorrowIndex:                numeric.OneDecimal(),
		LiquidityRate:              numeric.NewPercent(10),
		DebtTotalScaled:            new(uint256.Int),
		ProtocolIncomeToDistribute: new(uint256.Int),
		InterestsLastUpdated:       1_000,
	}
	if err := AccrueInterest(m, 1_100); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	// 1.1 * (1 + 0.10 * 100 / 31536000)
	if got := m.LiquidityIndex.Atomics().Uint64(); got != 1_100_000_348_807_711_820 {
		t.Fatalf("unexpected liquidity index atomics %d", got)
	}
	minted, err := Scale(uint256.NewInt(110_000), m.LiquidityIndex)
	if err != nil {
		t.Fatalf("scale: %v", err)
	}
	if minted.Uint64() != 99_999 {
		t.Fatalf("expected 99999 scaled tokens, got %s", minted)
	}
}

func TestAccrueInterestBooksReserveIncome(t *testing.T) {
	m := &Market{
		LiquidityIndex:             numeric.OneDecimal(),
		BorrowIndex:                numeric.OneDecimal(),
		LiquidityRate:              numeric.NewPercent(8),
		BorrowRate:                 numeric.NewPercent(10),
		ReserveFactor:              numeric.NewPercent(10),
		DebtTotalScaled:            uint256.NewInt(1_000_000),
		ProtocolIncomeToDistribute: uint256.NewInt(5),
	}
	if err := AccrueInterest(m, SecondsPerYear); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if !m.BorrowIndex.Equal(numeric.MustParseDecimal("1.1")) {
		t.Fatalf("unexpected borrow index %s", m.BorrowIndex)
	}
	if !m.LiquidityIndex.Equal(numeric.MustParseDecimal("1.08")) {
		t.Fatalf("unexpected liquidity index %s", m.LiquidityIndex)
	}
	if m.ProtocolIncomeToDistribute.Uint64() != 10_005 {
		t.Fatalf("expected income 10005, got %s", m.ProtocolIncomeToDistribute)
	}
	if m.InterestsLastUpdated != SecondsPerYear {
		t.Fatalf("timestamp not advanced: %d", m.InterestsLastUpdated)
	}

	before := m.Clone()
	if err := AccrueInterest(m, SecondsPerYear-10); err != nil {
		t.Fatalf("accrue backwards: %v", err)
	}
	if !m.BorrowIndex.Equal(before.BorrowIndex) || m.InterestsLastUpdated != before.InterestsLastUpdated {
		t.Fatalf("accrual with a past timestamp must be a no-op")
	}
}

func TestIndicesNeverDecrease(t *testing.T) {
	rates := []numeric.Decimal{numeric.ZeroDecimal(), numeric.NewPermille(1), numeric.NewPercent(35), numeric.NewDecimal(3)}
	steps := []uint64{0, 1, 59, 3_600, SecondsPerYear}
	for _, rate := range rates {
		m := &Market{
			LiquidityIndex:             numeric.OneDecimal(),
			BorrowIndex:                numeric.OneDecimal(),
			LiquidityRate:              rate,
			BorrowRate:                 rate,
			DebtTotalScaled:            uint256.NewInt(77),
			ProtocolIncomeToDistribute: new(uint256.Int),
		}
		now := uint64(0)
		for _, step := range steps {
			prevLiquidity, prevBorrow := m.LiquidityIndex, m.BorrowIndex
			now += step
			if err := AccrueInterest(m, now); err != nil {
				t.Fatalf("accrue: %v", err)
			}
			if m.LiquidityIndex.LT(prevLiquidity) || m.BorrowIndex.LT(prevBorrow) {
				t.Fatalf("index decreased at rate %s after %ds", rate, step)
			}
		}
	}
}

func TestUtilizationSubtractsUndistributedIncome(t *testing.T) {
	m := &Market{
		BorrowIndex:                numeric.OneDecimal(),
		DebtTotalScaled:            uint256.NewInt(1_000),
		ProtocolIncomeToDistribute: uint256.NewInt(200),
	}
	// available = 1200 - 200 = 1000, debt = 1000
	u, err := Utilization(m, uint256.NewInt(1_200), new(uint256.Int))
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if !u.Equal(numeric.NewPercent(50)) {
		t.Fatalf("expected 0.5, got %s", u)
	}
	if _, err := Utilization(m, uint256.NewInt(1_200), uint256.NewInt(1_001)); !errors.Is(err, ErrLiquidityTakenExceeded) {
		t.Fatalf("expected liquidity taken error, got %v", err)
	}
	if !errors.Is(ErrLiquidityTakenExceeded, ErrConsistency) {
		t.Fatalf("liquidity taken must be a consistency error")
	}

	m.DebtTotalScaled = new(uint256.Int)
	u, err = Utilization(m, uint256.NewInt(10), new(uint256.Int))
	if err != nil || !u.IsZero() {
		t.Fatalf("expected zero utilisation without debt, got %s %v", u, err)
	}
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{ErrInvalidAmount, ErrValidation},
		{ErrAssetAlreadyInitialized, ErrValidation},
		{ErrNotOwner, ErrUnauthorized},
		{ErrTokenAlreadySet, ErrUnauthorized},
		{ErrBorrowExceedsCollateral, ErrSolvency},
		{ErrLiquidateHealthyPosition, ErrSolvency},
		{ErrLiquidateUncollateralized, ErrSolvency},
		{ErrDebtTotalExceeded, ErrConsistency},
	}
	kinds := []error{ErrValidation, ErrUnauthorized, ErrSolvency, ErrConsistency}
	for _, tc := range cases {
		for _, kind := range kinds {
			if got := errors.Is(tc.err, kind); got != (kind == tc.kind) {
				t.Fatalf("%v: errors.Is(%v) = %v", tc.err, kind, got)
			}
		}
	}
}

func TestBitmap(t *testing.T) {
	var b Bitmap
	for _, i := range []uint32{0, 5, 63, 64, 127} {
		if err := b.Set(i); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if b.Count() != 5 {
		t.Fatalf("expected 5 bits, got %d", b.Count())
	}
	if err := b.Unset(63); err != nil {
		t.Fatalf("unset: %v", err)
	}
	got := b.Indices()
	want := []uint32{0, 5, 64, 127}
	if len(got) != len(want) {
		t.Fatalf("indices: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("indices: got %v want %v", got, want)
		}
	}
	if set, _ := b.Get(63); set {
		t.Fatalf("bit 63 should be cleared")
	}
	if err := b.Set(BitmapCapacity); !errors.Is(err, ErrBitOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if _, err := b.Get(200); !errors.Is(err, ErrBitOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestParseAsset(t *testing.T) {
	native, err := ParseAsset(" uusd ")
	if err != nil || native != NativeAsset("uusd") {
		t.Fatalf("native: %+v %v", native, err)
	}
	token := crypto.ModuleAddress("cw20")
	parsed, err := ParseAsset(token.String())
	if err != nil || parsed != TokenAsset(token) {
		t.Fatalf("token: %+v %v", parsed, err)
	}
	if NativeAsset(token.String()).Key() == TokenAsset(token).Key() {
		t.Fatalf("native denom and token must not share a key")
	}
	if _, err := ParseAsset(""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
