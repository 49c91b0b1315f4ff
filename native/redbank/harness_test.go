package redbank_test

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/events"
	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/core/state"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/native/redbank/ledger"
	"github.com/mars-protocol/v1-core-sub000/storage"
)

var (
	owner      = crypto.ModuleAddress("test/owner")
	contract   = crypto.ModuleAddress("test/redbank")
	safetyFund = crypto.ModuleAddress("test/safety-fund")
	treasury   = crypto.ModuleAddress("test/treasury")
	staking    = crypto.ModuleAddress("test/staking")
	alice      = crypto.ModuleAddress("test/alice")
	bob        = crypto.ModuleAddress("test/bob")
	carol      = crypto.ModuleAddress("test/carol")

	uusd  = redbank.NativeAsset("uusd")
	uluna = redbank.NativeAsset("uluna")
	uatom = redbank.NativeAsset("uatom")
)

type harness struct {
	t      *testing.T
	db     *storage.MemDB
	engine *redbank.Engine
	ledger *ledger.Ledger
	prices *ledger.PriceTable
	events *events.Buffer
	now    int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	h := &harness{
		t:      t,
		db:     db,
		engine: redbank.NewEngine(contract),
		ledger: ledger.New(db),
		prices: ledger.NewPriceTable(db),
		events: &events.Buffer{},
		now:    1_600_000_000,
	}
	h.engine.SetBackend(state.NewRedBankBackend(db))
	h.engine.SetCollaborators(redbank.Collaborators{
		Oracle:          h.prices,
		LiquidityTokens: h.ledger,
		AssetBalances:   h.ledger,
		Registry: ledger.StaticRegistry{
			redbank.RoleSafetyFund: safetyFund,
			redbank.RoleTreasury:   treasury,
			redbank.RoleStaking:    staking,
		},
	})
	h.engine.SetEmitter(h.events)
	h.engine.SetNowFunc(func() int64 { return h.now })

	_, err := h.engine.InitGenesis(&redbank.Genesis{Config: redbank.Config{
		Owner:              owner,
		CloseFactor:        numeric.NewPercent(50),
		SafetyFundFeeShare: numeric.NewPercent(10),
		TreasuryFeeShare:   numeric.NewPercent(20),
		MarketCapacity:     8,
	}})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return h
}

func dec(s string) *numeric.Decimal {
	d := numeric.MustParseDecimal(s)
	return &d
}

func amount(x uint64) *uint256.Int { return uint256.NewInt(x) }

func linearParams() redbank.AssetParams {
	strategy := redbank.NewLinearStrategy(redbank.LinearParams{
		OptimalUtilizationRate: numeric.NewPercent(80),
		Base:                   numeric.NewPercent(20),
		Slope1:                 numeric.NewPercent(50),
		Slope2:                 numeric.OneDecimal(),
	})
	return redbank.AssetParams{
		ReserveFactor:        dec("0.2"),
		MaxLoanToValue:       dec("0.5"),
		MaintenanceMargin:    dec("0.6"),
		LiquidationBonus:     dec("0.1"),
		InterestRateStrategy: &strategy,
	}
}

func (h *harness) apply(effects []redbank.Effect) []ledger.Instantiated {
	h.t.Helper()
	created, err := h.ledger.Apply(effects)
	if err != nil {
		h.t.Fatalf("apply effects: %v", err)
	}
	return created
}

// list initialises asset, activates its liquidity token and prices it at 1.
func (h *harness) list(asset redbank.Asset) crypto.Address {
	h.t.Helper()
	effects, err := h.engine.InitAsset(owner, asset, linearParams())
	if err != nil {
		h.t.Fatalf("init %s: %v", asset, err)
	}
	created := h.apply(effects)
	if len(created) != 1 {
		h.t.Fatalf("expected one liquidity token, got %d", len(created))
	}
	if _, err := h.engine.InitAssetTokenCallback(created[0].Token, asset); err != nil {
		h.t.Fatalf("activate %s: %v", asset, err)
	}
	h.setPrice(asset, "1")
	return created[0].Token
}

func (h *harness) setPrice(asset redbank.Asset, price string) {
	h.t.Helper()
	if err := h.prices.SetPrice(asset, numeric.MustParseDecimal(price)); err != nil {
		h.t.Fatalf("price: %v", err)
	}
}

// send moves funds from holder into the contract, minting them first.
func (h *harness) send(holder crypto.Address, asset redbank.Asset, x uint64) {
	h.t.Helper()
	if err := h.ledger.Credit(asset, holder, amount(x)); err != nil {
		h.t.Fatalf("credit: %v", err)
	}
	if err := h.ledger.Transfer(asset, holder, contract, amount(x)); err != nil {
		h.t.Fatalf("fund contract: %v", err)
	}
}

func (h *harness) deposit(user crypto.Address, asset redbank.Asset, x uint64) {
	h.t.Helper()
	h.send(user, asset, x)
	effects, err := h.engine.Deposit(user, crypto.Address{}, asset, amount(x))
	if err != nil {
		h.t.Fatalf("deposit %d %s: %v", x, asset, err)
	}
	h.apply(effects)
}

func (h *harness) borrow(user crypto.Address, asset redbank.Asset, x uint64) error {
	h.t.Helper()
	effects, err := h.engine.Borrow(user, asset, amount(x), crypto.Address{})
	if err != nil {
		return err
	}
	h.apply(effects)
	return nil
}

func (h *harness) market(asset redbank.Asset) *redbank.Market {
	h.t.Helper()
	m, err := h.engine.QueryMarket(asset)
	if err != nil {
		h.t.Fatalf("query market: %v", err)
	}
	return m
}

func (h *harness) balance(asset redbank.Asset, holder crypto.Address) uint64 {
	h.t.Helper()
	b, err := h.ledger.Balance(asset, holder)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return b.Uint64()
}

func (h *harness) tokenBalance(asset redbank.Asset, holder crypto.Address) uint64 {
	h.t.Helper()
	b, err := h.ledger.BalanceOf(h.market(asset).LiquidityToken, holder)
	if err != nil {
		h.t.Fatalf("token balance: %v", err)
	}
	return b.Uint64()
}

func (h *harness) debtScaled(asset redbank.Asset, user crypto.Address) uint64 {
	h.t.Helper()
	debts, err := h.engine.QueryUserDebt(user)
	if err != nil {
		h.t.Fatalf("query debt: %v", err)
	}
	for _, d := range debts {
		if d.Asset == asset {
			return d.AmountScaled.Uint64()
		}
	}
	h.t.Fatalf("no debt entry for %s", asset)
	return 0
}

func (h *harness) collateralEnabled(user crypto.Address, asset redbank.Asset) bool {
	h.t.Helper()
	list, err := h.engine.QueryUserCollateral(user)
	if err != nil {
		h.t.Fatalf("query collateral: %v", err)
	}
	for _, c := range list {
		if c.Asset == asset {
			return true
		}
	}
	return false
}
