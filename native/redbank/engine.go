package redbank

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/mars-protocol/v1-core-sub000/core/events"
	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	nativecommon "github.com/mars-protocol/v1-core-sub000/native/common"
	"github.com/mars-protocol/v1-core-sub000/observability/metrics"
)

const moduleName = "redbank"

// State is the typed storage the engine reads and writes. Lookups report
// absence through the boolean rather than an error.
type State interface {
	Config() (*Config, bool, error)
	PutConfig(cfg *Config) error
	GlobalState() (*GlobalState, error)
	PutGlobalState(g *GlobalState) error

	Market(key string) (*Market, bool, error)
	// PutMarket also maintains the index and liquidity token lookups.
	PutMarket(m *Market) error
	MarketKeyByIndex(index uint32) (string, bool, error)
	MarketKeyByToken(token crypto.Address) (string, bool, error)

	User(addr crypto.Address) (*User, bool, error)
	PutUser(addr crypto.Address, u *User) error
	Debt(key string, addr crypto.Address) (*Debt, bool, error)
	PutDebt(key string, addr crypto.Address, d *Debt) error
	UncollateralizedLoanLimit(key string, addr crypto.Address) (*uint256.Int, error)
	PutUncollateralizedLoanLimit(key string, addr crypto.Address, limit *uint256.Int) error
}

// Tx is a State whose writes become visible only after Commit.
type Tx interface {
	State
	Commit() error
	Discard()
}

// Backend opens transactions against persistent state.
type Backend interface {
	Begin() (Tx, error)
}

// Engine executes red bank actions. Every action runs in its own transaction
// and either commits all of its writes or none.
type Engine struct {
	backend  Backend
	contract crypto.Address
	collab   Collaborators
	emitter  events.Emitter
	logger   *slog.Logger
	pauses   nativecommon.PauseView
	nowFn    func() int64
}

// NewEngine creates an engine for the red bank contract holding the pooled
// funds at contract.
func NewEngine(contract crypto.Address) *Engine {
	return &Engine{
		contract: contract,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetBackend wires the engine to the persistence layer.
func (e *Engine) SetBackend(b Backend) { e.backend = b }

func (e *Engine) SetCollaborators(c Collaborators) { e.collab = c }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// to a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) { e.logger = logger }

// SetNowFunc overrides the block clock. Passing nil restores wall time.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Contract returns the address holding pooled liquidity.
func (e *Engine) Contract() crypto.Address { return e.contract }

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// action carries the per-invocation context of a state transition.
type action struct {
	name    string
	tx      Tx
	now     uint64
	config  *Config
	effects []Effect
	events  []*events.Record
	touched map[string]*Market
	hooks   []func()
}

type actionFunc func(a *action) error

// execute runs fn inside a transaction. Events are emitted only after the
// transaction commits.
func (e *Engine) execute(name string, fn actionFunc) ([]Effect, error) {
	effects, err := e.run(name, true, fn)
	metrics.RedBank().ObserveAction(name, err)
	return effects, err
}

func (e *Engine) run(name string, requireConfig bool, fn actionFunc) ([]Effect, error) {
	if e == nil || e.backend == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	tx, err := e.backend.Begin()
	if err != nil {
		return nil, fmt.Errorf("redbank: begin: %w", err)
	}
	a := &action{name: name, tx: tx, now: e.now(), touched: make(map[string]*Market)}
	cfg, ok, err := tx.Config()
	if err != nil {
		tx.Discard()
		return nil, err
	}
	if !ok && requireConfig {
		tx.Discard()
		return nil, ErrConfigMissing
	}
	a.config = cfg
	if err := fn(a); err != nil {
		tx.Discard()
		if errors.Is(err, ErrConsistency) {
			e.log().Error("redbank action aborted", "action", name, "error", err)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("redbank: commit %s: %w", name, err)
	}
	for _, evt := range a.events {
		e.emitter.Emit(evt)
	}
	for _, m := range a.touched {
		observeMarket(m)
	}
	for _, hook := range a.hooks {
		hook()
	}
	e.log().Debug("redbank action committed", "action", name, "effects", len(a.effects), "time", a.now)
	return a.effects, nil
}

func observeMarket(m *Market) {
	income, _ := new(big.Float).SetInt(numeric.CloneInt(m.ProtocolIncomeToDistribute).ToBig()).Float64()
	metrics.RedBank().ObserveMarket(m.Asset.Key(),
		m.LiquidityIndex.Float64(), m.BorrowIndex.Float64(),
		m.LiquidityRate.Float64(), m.BorrowRate.Float64(), income)
}

func (a *action) effect(effs ...Effect) { a.effects = append(a.effects, effs...) }

func (a *action) emit(evt *events.Record) { a.events = append(a.events, evt) }

func (a *action) afterCommit(fn func()) { a.hooks = append(a.hooks, fn) }

func (a *action) requireOwner(sender crypto.Address) error {
	if a.config == nil || sender != a.config.Owner {
		return ErrNotOwner
	}
	return nil
}

// market loads the market for asset, reusing the copy already loaded in this
// action so both sides of a same-asset liquidation share one record.
func (a *action) market(asset Asset) (*Market, error) {
	if m, ok := a.touched[asset.Key()]; ok {
		return m, nil
	}
	m, ok, err := a.tx.Market(asset.Key())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotInitialized, asset)
	}
	a.touched[asset.Key()] = m
	return m, nil
}

func (a *action) activeMarket(asset Asset) (*Market, error) {
	m, err := a.market(asset)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotActive, asset)
	}
	return m, nil
}

func (a *action) putMarket(m *Market) error {
	a.touched[m.Asset.Key()] = m
	return a.tx.PutMarket(m)
}

func (a *action) user(addr crypto.Address) (*User, error) {
	u, ok, err := a.tx.User(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &User{}, nil
	}
	return u, nil
}

func (a *action) debt(key string, addr crypto.Address) (*Debt, error) {
	d, ok, err := a.tx.Debt(key, addr)
	if err != nil {
		return nil, err
	}
	if !ok || d == nil {
		return &Debt{AmountScaled: new(uint256.Int)}, nil
	}
	d.AmountScaled = numeric.CloneInt(d.AmountScaled)
	return d, nil
}

func (e *Engine) tokenBalance(m *Market, holder crypto.Address) (*uint256.Int, error) {
	if e.collab.LiquidityTokens == nil {
		return nil, fmt.Errorf("redbank: liquidity tokens not configured")
	}
	balance, err := e.collab.LiquidityTokens.BalanceOf(m.LiquidityToken, holder)
	if err != nil {
		return nil, fmt.Errorf("redbank: query %s liquidity token balance: %w", m.Asset, err)
	}
	return numeric.CloneInt(balance), nil
}

func (e *Engine) price(asset Asset) (numeric.Decimal, error) {
	if e.collab.Oracle == nil {
		return numeric.Decimal{}, fmt.Errorf("redbank: oracle not configured")
	}
	price, err := e.collab.Oracle.Price(asset)
	if err != nil {
		return numeric.Decimal{}, fmt.Errorf("redbank: price %s: %w", asset, err)
	}
	return price, nil
}

func (e *Engine) resolve(role Role) (crypto.Address, error) {
	if e.collab.Registry == nil {
		return crypto.Address{}, fmt.Errorf("redbank: registry not configured")
	}
	addr, err := e.collab.Registry.Resolve(role)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("redbank: resolve %s: %w", role, err)
	}
	return addr, nil
}

func pick(addr, fallback crypto.Address) crypto.Address {
	if addr.IsZero() {
		return fallback
	}
	return addr
}
