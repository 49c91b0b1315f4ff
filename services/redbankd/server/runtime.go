package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mars-protocol/v1-core-sub000/core/events"
	"github.com/mars-protocol/v1-core-sub000/core/state"
	"github.com/mars-protocol/v1-core-sub000/crypto"
	nativecommon "github.com/mars-protocol/v1-core-sub000/native/common"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/native/redbank/ledger"
	"github.com/mars-protocol/v1-core-sub000/services/redbankd/config"
	"github.com/mars-protocol/v1-core-sub000/storage"
)

// RuntimeConfig wires the engine's collaborators.
type RuntimeConfig struct {
	Contract crypto.Address
	Registry ledger.StaticRegistry
	Pauses   nativecommon.PauseView
	Logger   *slog.Logger
	Now      func() int64
}

// Runtime executes red bank actions one at a time against db. Each action
// and the ledger effects it returns commit together or not at all.
type Runtime struct {
	mu       sync.Mutex
	db       storage.Database
	engine   *redbank.Engine
	registry ledger.StaticRegistry
	logger   *slog.Logger
	sink     events.Emitter
	tracer   trace.Tracer
}

// Session is the request-scoped view handed to action and query callbacks.
type Session struct {
	Engine *redbank.Engine
	Ledger *ledger.Ledger
	Prices *ledger.PriceTable
}

// Outcome reports what a committed action did.
type Outcome struct {
	Effects []redbank.Effect
	Tokens  []ledger.Instantiated
	Events  []events.Event
}

func NewRuntime(db storage.Database, cfg RuntimeConfig) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if cfg.Contract.IsZero() {
		return nil, fmt.Errorf("contract address required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := redbank.NewEngine(cfg.Contract)
	engine.SetPauses(cfg.Pauses)
	engine.SetLogger(logger)
	engine.SetNowFunc(cfg.Now)
	return &Runtime{
		db:       db,
		engine:   engine,
		registry: cfg.Registry,
		logger:   logger,
		sink:     logSink{logger: logger},
		tracer:   otel.Tracer("redbankd"),
	}, nil
}

// Contract returns the address holding pooled liquidity.
func (rt *Runtime) Contract() crypto.Address { return rt.engine.Contract() }

func (rt *Runtime) bind(db storage.Database) *Session {
	sess := &Session{
		Engine: rt.engine,
		Ledger: ledger.New(db),
		Prices: ledger.NewPriceTable(db),
	}
	rt.engine.SetBackend(state.NewRedBankBackend(db))
	rt.engine.SetCollaborators(redbank.Collaborators{
		Oracle:          sess.Prices,
		LiquidityTokens: sess.Ledger,
		AssetBalances:   sess.Ledger,
		Registry:        rt.registry,
	})
	return sess
}

// Execute runs fn, applies the returned effects to the ledger and activates
// any liquidity token they instantiate. Events reach the log only once
// everything has been written.
func (rt *Runtime) Execute(ctx context.Context, name string, fn func(*Session) ([]redbank.Effect, error)) (*Outcome, error) {
	_, span := rt.tracer.Start(ctx, "redbank."+name)
	defer span.End()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	cache := storage.NewCacheDB(rt.db)
	buf := &events.Buffer{}
	rt.engine.SetEmitter(buf)
	defer rt.engine.SetEmitter(nil)

	out, err := rt.apply(rt.bind(cache), fn)
	if err == nil {
		err = cache.Write()
	}
	if err != nil {
		cache.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out.Events = buf.Drain()
	for _, evt := range out.Events {
		rt.sink.Emit(evt)
	}
	span.SetAttributes(
		attribute.Int("redbank.effects", len(out.Effects)),
		attribute.Int("redbank.events", len(out.Events)),
	)
	return out, nil
}

func (rt *Runtime) apply(sess *Session, fn func(*Session) ([]redbank.Effect, error)) (*Outcome, error) {
	effects, err := fn(sess)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Effects: effects}
	created, err := sess.Ledger.Apply(effects)
	if err != nil {
		return nil, err
	}
	for _, token := range created {
		callback, err := sess.Engine.InitAssetTokenCallback(token.Token, token.Asset)
		if err != nil {
			return nil, fmt.Errorf("activate %s: %w", token.Asset, err)
		}
		if _, err := sess.Ledger.Apply(callback); err != nil {
			return nil, err
		}
		out.Effects = append(out.Effects, callback...)
	}
	out.Tokens = created
	return out, nil
}

// View runs fn against committed state. Writes made by fn are never
// persisted.
func (rt *Runtime) View(ctx context.Context, fn func(*Session) error) error {
	_, span := rt.tracer.Start(ctx, "redbank.query")
	defer span.End()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	cache := storage.NewCacheDB(rt.db)
	defer cache.Discard()
	return fn(rt.bind(cache))
}

// Bootstrap seeds oracle prices and, on an empty database, applies genesis.
func (rt *Runtime) Bootstrap(ctx context.Context, genesis *redbank.Genesis, prices []config.PriceEntry) error {
	_, err := rt.Execute(ctx, "bootstrap", func(s *Session) ([]redbank.Effect, error) {
		for _, entry := range prices {
			if err := s.Prices.SetPrice(entry.Asset, entry.Price); err != nil {
				return nil, err
			}
		}
		_, err := s.Engine.QueryConfig()
		switch {
		case err == nil:
			rt.logger.Info("redbank state found, skipping genesis")
			return nil, nil
		case !errors.Is(err, redbank.ErrConfigMissing):
			return nil, err
		case genesis == nil:
			return nil, fmt.Errorf("genesis required to initialise an empty database")
		}
		rt.logger.Info("applying redbank genesis", "markets", len(genesis.Markets))
		return s.Engine.InitGenesis(genesis)
	})
	return err
}

// logSink writes committed events to the structured log.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) Emit(evt events.Event) {
	attrs := []any{"type", evt.EventType()}
	if rec, ok := evt.(*events.Record); ok {
		for _, key := range rec.Keys() {
			attrs = append(attrs, key, rec.Attributes[key])
		}
	}
	s.logger.Info("redbank event", attrs...)
}
