package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mars-protocol/v1-core-sub000/observability"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	RateLimit     RateLimit
	Auth          AuthConfig
	ShutdownGrace time.Duration
}

// Server exposes the red bank over JSON/HTTP.
type Server struct {
	cfg     Config
	runtime *Runtime
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	metrics *observability.APIMetrics
}

func New(cfg Config, runtime *Runtime, logger *slog.Logger) (*Server, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8090"
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}
	metrics := observability.API()
	return &Server{
		cfg:     cfg,
		runtime: runtime,
		logger:  logger,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit, metrics),
		metrics: metrics,
	}, nil
}

// Handler returns the routed HTTP handler wrapped in OpenTelemetry
// instrumentation.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(instrument(s.logger, s.metrics))
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/config", s.handleConfig)
		r.Get("/markets", s.handleMarkets)
		r.Route("/markets/{asset}", func(r chi.Router) {
			r.Get("/", s.handleMarket)
			r.Get("/scaled-liquidity", s.handleConvert(convertScaledLiquidity))
			r.Get("/scaled-debt", s.handleConvert(convertScaledDebt))
			r.Get("/underlying-liquidity", s.handleConvert(convertUnderlyingLiquidity))
			r.Get("/underlying-debt", s.handleConvert(convertUnderlyingDebt))
		})
		r.Route("/users/{address}", func(r chi.Router) {
			r.Get("/position", s.handlePosition)
			r.Get("/debt", s.handleUserDebt)
			r.Get("/collateral", s.handleUserCollateral)
			r.Get("/limits/{asset}", s.handleLimit)
			r.Get("/balances/{asset}", s.handleBalances)
		})

		r.Post("/deposit", s.handleDeposit)
		r.Post("/withdraw", s.handleWithdraw)
		r.Post("/borrow", s.handleBorrow)
		r.Post("/repay", s.handleRepay)
		r.Post("/liquidate", s.handleLiquidate)
		r.Post("/collateral", s.handleCollateral)
		r.Post("/transfer", s.handleTransfer)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/assets", s.handleInitAsset)
			r.Put("/assets", s.handleUpdateAsset)
			r.Put("/config", s.handleUpdateConfig)
			r.Put("/limits", s.handleUpdateLimit)
			r.Post("/distribute", s.handleDistribute)
			r.Put("/prices", s.handleSetPrices)
			r.Post("/credit", s.handleCredit)
		})
	})

	return otelhttp.NewHandler(r, "redbankd")
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("redbankd listening", "address", listener.Addr().String())
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("forcing server stop", "error", err)
			return httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
