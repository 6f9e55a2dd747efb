package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"potchain/core"
	"potchain/core/era"
	"potchain/core/types"
	"potchain/native/fees"
	"potchain/native/pot"
	"potchain/native/systoken"
	"potchain/storage/eventlog"
)

const maxRequestBytes = 1 << 20

// Backend is the runtime surface served over HTTP.
type Backend interface {
	EraStatus() core.EraStatus
	EraStartSession(index uint32) (uint32, bool, error)
	PotValidators(index uint32) ([]types.AccountID, bool, error)
	LastElected() ([]types.AccountID, error)
	ElectionParams() pot.Params
	SeedTrustPool() []types.AccountID
	LedgerEntries() []pot.Entry
	LedgerCapacity() uint32
	SystemTokens() ([]systoken.Token, error)
	ResolveLocalAsset(paraID, localAssetID uint32) (types.SystemTokenID, bool, error)
	Balance(account types.AccountID, token *types.SystemTokenID) (uint64, error)

	RegisterSystemToken(id types.SystemTokenID, links []types.LocalLink, rate uint64, meta systoken.Metadata) error
	RemoveSystemToken(id types.SystemTokenID) error
	SetSystemTokenRate(id types.SystemTokenID, rate uint64) error
	SetSeedTrustCount(n uint32) error
	SetTotalValidators(n uint32) error
	AddSeedTrustValidator(who types.AccountID) error
	SetMinVoteThreshold(threshold types.VoteWeight) error
	SetForcingMode(mode era.Forcing) error
	CreditBalance(account types.AccountID, token *types.SystemTokenID, amount uint64) error
	PreDispatch(req fees.BeginRequest) (*fees.PaymentTicket, error)
	PostDispatch(ticket *fees.PaymentTicket, actual uint64) (fees.FeeReceipt, error)
	CancelDispatch(ticket *fees.PaymentTicket) (uint64, error)
}

// EventSource feeds the websocket stream and the recent events endpoint.
type EventSource interface {
	Subscribe() (<-chan types.Event, func())
	Recent() []types.Event
}

// EventHistory serves indexed events. It is optional.
type EventHistory interface {
	Query(ctx context.Context, filter eventlog.Filter) ([]eventlog.Entry, error)
}

// Config configures the HTTP server.
type Config struct {
	// JWTSecret enables the admin routes. Tokens must be HS256 signed and
	// carry the admin scope.
	JWTSecret          string
	RateLimitPerSecond float64
	Burst              int
	Logger             *slog.Logger
}

// Server exposes the runtime queries, admin operations and event stream.
type Server struct {
	backend Backend
	events  EventSource
	history EventHistory
	auth    *Authenticator
	limiter *RateLimiter
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewServer constructs the server. events and history may be nil.
func NewServer(backend Backend, events EventSource, history EventHistory, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rpc")
	return &Server{
		backend: backend,
		events:  events,
		history: history,
		auth:    NewAuthenticator(cfg.JWTSecret, logger),
		limiter: NewRateLimiter(cfg.RateLimitPerSecond, cfg.Burst),
		tracer:  otel.Tracer("potchain/rpc"),
		logger:  logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestMetrics)
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/era", s.handleEra)
		r.Get("/era/{era}", s.handleEraByIndex)
		r.Get("/era/{era}/pot", s.handleEraPot)
		r.Get("/params", s.handleParams)
		r.Get("/seed-trust", s.handleSeedTrust)
		r.Get("/ledger", s.handleLedger)
		r.Get("/tokens", s.handleTokens)
		r.Get("/tokens/resolve", s.handleResolve)
		r.Get("/balances/{account}", s.handleBalance)
		r.Get("/events", s.handleEventStream)
		r.Get("/events/recent", s.handleRecentEvents)
		r.Get("/events/history", s.handleEventHistory)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeAdmin))
			r.Post("/tokens/register", s.handleRegisterToken)
			r.Post("/tokens/remove", s.handleRemoveToken)
			r.Post("/tokens/rate", s.handleSetTokenRate)
			r.Post("/election/seed-trust-count", s.handleSetSeedTrustCount)
			r.Post("/election/total-validators", s.handleSetTotalValidators)
			r.Post("/election/seed-trust", s.handleAddSeedTrust)
			r.Post("/election/min-vote-threshold", s.handleSetMinVoteThreshold)
			r.Post("/era/forcing", s.handleSetForcing)
			r.Post("/balances/credit", s.handleCredit)
			r.Post("/fees/dispatch", s.handleDispatch)
		})
	})

	return otelhttp.NewHandler(r, "potchain.rpc", otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return r.Method + " " + routePattern(r)
	}))
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
