// Package http is the loopback API the marketplace UI renders from.
package http

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/gin-gonic/gin"
	"github.com/olympus-market/olympus-client/internal/market"
	"github.com/olympus-market/olympus-client/internal/reconcile"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

type Sessions interface {
	Current() session.Session
	Connect(ctx context.Context) (session.Session, error)
	Disconnect(ctx context.Context) session.Session
	Subscribe(ch chan<- session.Change) event.Subscription
}

// ViewSource is the background-synced view state.
type ViewSource interface {
	Views() reconcile.Views
	SetFilter(f reconcile.Filter) error
	Subscribe(ch chan<- reconcile.Views) event.Subscription
}

// Loader recomputes views on demand for a request.
type Loader interface {
	LoadOwned(ctx context.Context, s session.Session) ([]reconcile.TokenView, error)
	LoadMarketplace(ctx context.Context, f reconcile.Filter) ([]reconcile.ListingView, error)
	LoadAuctions(ctx context.Context, now time.Time) ([]reconcile.AuctionView, error)
	LoadCollection(ctx context.Context, f reconcile.CollectionFilter) ([]reconcile.TokenView, error)
}

type Intents interface {
	Mint(ctx context.Context, req market.MintRequest) (market.MintResult, error)
	List(ctx context.Context, tokenID, price *big.Int) (market.Result, error)
	CancelListing(ctx context.Context, tokenID *big.Int) (market.Result, error)
	Buy(ctx context.Context, tokenID *big.Int) (market.Result, error)
	Transfer(ctx context.Context, tokenID *big.Int, to common.Address) (market.Result, error)
	CreateAuction(ctx context.Context, tokenID, startPrice *big.Int, duration time.Duration) (market.Result, error)
	PlaceBid(ctx context.Context, tokenID, amount *big.Int) (market.Result, error)
	SettleAuction(ctx context.Context, tokenID *big.Int) (market.Result, error)
}

type Clock interface {
	Now() time.Time
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	// Shown on /healthz.
	ChainID     *big.Int
	NetworkName string
	Marketplace common.Address
	// UI, when set, serves the built front end for paths outside the API.
	UI http.Handler
}

type Deps struct {
	Sessions Sessions
	Views    ViewSource
	Loader   Loader
	Intents  Intents
	Clock    Clock
}

type Server struct {
	Deps
	cfg    Config
	hub    *Hub
	engine *gin.Engine
}

func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Sessions == nil || deps.Views == nil || deps.Loader == nil || deps.Intents == nil {
		return nil, errors.New("http server needs sessions, views, loader and intents")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultListenAddr
	}
	if len(uniqueOrigins(cfg.AllowedOrigins)) == 0 {
		return nil, errors.New("at least one allowed UI origin is required")
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}

	s := &Server{Deps: deps, cfg: cfg}
	s.hub = NewHub(deps.Sessions, deps.Views, cfg.AllowedOrigins)
	s.engine = NewRouter(s)
	return s, nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
