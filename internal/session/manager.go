// Package session owns the wallet session state machine:
// Disconnected -> Connecting -> Connected -> Disconnected.
package session

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/networks"
	"github.com/olympus-market/olympus-client/internal/provider"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/sync/singleflight"
)

// ErrSuperseded is returned to a connect caller whose result arrived after
// a newer session change; the result was dropped.
var ErrSuperseded = errors.New("connect superseded by a newer session change")

type Config struct {
	ConnectTimeout time.Duration
}

type Manager struct {
	provider provider.Provider
	cfg      Config

	// pubMu orders transitions together with their notifications.
	pubMu sync.Mutex
	mu    sync.RWMutex
	cur   Session

	connects singleflight.Group
	feed     event.Feed

	accountsCh  chan []common.Address
	chainCh     chan *big.Int
	accountsSub event.Subscription
	chainSub    event.Subscription

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewManager(p provider.Provider, cfg Config) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = constants.DefaultConnectTimeout
	}
	m := &Manager{
		provider:   p,
		cfg:        cfg,
		accountsCh: make(chan []common.Address, 16),
		chainCh:    make(chan *big.Int, 16),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	m.accountsSub = p.SubscribeAccountsChanged(m.accountsCh)
	m.chainSub = p.SubscribeChainChanged(m.chainCh)
	go m.loop()
	return m
}

// Current returns a copy of the session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur.clone()
}

func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur.Generation
}

// Subscribe delivers every Change in order. Receivers must keep draining ch.
func (m *Manager) Subscribe(ch chan<- Change) event.Subscription {
	return m.feed.Subscribe(ch)
}

// Connect is a no-op returning the session when already connected. While a
// connect is in flight every caller shares its result; the wallet sees one
// request.
func (m *Manager) Connect(ctx context.Context) (Session, error) {
	if cur := m.Current(); cur.Status == Connected {
		return cur, nil
	}

	resCh := m.connects.DoChan("connect", func() (any, error) {
		return m.connect(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return m.Current(), errs.Timeout(ctx.Err())
	case res := <-resCh:
		if res.Err != nil {
			return m.Current(), res.Err
		}
		return res.Val.(Session), nil
	}
}

func (m *Manager) connect(ctx context.Context) (Session, error) {
	var (
		gen     uint64
		already *Session
	)
	m.transition(func(s *Session) (Change, bool) {
		if s.Status == Connected {
			c := s.clone()
			already = &c
			return Change{}, false
		}
		s.Generation++
		s.Status = Connecting
		s.Account, s.ChainID = nil, nil
		gen = s.Generation
		return Change{Session: s.clone(), Reason: ReasonConnecting}, true
	})
	if already != nil {
		return *already, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	account, err := m.provider.Connect(ctx)
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
	}
	if err != nil {
		err = errs.Timeout(err)
	}
	chainID, _ := m.provider.CurrentChainID()

	var (
		out   Session
		stale bool
	)
	m.transition(func(s *Session) (Change, bool) {
		if s.Generation != gen {
			stale = true
			return Change{}, false
		}
		s.Generation++
		if err != nil {
			*s = Session{Generation: s.Generation, Status: Disconnected}
			out = s.clone()
			return Change{Session: out, Reason: ReasonConnectFailed}, true
		}
		a := account
		s.Account = &a
		s.ChainID = chainID
		s.Status = Connected
		out = s.clone()
		return Change{Session: out, Reason: ReasonConnected}, true
	})

	if stale {
		log.Warn("dropping stale connect result", "generation", gen, "error", err)
		// The wallet granted access the session no longer wants.
		if err == nil && m.Current().Status != Connected {
			if derr := m.provider.Disconnect(ctx); derr != nil {
				log.Warn("wallet disconnect after stale connect failed", "error", derr)
			}
		}
		return m.Current(), ErrSuperseded
	}
	if err != nil {
		log.Warn("wallet connect failed", "generation", out.Generation, "code", errs.Code(err), "error", err)
		return out, err
	}
	logSession("session connected", out)
	return out, nil
}

// Disconnect clears the session before any wallet round trip.
func (m *Manager) Disconnect(ctx context.Context) Session {
	var out Session
	m.transition(func(s *Session) (Change, bool) {
		*s = Session{Generation: s.Generation + 1, Status: Disconnected}
		out = s.clone()
		return Change{Session: out, Reason: ReasonDisconnected}, true
	})
	logSession("session disconnected", out)

	if err := m.provider.Disconnect(ctx); err != nil {
		log.Warn("wallet disconnect failed", "error", err)
	}
	return out
}

// RequireChain fails unless the session is connected to want.
func (m *Manager) RequireChain(want *big.Int) (Session, error) {
	cur := m.Current()
	if !cur.IsConnected() {
		return cur, errors.Mark(errors.New("connect a wallet first"), errs.ErrNotConnected)
	}
	return cur, networks.CheckMatch(want, cur.ChainID)
}

func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.quit)
		<-m.done
		m.accountsSub.Unsubscribe()
		m.chainSub.Unsubscribe()
	})
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			return
		case accounts := <-m.accountsCh:
			m.onAccountsChanged(accounts)
		case chainID := <-m.chainCh:
			m.onChainChanged(chainID)
		case err := <-m.accountsSub.Err():
			if err != nil {
				log.Error("accounts subscription failed", "error", err)
			}
			return
		case err := <-m.chainSub.Err():
			if err != nil {
				log.Error("chain subscription failed", "error", err)
			}
			return
		}
	}
}

func (m *Manager) onAccountsChanged(accounts []common.Address) {
	var out Session
	changed := m.transition(func(s *Session) (Change, bool) {
		if s.Status != Connected {
			return Change{}, false
		}
		if len(accounts) == 0 {
			*s = Session{Generation: s.Generation + 1, Status: Disconnected}
			out = s.clone()
			return Change{Session: out, Reason: ReasonRevoked}, true
		}
		if s.Account != nil && *s.Account == accounts[0] {
			return Change{}, false
		}
		a := accounts[0]
		s.Account = &a
		s.Generation++
		out = s.clone()
		return Change{Session: out, Reason: ReasonAccountChanged}, true
	})
	if changed {
		logSession("wallet accounts changed", out)
	}
}

func (m *Manager) onChainChanged(chainID *big.Int) {
	var out Session
	changed := m.transition(func(s *Session) (Change, bool) {
		if s.Status != Connected || chainID == nil {
			return Change{}, false
		}
		if s.ChainID != nil && s.ChainID.Cmp(chainID) == 0 {
			return Change{}, false
		}
		s.ChainID = new(big.Int).Set(chainID)
		s.Generation++
		out = s.clone()
		return Change{Session: out, Reason: ReasonChainChanged, Reload: true}, true
	})
	if changed {
		logSession("wallet chain changed", out)
	}
}

// transition applies fn under the state lock and publishes its change
// before any later transition can run.
func (m *Manager) transition(fn func(s *Session) (Change, bool)) bool {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	change, ok := fn(&m.cur)
	m.mu.Unlock()

	if ok {
		m.feed.Send(change)
	}
	return ok
}

func logSession(msg string, s Session) {
	account, chainID := "", ""
	if s.Account != nil {
		account = s.Account.Hex()
	}
	if s.ChainID != nil {
		chainID = s.ChainID.String()
	}
	log.Info(msg, "generation", s.Generation, "status", s.Status.String(), "account", account, "chain_id", chainID)
}
