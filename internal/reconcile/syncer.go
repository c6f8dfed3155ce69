package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// SessionSource is the part of the session manager the Syncer follows.
type SessionSource interface {
	Current() session.Session
	Subscribe(ch chan<- session.Change) event.Subscription
}

// Clock supplies "now" for auction views. chains.HeadTracker is one.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Syncer keeps Views current. Every session change, filter change or refresh
// starts a new pass tagged with a sequence number; a pass that finishes after
// a newer one was started is discarded.
type Syncer struct {
	rec      *Reconciler
	sessions SessionSource
	clock    Clock

	pubMu  sync.Mutex
	mu     sync.Mutex
	seq    uint64
	filter Filter
	views  Views
	cancel context.CancelFunc

	feed event.Feed

	changes chan session.Change
	sub     event.Subscription
	quit    chan struct{}
	done    chan struct{}
	started bool
	wg      sync.WaitGroup
	once    sync.Once
}

func NewSyncer(rec *Reconciler, sessions SessionSource, clock Clock) *Syncer {
	if clock == nil {
		clock = wallClock{}
	}
	return &Syncer{
		rec:      rec,
		sessions: sessions,
		clock:    clock,
		views:    Views{Owned: []TokenView{}, Marketplace: []ListingView{}, Auctions: []AuctionView{}, Collection: []TokenView{}},
		changes:  make(chan session.Change, 16),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start follows session changes until Stop and runs the first pass.
func (s *Syncer) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.sub = s.sessions.Subscribe(s.changes)
	go s.loop()
	s.Refresh()
}

func (s *Syncer) Stop() {
	s.once.Do(func() {
		close(s.quit)
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.done
		}
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *Syncer) Views() Views {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views
}

func (s *Syncer) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.clone()
}

// Subscribe delivers every published Views. Receivers must keep draining ch.
func (s *Syncer) Subscribe(ch chan<- Views) event.Subscription {
	return s.feed.Subscribe(ch)
}

// SetFilter starts a new pass only when f differs from the current filter.
func (s *Syncer) SetFilter(f Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.filter.Equal(f) {
		s.mu.Unlock()
		return nil
	}
	s.filter = f.clone()
	s.mu.Unlock()
	s.Refresh()
	return nil
}

// Refresh starts a new pass against the current session and filter.
func (s *Syncer) Refresh() {
	s.start(s.sessions.Current(), false)
}

func (s *Syncer) loop() {
	defer close(s.done)
	defer s.sub.Unsubscribe()
	for {
		select {
		case <-s.quit:
			return
		case err := <-s.sub.Err():
			if err != nil {
				log.Error("session subscription failed", "error", err)
			}
			return
		case c := <-s.changes:
			// A pending Connecting change carries nothing to load.
			if c.Session.Status == session.Connecting {
				continue
			}
			s.start(c.Session, !c.Session.IsConnected() || c.Reload)
		}
	}
}

// start bumps the sequence, cancels the pass in flight and launches a new
// one. With clear set, the session-scoped views are emptied and published
// before the pass begins.
func (s *Syncer) start(sess session.Session, clear bool) {
	s.pubMu.Lock()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	filter := s.filter.clone()

	var cleared *Views
	if clear {
		v := s.views
		v.Seq = seq
		v.Session = sess
		v.Owned = []TokenView{}
		v.UpdatedAt = time.Now()
		v.Marketplace = Annotate(v.Marketplace, sess)
		s.views = v
		cleared = &v
	}
	s.mu.Unlock()
	if cleared != nil {
		s.feed.Send(*cleared)
	}
	s.pubMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, seq, sess, filter)
	}()
}

func (s *Syncer) run(ctx context.Context, seq uint64, sess session.Session, filter Filter) {
	snap, err := s.rec.LoadAll(ctx, sess, filter, s.clock.Now())
	if err != nil && ctx.Err() != nil {
		return
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		log.Info("discarding stale views", "seq", seq, "latest", s.seq)
		return
	}

	v := s.views
	v.Seq = seq
	v.Session = sess
	v.Filter = filter.View()
	v.UpdatedAt = time.Now()
	v.Errors = nil
	if err != nil {
		// Counter unreadable: keep the previous views, flagged.
		v.Errors = []string{err.Error()}
	} else {
		if snap.Owned != nil {
			v.Owned = snap.Owned
		}
		if snap.Marketplace != nil {
			v.Marketplace = snap.Marketplace
		}
		if snap.Auctions != nil {
			v.Auctions = snap.Auctions
		}
		if snap.Collection != nil {
			v.Collection = snap.Collection
		}
		for _, e := range snap.Errors {
			v.Errors = append(v.Errors, e.Error())
		}
	}
	if !sess.IsConnected() {
		v.Owned = []TokenView{}
	}
	v.Marketplace = Annotate(v.Marketplace, sess)
	s.views = v
	s.mu.Unlock()

	if err != nil {
		log.Warn("reconcile failed", "seq", seq, "error", err)
	}
	s.feed.Send(v)
}
