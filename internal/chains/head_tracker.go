package chains

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"
)

// HeadTracker keeps the latest block header of a backend so auction views
// can be computed against chain time instead of the local clock.
type HeadTracker struct {
	backend                  Backend
	latestHeader             atomic.Pointer[types.Header]
	timeReceivedLatestHeader atomic.Pointer[time.Time]
}

func NewHeadTracker(ctx context.Context, backend Backend, every time.Duration) (*HeadTracker, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	ht := &HeadTracker{backend: backend}

	if err := ht.getLatestHeaderFromChain(ctx); err != nil {
		return nil, err
	}

	if every > 0 {
		go maintainLatestHeaderFromChain(ctx, ht, every)
	}
	return ht, nil
}

func maintainLatestHeaderFromChain(ctx context.Context, ht *HeadTracker, duration time.Duration) {
	cfg := retry.DefaultConfig()
	cfg.MaxDelayBeforeRetrying = duration
	cfg.InitialDelayBeforeRetrying = duration / 10

	timer := time.NewTimer(duration)
	defer timer.Stop()
	numCallsToChain := 0
	for {
		timer.Reset(duration)
		select {
		case <-ctx.Done():
			log.Info("head tracker exiting", "numCallsToChain", numCallsToChain)
			return
		case <-timer.C:
			_, _ = retry.Retry(ctx, cfg,
				func(ctx context.Context) ([]interface{}, error) {
					numCallsToChain++
					return nil, ht.getLatestHeaderFromChain(ctx)
				},
				nil, // always retry
				"get latest header from chain")
		}
	}
}

func (h *HeadTracker) getLatestHeaderFromChain(ctx context.Context) error {
	header, err := h.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to get latest header from chain")
	}
	if header == nil {
		return errors.New("latest header is nil")
	}
	end := time.Now().UTC()
	h.latestHeader.Store(header)
	h.timeReceivedLatestHeader.Store(&end)
	return nil
}

func (h *HeadTracker) Latest() *types.Header {
	return h.latestHeader.Load()
}

// Now is the latest block time advanced by the wall time since it was received.
func (h *HeadTracker) Now() time.Time {
	header := h.latestHeader.Load()
	received := h.timeReceivedLatestHeader.Load()
	if header == nil || received == nil {
		return time.Now().UTC()
	}
	blockTime := time.Unix(int64(header.Time), 0).UTC()
	return blockTime.Add(time.Since(*received))
}
