// Package providertest provides a scriptable wallet for tests.
package providertest

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/provider"
)

type connectResult struct {
	account common.Address
	chainID *big.Int
	err     error
}

// Fake answers Connect from a queue of scripted results. With Hold set, each
// Connect blocks until Release is called, so tests can observe the
// in-flight state.
type Fake struct {
	provider.Notifier

	ConnectCalls    atomic.Int32
	DisconnectCalls atomic.Int32

	mu      sync.Mutex
	results []connectResult
	hold    bool
	release chan struct{}
	started chan struct{}
}

var _ provider.Provider = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		release: make(chan struct{}),
		started: make(chan struct{}, 64),
	}
}

// Approve queues a successful Connect.
func (f *Fake) Approve(account common.Address, chainID int64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, connectResult{account: account, chainID: big.NewInt(chainID)})
	return f
}

// Fail queues a failed Connect.
func (f *Fake) Fail(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, connectResult{err: err})
	return f
}

// Hold makes Connect wait for Release (or ctx) before answering.
func (f *Fake) Hold() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = true
	return f
}

// Release lets every held Connect answer.
func (f *Fake) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hold {
		f.hold = false
		close(f.release)
	}
}

// Started is signalled once per Connect that reached the wallet.
func (f *Fake) Started() <-chan struct{} {
	return f.started
}

func (f *Fake) Connect(ctx context.Context) (common.Address, error) {
	f.ConnectCalls.Add(1)
	select {
	case f.started <- struct{}{}:
	default:
	}

	f.mu.Lock()
	hold, release := f.hold, f.release
	f.mu.Unlock()

	if hold {
		select {
		case <-ctx.Done():
			return common.Address{}, ctx.Err()
		case <-release:
		}
	}

	f.mu.Lock()
	if len(f.results) == 0 {
		f.mu.Unlock()
		return common.Address{}, errs.NoProvider(errors.New("fake wallet has no scripted answer"))
	}
	res := f.results[0]
	f.results = f.results[1:]
	f.mu.Unlock()

	if res.err != nil {
		return common.Address{}, res.err
	}
	f.Seed([]common.Address{res.account}, res.chainID)
	return res.account, nil
}

func (f *Fake) Disconnect(context.Context) error {
	f.DisconnectCalls.Add(1)
	f.Reset()
	return nil
}

// SwitchAccounts simulates the wallet reporting a new account list.
func (f *Fake) SwitchAccounts(accounts ...common.Address) {
	f.UpdateAccounts(accounts)
}

// SwitchChain simulates the wallet moving to another network.
func (f *Fake) SwitchChain(chainID int64) {
	f.UpdateChainID(big.NewInt(chainID))
}

// Transactor returns options whose signer records transactions without signing.
func (f *Fake) Transactor(ctx context.Context, _ *big.Int) (*bind.TransactOpts, error) {
	from, ok := f.CurrentAccount()
	if !ok {
		return nil, errors.Mark(errors.New("fake wallet not connected"), errs.ErrNotConnected)
	}
	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(_ common.Address, tx *types.Transaction) (*types.Transaction, error) {
			return tx, nil
		},
	}, nil
}

func (f *Fake) Close() error { return nil }
