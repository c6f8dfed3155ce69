// Package provider adapts wallet backends to a single Provider interface
// with independent, multi-subscriber change notifications.
package provider

import (
	"context"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Provider is the wallet boundary. Current* reads are last-known values and
// may be stale until the next notification.
type Provider interface {
	// Connect asks the wallet for account access and returns the first
	// authorized account.
	Connect(ctx context.Context) (common.Address, error)
	Disconnect(ctx context.Context) error

	CurrentAccount() (common.Address, bool)
	CurrentChainID() (*big.Int, bool)

	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
	SubscribeChainChanged(ch chan<- *big.Int) event.Subscription

	// Transactor returns signing options for the current account on chainID.
	Transactor(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)

	Close() error
}

// Notifier holds last-known wallet state and publishes each actual change
// once, in the order changes are observed.
type Notifier struct {
	accountsFeed event.Feed
	chainFeed    event.Feed

	mu       sync.RWMutex
	accounts []common.Address
	chainID  *big.Int
}

func (n *Notifier) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return n.accountsFeed.Subscribe(ch)
}

func (n *Notifier) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return n.chainFeed.Subscribe(ch)
}

func (n *Notifier) CurrentAccount() (common.Address, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.accounts) == 0 {
		return common.Address{}, false
	}
	return n.accounts[0], true
}

func (n *Notifier) CurrentChainID() (*big.Int, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.chainID == nil {
		return nil, false
	}
	return new(big.Int).Set(n.chainID), true
}

// Seed records state without notifying; used for values a Connect call
// already returns to its caller.
func (n *Notifier) Seed(accounts []common.Address, chainID *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts = slices.Clone(accounts)
	if chainID != nil {
		n.chainID = new(big.Int).Set(chainID)
	} else {
		n.chainID = nil
	}
}

// Reset clears state without notifying.
func (n *Notifier) Reset() {
	n.Seed(nil, nil)
}

// UpdateAccounts stores accounts and notifies subscribers if they changed.
func (n *Notifier) UpdateAccounts(accounts []common.Address) bool {
	n.mu.Lock()
	if slices.Equal(n.accounts, accounts) {
		n.mu.Unlock()
		return false
	}
	n.accounts = slices.Clone(accounts)
	n.mu.Unlock()

	n.accountsFeed.Send(slices.Clone(accounts))
	return true
}

// UpdateChainID stores chainID and notifies subscribers if it changed.
func (n *Notifier) UpdateChainID(chainID *big.Int) bool {
	if chainID == nil {
		return false
	}
	n.mu.Lock()
	if n.chainID != nil && n.chainID.Cmp(chainID) == 0 {
		n.mu.Unlock()
		return false
	}
	n.chainID = new(big.Int).Set(chainID)
	n.mu.Unlock()

	n.chainFeed.Send(new(big.Int).Set(chainID))
	return true
}
