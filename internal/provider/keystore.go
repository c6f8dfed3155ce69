package provider

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/term"
)

// PassphraseFunc asks the user to unlock account. An empty answer is a refusal.
type PassphraseFunc func(ctx context.Context, account common.Address) (string, error)

type KeystoreConfig struct {
	Dir string
	// Account selects a key; the first key in Dir is used when zero.
	Account common.Address
	// ChainID is reported as the wallet's chain; a local keystore signs for any chain.
	ChainID *big.Int
	Prompt  PassphraseFunc
	// Light selects the cheap scrypt parameters, for tests and throwaway keys.
	Light bool
}

// Keystore is a wallet backed by an encrypted key directory.
type Keystore struct {
	Notifier

	cfg KeystoreConfig
	ks  *keystore.KeyStore

	mu       sync.Mutex
	unlocked *accounts.Account
	prompt   *pendingPrompt
	events   chan accounts.WalletEvent
	sub      event.Subscription
	done     chan struct{}
}

func NewKeystore(cfg KeystoreConfig) (*Keystore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errs.NoProvider(errors.New("keystore dir is empty"))
	}
	if cfg.Prompt == nil {
		cfg.Prompt = TerminalPassphrase
	}

	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if cfg.Light {
		scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	}

	k := &Keystore{
		cfg:    cfg,
		ks:     keystore.NewKeyStore(cfg.Dir, scryptN, scryptP),
		events: make(chan accounts.WalletEvent, 16),
		done:   make(chan struct{}),
	}
	k.sub = k.ks.Subscribe(k.events)
	go k.watch()
	return k, nil
}

// KeyStore exposes the underlying store, e.g. for importing keys.
func (k *Keystore) KeyStore() *keystore.KeyStore {
	return k.ks
}

func (k *Keystore) selectAccount() (accounts.Account, error) {
	all := k.ks.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, errs.NoProvider(errors.Newf("no keys in %s", k.cfg.Dir))
	}
	if k.cfg.Account == (common.Address{}) {
		return all[0], nil
	}
	acct, err := k.ks.Find(accounts.Account{Address: k.cfg.Account})
	if err != nil {
		return accounts.Account{}, errs.NoProvider(errors.Wrapf(err, "key %s", k.cfg.Account.Hex()))
	}
	return acct, nil
}

func (k *Keystore) Connect(ctx context.Context) (common.Address, error) {
	acct, err := k.selectAccount()
	if err != nil {
		return common.Address{}, err
	}

	p := k.startPrompt(ctx, acct.Address)
	var pass string
	select {
	case <-ctx.Done():
		// The prompt keeps running; the next Connect picks up its answer.
		return common.Address{}, errs.Timeout(errors.Wrap(ctx.Err(), "passphrase prompt"))
	case <-p.done:
		k.finishPrompt(p)
		if p.err != nil {
			return common.Address{}, errs.UserRejected(errors.Wrap(p.err, "passphrase prompt"))
		}
		pass = p.pass
	}
	if pass == "" {
		return common.Address{}, errs.UserRejected(errors.New("empty passphrase"))
	}

	if err := k.ks.Unlock(acct, pass); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return common.Address{}, errs.UserRejected(errors.Wrap(err, "unlock"))
		}
		return common.Address{}, errors.Wrap(err, "unlock")
	}

	k.mu.Lock()
	k.unlocked = &acct
	k.mu.Unlock()

	k.Seed([]common.Address{acct.Address}, k.cfg.ChainID)
	log.Info("wallet connected", "provider", "keystore", "account", acct.Address.Hex())
	return acct.Address, nil
}

// pendingPrompt is one passphrase question; done closes once it is answered.
type pendingPrompt struct {
	account common.Address
	done    chan struct{}
	pass    string
	err     error
}

// startPrompt asks for the passphrase, or joins the question already on the
// terminal for the same account.
func (k *Keystore) startPrompt(ctx context.Context, account common.Address) *pendingPrompt {
	k.mu.Lock()
	defer k.mu.Unlock()
	if p := k.prompt; p != nil && p.account == account {
		return p
	}

	p := &pendingPrompt{account: account, done: make(chan struct{})}
	k.prompt = p
	go func() {
		p.pass, p.err = k.cfg.Prompt(context.WithoutCancel(ctx), account)
		close(p.done)
	}()
	return p
}

func (k *Keystore) finishPrompt(p *pendingPrompt) {
	k.mu.Lock()
	if k.prompt == p {
		k.prompt = nil
	}
	k.mu.Unlock()
}

func (k *Keystore) Disconnect(_ context.Context) error {
	k.mu.Lock()
	acct := k.unlocked
	k.unlocked = nil
	k.mu.Unlock()

	k.Reset()
	if acct == nil {
		return nil
	}
	if err := k.ks.Lock(acct.Address); err != nil {
		return errors.Wrap(err, "lock")
	}
	return nil
}

func (k *Keystore) Transactor(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	k.mu.Lock()
	acct := k.unlocked
	k.mu.Unlock()
	if acct == nil {
		return nil, errors.Mark(errors.New("keystore is locked"), errs.ErrNotConnected)
	}

	opts, err := bind.NewKeyStoreTransactorWithChainID(k.ks, *acct, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "keystore transactor")
	}
	opts.Context = ctx
	return opts, nil
}

func (k *Keystore) Close() error {
	k.sub.Unsubscribe()
	<-k.done
	return k.Disconnect(context.Background())
}

// watch turns a dropped key file into an empty accountsChanged notification.
func (k *Keystore) watch() {
	defer close(k.done)
	for {
		select {
		case ev := <-k.events:
			if ev.Kind != accounts.WalletDropped {
				continue
			}
			k.mu.Lock()
			acct := k.unlocked
			dropped := acct != nil && ev.Wallet.Contains(*acct)
			if dropped {
				k.unlocked = nil
			}
			k.mu.Unlock()

			if dropped {
				log.Warn("unlocked key removed from keystore", "account", acct.Address.Hex())
				k.UpdateAccounts(nil)
			}
		case <-k.sub.Err():
			return
		}
	}
}

// TerminalPassphrase reads a passphrase from the controlling terminal without echo.
func TerminalPassphrase(_ context.Context, account common.Address) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	_, _ = fmt.Fprintf(os.Stderr, "Passphrase for %s: ", account.Hex())
	pw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "read passphrase")
	}
	return strings.TrimRight(string(pw), "\r\n"), nil
}
