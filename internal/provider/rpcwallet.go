package provider

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"
)

type RPCWalletConfig struct {
	URL          string
	PollInterval time.Duration
}

// RPCWallet talks EIP-1193 style JSON-RPC to an external wallet endpoint.
// Changes are detected by polling eth_accounts and eth_chainId.
type RPCWallet struct {
	Notifier

	cfg RPCWalletConfig

	mu          sync.Mutex
	client      *rpc.Client
	stopWatcher context.CancelFunc
	watcherDone chan struct{}
}

func NewRPCWallet(cfg RPCWalletConfig) *RPCWallet {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = constants.DefaultWalletPollEvery
	}
	return &RPCWallet{cfg: cfg}
}

// NewRPCWalletWithClient uses an already dialed client.
func NewRPCWalletWithClient(client *rpc.Client, cfg RPCWalletConfig) *RPCWallet {
	w := NewRPCWallet(cfg)
	w.client = client
	return w
}

func (w *RPCWallet) rpcClient(ctx context.Context) (*rpc.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return w.client, nil
	}
	if strings.TrimSpace(w.cfg.URL) == "" {
		return nil, errs.NoProvider(errors.New("wallet rpc url is empty"))
	}
	client, err := rpc.DialContext(ctx, w.cfg.URL)
	if err != nil {
		return nil, errs.NoProvider(errors.Wrapf(err, "dial wallet %s", w.cfg.URL))
	}
	w.client = client
	return client, nil
}

func (w *RPCWallet) Connect(ctx context.Context) (common.Address, error) {
	client, err := w.rpcClient(ctx)
	if err != nil {
		return common.Address{}, err
	}

	var accounts []common.Address
	if err := client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return common.Address{}, classifyRPCError(err, "eth_requestAccounts")
	}
	if len(accounts) == 0 {
		return common.Address{}, errs.UserRejected(errors.New("wallet returned no accounts"))
	}

	var chainID hexutil.Big
	if err := client.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		return common.Address{}, classifyRPCError(err, "eth_chainId")
	}

	w.Seed(accounts, chainID.ToInt())
	w.startWatcher()

	log.Info("wallet connected", "provider", "rpc", "account", accounts[0].Hex(), "chain_id", chainID.ToInt().String())
	return accounts[0], nil
}

func (w *RPCWallet) Disconnect(ctx context.Context) error {
	w.stop()
	w.Reset()

	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return nil
	}

	// Not every wallet supports revocation; local state is already cleared.
	params := map[string]any{"eth_accounts": map[string]any{}}
	if err := client.CallContext(ctx, nil, "wallet_revokePermissions", params); err != nil {
		log.Warn("wallet_revokePermissions failed", "error", err)
	}
	return nil
}

func (w *RPCWallet) Close() error {
	w.stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
	return nil
}

func (w *RPCWallet) startWatcher() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopWatcher != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.stopWatcher = cancel
	w.watcherDone = done
	go w.watch(ctx, done)
}

func (w *RPCWallet) stop() {
	w.mu.Lock()
	cancel, done := w.stopWatcher, w.watcherDone
	w.stopWatcher, w.watcherDone = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (w *RPCWallet) watch(ctx context.Context, done chan struct{}) {
	defer close(done)

	duration := w.cfg.PollInterval
	cfg := retry.DefaultConfig()
	cfg.MaxDelayBeforeRetrying = duration
	cfg.InitialDelayBeforeRetrying = duration / 10

	timer := time.NewTimer(duration)
	defer timer.Stop()
	numPolls := 0
	for {
		timer.Reset(duration)
		select {
		case <-ctx.Done():
			log.Info("wallet watcher exiting", "numPolls", numPolls)
			return
		case <-timer.C:
		}

		var (
			accounts []common.Address
			chainID  *big.Int
		)
		pollCtx, cancel := context.WithTimeout(ctx, 5*duration)
		_, err := retry.Retry(pollCtx, cfg,
			func(ctx context.Context) ([]interface{}, error) {
				numPolls++
				var err error
				accounts, chainID, err = w.poll(ctx)
				return nil, err
			},
			nil, // always retry
			"poll wallet state")
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Warn("wallet poll failed", "error", err)
			continue
		}

		// chain first so dependants reload before re-reading identity
		w.UpdateChainID(chainID)
		w.UpdateAccounts(accounts)
	}
}

func (w *RPCWallet) poll(ctx context.Context) ([]common.Address, *big.Int, error) {
	client, err := w.rpcClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	var accounts []common.Address
	if err := client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, nil, errors.Wrap(err, "eth_accounts")
	}
	var chainID hexutil.Big
	if err := client.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		return nil, nil, errors.Wrap(err, "eth_chainId")
	}
	return accounts, chainID.ToInt(), nil
}

// Transactor signs through the wallet with eth_signTransaction, so every
// transaction goes through the wallet's own confirmation prompt.
func (w *RPCWallet) Transactor(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	from, ok := w.CurrentAccount()
	if !ok {
		return nil, errors.Mark(errors.New("no authorized account"), errs.ErrNotConnected)
	}
	client, err := w.rpcClient(ctx)
	if err != nil {
		return nil, err
	}
	if chainID == nil {
		return nil, errors.New("chain id is nil")
	}
	signerChain := new(big.Int).Set(chainID)

	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != from {
				return nil, errors.New("not authorized to sign for this account")
			}
			return signTransaction(ctx, client, from, signerChain, tx)
		},
	}, nil
}

type signResult struct {
	Raw hexutil.Bytes `json:"raw"`
}

func signTransaction(ctx context.Context, client *rpc.Client, from common.Address, chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	args := map[string]any{
		"from":    from,
		"gas":     hexutil.Uint64(tx.Gas()),
		"value":   (*hexutil.Big)(tx.Value()),
		"nonce":   hexutil.Uint64(tx.Nonce()),
		"data":    hexutil.Bytes(tx.Data()),
		"chainId": (*hexutil.Big)(chainID),
	}
	if tx.To() != nil {
		args["to"] = tx.To()
	}
	if tx.Type() == types.DynamicFeeTxType {
		args["maxFeePerGas"] = (*hexutil.Big)(tx.GasFeeCap())
		args["maxPriorityFeePerGas"] = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args["gasPrice"] = (*hexutil.Big)(tx.GasPrice())
	}

	var raw json.RawMessage
	if err := client.CallContext(ctx, &raw, "eth_signTransaction", args); err != nil {
		return nil, classifyRPCError(err, "eth_signTransaction")
	}

	// Wallets answer either with the raw hex or with {raw, tx}.
	var encoded hexutil.Bytes
	if err := json.Unmarshal(raw, &encoded); err != nil {
		var res signResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, errors.Wrap(err, "decode eth_signTransaction result")
		}
		encoded = res.Raw
	}
	if len(encoded) == 0 {
		return nil, errors.New("wallet returned an empty signed transaction")
	}

	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(encoded); err != nil {
		return nil, errors.Wrap(err, "decode signed transaction")
	}
	return signed, nil
}

// classifyRPCError maps wallet JSON-RPC failures onto the error taxonomy.
func classifyRPCError(err error, method string) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case constants.RPCCodeUserRejected, constants.RPCCodeUnauthorized:
			return errs.UserRejected(errors.Wrap(err, method))
		case constants.RPCCodeMethodNotFound:
			return errs.NoProvider(errors.Wrapf(err, "wallet does not support %s", method))
		}
		return errors.Wrap(err, method)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Timeout(errors.Wrap(err, method))
	}
	if errors.Is(err, context.Canceled) {
		return errors.Wrap(err, method)
	}
	// transport failures mean nothing is listening
	return errs.NoProvider(errors.Wrap(err, method))
}
