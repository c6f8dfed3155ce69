// Package market turns user intents into marketplace transactions. Every
// intent checks the session, signs through the wallet provider, waits for
// the receipt and then asks the views to refresh.
package market

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/marketplace"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// Contract is the marketplace binding as the intents use it.
type Contract interface {
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	Listing(ctx context.Context, tokenID *big.Int) (marketplace.ListingRecord, error)
	Auction(ctx context.Context, tokenID *big.Int) (marketplace.AuctionRecord, error)

	MintNFT(opts *bind.TransactOpts, tokenURI, name, description string, category uint8) (*types.Transaction, error)
	ListForSale(opts *bind.TransactOpts, tokenID, price *big.Int) (*types.Transaction, error)
	CancelSale(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error)
	BuyNFT(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error)
	TransferNFT(opts *bind.TransactOpts, tokenID *big.Int, to common.Address) (*types.Transaction, error)
	CreateAuction(opts *bind.TransactOpts, tokenID, startPrice, duration *big.Int) (*types.Transaction, error)
	PlaceBid(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error)
	EndAuction(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error)
	MintedTokenID(receipt *types.Receipt) (*big.Int, bool)
}

// SessionGate hands out the session only when it is on the wanted chain.
type SessionGate interface {
	RequireChain(want *big.Int) (session.Session, error)
}

// Signer issues transact options for the connected wallet.
type Signer interface {
	Transactor(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)
}

type Uploader interface {
	UploadFile(ctx context.Context, name string, data []byte) (string, error)
	UploadJSON(ctx context.Context, name string, v any) (string, error)
}

type Refresher interface {
	Refresh()
}

type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

type Config struct {
	ChainID        *big.Int
	ReceiptTimeout time.Duration
}

type Deps struct {
	Sessions  SessionGate
	Signer    Signer
	Contract  Contract
	Receipts  bind.DeployBackend
	Uploads   Uploader
	Refresher Refresher
	Clock     Clock
}

type Service struct {
	Deps
	cfg Config
}

func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Sessions == nil || deps.Signer == nil || deps.Contract == nil || deps.Receipts == nil {
		return nil, errors.New("market service needs sessions, signer, contract and receipts")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, errors.New("market service needs a chain id")
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	return &Service{Deps: deps, cfg: cfg}, nil
}

// Result describes a mined intent.
type Result struct {
	IntentID    string `json:"intentId"`
	Kind        string `json:"kind"`
	TokenID     string `json:"tokenId,omitempty"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

type sendFunc func(opts *bind.TransactOpts) (*types.Transaction, error)

// require returns the session account on the marketplace chain.
func (s *Service) require() (common.Address, error) {
	sess, err := s.Sessions.RequireChain(s.cfg.ChainID)
	if err != nil {
		return common.Address{}, err
	}
	return *sess.Account, nil
}

// submit signs and sends one transaction and waits for it to be mined.
func (s *Service) submit(ctx context.Context, kind string, tokenID *big.Int, value *big.Int, send sendFunc) (Result, *types.Receipt, error) {
	res := Result{IntentID: uuid.NewString(), Kind: kind}
	if tokenID != nil {
		res.TokenID = tokenID.String()
	}

	opts, err := s.Signer.Transactor(ctx, s.cfg.ChainID)
	if err != nil {
		return res, nil, errors.Wrap(err, "transactor")
	}
	opts.Context = ctx
	if value != nil {
		opts.Value = new(big.Int).Set(value)
	}

	log.Info("submitting intent", "intent_id", res.IntentID, "kind", kind, "token_id", res.TokenID, "from", opts.From.Hex())
	tx, err := send(opts)
	if err != nil {
		log.Warn("intent not sent", "intent_id", res.IntentID, "kind", kind, "error", err)
		return res, nil, errs.Timeout(errors.Wrap(err, kind))
	}
	res.TxHash = tx.Hash().Hex()

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, s.Receipts, tx)
	if err != nil {
		return res, nil, errs.Timeout(errors.Wrapf(err, "wait for %s", res.TxHash))
	}
	res.BlockNumber = receipt.BlockNumber.Uint64()
	res.GasUsed = receipt.GasUsed

	if receipt.Status == types.ReceiptStatusFailed {
		log.Warn("intent reverted", "intent_id", res.IntentID, "kind", kind, "tx", res.TxHash)
		return res, receipt, errs.Reverted(res.TxHash)
	}

	log.Info("intent mined", "intent_id", res.IntentID, "kind", kind, "tx", res.TxHash, "block", res.BlockNumber)
	if s.Refresher != nil {
		s.Refresher.Refresh()
	}
	return res, receipt, nil
}

func (s *Service) requireOwner(ctx context.Context, tokenID *big.Int, account common.Address) error {
	owner, err := s.Contract.OwnerOf(ctx, tokenID)
	if err != nil {
		return errors.Wrapf(err, "read owner of %s", tokenID)
	}
	if owner != account {
		return errs.Invalid("token %s is not owned by %s", tokenID, account.Hex())
	}
	return nil
}

func validID(tokenID *big.Int) error {
	if tokenID == nil || tokenID.Sign() < 0 {
		return errs.Invalid("token id is required")
	}
	return nil
}

func positive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return errs.Invalid("%s must be greater than zero", name)
	}
	return nil
}

// List puts an owned token up for sale at price wei.
func (s *Service) List(ctx context.Context, tokenID, price *big.Int) (Result, error) {
	if err := validID(tokenID); err != nil {
		return Result{}, err
	}
	if err := positive("price", price); err != nil {
		return Result{}, err
	}
	account, err := s.require()
	if err != nil {
		return Result{}, err
	}
	if err := s.requireOwner(ctx, tokenID, account); err != nil {
		return Result{}, err
	}
	listing, err := s.Contract.Listing(ctx, tokenID)
	if err != nil {
		return Result{}, errors.Wrap(err, "read listing")
	}
	if listing.Active {
		return Result{}, errs.Invalid("token %s is already listed", tokenID)
	}

	res, _, err := s.submit(ctx, "list", tokenID, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return s.Contract.ListForSale(opts, tokenID, price)
	})
	return res, err
}

func (s *Service) CancelListing(ctx context.Context, tokenID *big.Int) (Result, error) {
	if err := validID(tokenID); err != nil {
		return Result{}, err
	}
	account, err := s.require()
	if err != nil {
		return Result{}, err
	}
	listing, err := s.Contract.Listing(ctx, tokenID)
	if err != nil {
		return Result{}, errors.Wrap(err, "read listing")
	}
	if !listing.Active {
		return Result{}, errs.Invalid("token %s is not listed", tokenID)
	}
	if listing.Seller != account {
		return Result{}, errs.Invalid("token %s is listed by %s", tokenID, listing.Seller.Hex())
	}

	res, _, err := s.submit(ctx, "cancel_listing", tokenID, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return s.Contract.CancelSale(opts, tokenID)
	})
	return res, err
}

// Buy pays the on-chain listing price; the caller never supplies the amount.
func (s *Service) Buy(ctx context.Context, tokenID *big.Int) (Result, error) {
	if err := validID(tokenID); err != nil {
		return Result{}, err
	}
	account, err := s.require()
	if err != nil {
		return Result{}, err
	}
	listing, err := s.Contract.Listing(ctx, tokenID)
	if err != nil {
		return Result{}, errors.Wrap(err, "read listing")
	}
	if !listing.Active {
		return Result{}, errs.Invalid("token %s is not for sale", tokenID)
	}
	if listing.Seller == account {
		return Result{}, errs.Invalid("token %s is your own listing", tokenID)
	}

	res, _, err := s.submit(ctx, "buy", tokenID, listing.Price, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return s.Contract.BuyNFT(opts, tokenID)
	})
	return res, err
}

func (s *Service) Transfer(ctx context.Context, tokenID *big.Int, to common.Address) (Result, error) {
	if err := validID(tokenID); err != nil {
		return Result{}, err
	}
	if to == (common.Address{}) {
		return Result{}, errs.Invalid("recipient address is required")
	}
	account, err := s.require()
	if err != nil {
		return Result{}, err
	}
	if to == account {
		return Result{}, errs.Invalid("recipient is the current owner")
	}
	if err := s.requireOwner(ctx, tokenID, account); err != nil {
		return Result{}, err
	}

	res, _, err := s.submit(ctx, "transfer", tokenID, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return s.Contract.TransferNFT(opts, tokenID, to)
	})
	return res, err
}

func (s *Service) CreateAuction(ctx context.Context, tokenID, startPrice *big.Int, duration time.Duration) (Result, error) {
	if err := validID(tokenID); err != nil {
		return Result{}, err
	}
	if err := positive("start price", startPrice); err != nil {
		return Result{}, err
	}
	if duration < time.Second {
		return Result{}, errs.Invalid("auction duration must be at least one second")
	}
	if duration > constants.MaxAuctionDuration {
		return Result{}, errs.Invalid("auction duration must be at most %s", constants.MaxAuctionDuration)
	}
	account, err := s.require()
	if err != nil {
		return Result{}, err
	}
	if err := s.requireOwner(ctx, tokenID, account); err != nil {
		return Result{}, err
	}
	auction, err := s.Contract.Auction(ctx, tokenID)
	if err != nil {
		return Result{}, errors.Wrap(err, "read auction")
	}
	if auction.Active {
		return Result{}, errs.Invalid("token %s already has an auction", tokenID)
	}

	seconds := big.NewInt(int64(duration / time.Second))
	res, _, err := s.submit(ctx, "create_auction", tokenID, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return s.Contract.CreateAuction(opts, tokenID, startPrice, seconds)
	})
	return res, err
}

// PlaceBid bids amount wei. Ended auctions and bids below the minimum are
// rejected before anything is signed.
func (s *Service) PlaceBid(ctx context.Context, tokenID, amount *big.Int) (Result, error) {
	if err := validID(tokenID); err != nil {
		return Result{}, err
	}
	if err := positive("bid", amount); err != nil {
		return Result{}, err
	}
	account, err := s.require()
	if err != nil {
		return Result{}, err
	}
	auction, err := s.Contract.Auction(ctx, tokenID)
	if err != nil {
		return Result{}, errors.Wrap(err, "read auction")
	}
	switch {
	case !auction.Active:
		return Result{}, errs.Invalid("token %s has no active auction", tokenID)
	case auction.Ended(s.Clock.Now()):
		return Result{}, errs.Invalid("auction for token %s has ended", tokenID)
	case auction.Seller == account:
		return Result{}, errs.Invalid("cannot bid on your own auction")
	}
	if floor := auction.MinNextBid(); amount.Cmp(floor) < 0 {
		return Result{}, errs.Invalid("bid must be at least %s wei", floor)
	}

	res, _, err := s.submit(ctx, "bid", tokenID, amount, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return s.Contract.PlaceBid(opts, tokenID)
	})
	return res, err
}

// SettleAuction ends an auction whose time is up. Anyone may settle.
func (s *Service) SettleAuction(ctx context.Context, tokenID *big.Int) (Result, error) {
	if err := validID(tokenID); err != nil {
		return Result{}, err
	}
	if _, err := s.require(); err != nil {
		return Result{}, err
	}
	auction, err := s.Contract.Auction(ctx, tokenID)
	if err != nil {
		return Result{}, errors.Wrap(err, "read auction")
	}
	if !auction.Active {
		return Result{}, errs.Invalid("token %s has no active auction", tokenID)
	}
	if !auction.Ended(s.Clock.Now()) {
		return Result{}, errs.Invalid("auction for token %s is still running", tokenID)
	}

	res, _, err := s.submit(ctx, "settle_auction", tokenID, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return s.Contract.EndAuction(opts, tokenID)
	})
	return res, err
}
