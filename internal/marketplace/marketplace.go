// Package marketplace binds the MythicNFTMarketplace contract.
package marketplace

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Marketplace is a read/write binding to a deployed marketplace.
type Marketplace struct {
	MarketplaceCaller
	MarketplaceTransactor
	address common.Address
}

// MarketplaceCaller is the read-only half of the binding.
type MarketplaceCaller struct {
	contract *bind.BoundContract
}

// MarketplaceTransactor is the write-only half of the binding.
type MarketplaceTransactor struct {
	contract *bind.BoundContract
	abi      abi.ABI
}

func NewMarketplace(address common.Address, backend bind.ContractBackend) (*Marketplace, error) {
	parsed, err := MarketplaceMetaData.GetAbi()
	if err != nil {
		return nil, errors.Wrap(err, "parse marketplace abi")
	}
	contract := bind.NewBoundContract(address, *parsed, backend, backend, backend)
	return &Marketplace{
		MarketplaceCaller:     MarketplaceCaller{contract: contract},
		MarketplaceTransactor: MarketplaceTransactor{contract: contract, abi: *parsed},
		address:               address,
	}, nil
}

func NewMarketplaceCaller(address common.Address, caller bind.ContractCaller) (*MarketplaceCaller, error) {
	parsed, err := MarketplaceMetaData.GetAbi()
	if err != nil {
		return nil, errors.Wrap(err, "parse marketplace abi")
	}
	contract := bind.NewBoundContract(address, *parsed, caller, nil, nil)
	return &MarketplaceCaller{contract: contract}, nil
}

func (m *Marketplace) Address() common.Address {
	return m.address
}

func callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

// TokenCounter is the id the next mint will receive.
func (c *MarketplaceCaller) TokenCounter(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(callOpts(ctx), &out, "tokenCounter"); err != nil {
		return nil, errors.Wrap(err, "tokenCounter")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *MarketplaceCaller) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(callOpts(ctx), &out, "ownerOf", tokenID); err != nil {
		return common.Address{}, errors.Wrapf(err, "ownerOf(%s)", tokenID)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *MarketplaceCaller) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	var out []interface{}
	if err := c.contract.Call(callOpts(ctx), &out, "tokenURI", tokenID); err != nil {
		return "", errors.Wrapf(err, "tokenURI(%s)", tokenID)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *MarketplaceCaller) Metadata(ctx context.Context, tokenID *big.Int) (TokenMetadata, error) {
	var out []interface{}
	if err := c.contract.Call(callOpts(ctx), &out, "nftMetadata", tokenID); err != nil {
		return TokenMetadata{}, errors.Wrapf(err, "nftMetadata(%s)", tokenID)
	}
	return TokenMetadata{
		Name:        *abi.ConvertType(out[0], new(string)).(*string),
		Description: *abi.ConvertType(out[1], new(string)).(*string),
		Category:    *abi.ConvertType(out[2], new(uint8)).(*uint8),
		Creator:     *abi.ConvertType(out[3], new(common.Address)).(*common.Address),
	}, nil
}

func (c *MarketplaceCaller) Listing(ctx context.Context, tokenID *big.Int) (ListingRecord, error) {
	var out []interface{}
	if err := c.contract.Call(callOpts(ctx), &out, "marketplaceListings", tokenID); err != nil {
		return ListingRecord{}, errors.Wrapf(err, "marketplaceListings(%s)", tokenID)
	}
	return ListingRecord{
		TokenID: new(big.Int).Set(tokenID),
		Seller:  *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		Price:   *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Active:  *abi.ConvertType(out[2], new(bool)).(*bool),
	}, nil
}

func (c *MarketplaceCaller) Auction(ctx context.Context, tokenID *big.Int) (AuctionRecord, error) {
	var out []interface{}
	if err := c.contract.Call(callOpts(ctx), &out, "auctions", tokenID); err != nil {
		return AuctionRecord{}, errors.Wrapf(err, "auctions(%s)", tokenID)
	}

	endTime := *abi.ConvertType(out[4], new(*big.Int)).(**big.Int)
	rec := AuctionRecord{
		TokenID:    new(big.Int).Set(tokenID),
		Seller:     *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		StartPrice: *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		HighestBid: *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
		EndTime:    time.Unix(endTime.Int64(), 0).UTC(),
		Active:     *abi.ConvertType(out[5], new(bool)).(*bool),
	}
	if bidder := *abi.ConvertType(out[3], new(common.Address)).(*common.Address); bidder != (common.Address{}) {
		rec.HighestBidder = &bidder
	}
	return rec, nil
}

func (t *MarketplaceTransactor) MintNFT(opts *bind.TransactOpts, tokenURI, name, description string, category uint8) (*types.Transaction, error) {
	return t.contract.Transact(opts, "mintNFT", tokenURI, name, description, category)
}

func (t *MarketplaceTransactor) ListForSale(opts *bind.TransactOpts, tokenID, price *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "listForSale", tokenID, price)
}

func (t *MarketplaceTransactor) CancelSale(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "cancelSale", tokenID)
}

// BuyNFT is payable; opts.Value must carry the listing price.
func (t *MarketplaceTransactor) BuyNFT(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "buyNFT", tokenID)
}

func (t *MarketplaceTransactor) TransferNFT(opts *bind.TransactOpts, tokenID *big.Int, to common.Address) (*types.Transaction, error) {
	return t.contract.Transact(opts, "transferNFT", tokenID, to)
}

// CreateAuction takes the duration in seconds.
func (t *MarketplaceTransactor) CreateAuction(opts *bind.TransactOpts, tokenID, startPrice, duration *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "createAuction", tokenID, startPrice, duration)
}

// PlaceBid is payable; opts.Value is the bid.
func (t *MarketplaceTransactor) PlaceBid(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "placeBid", tokenID)
}

func (t *MarketplaceTransactor) EndAuction(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "endAuction", tokenID)
}

// MintedTokenID finds the id of a token minted in receipt (Transfer from the zero address).
func (t *MarketplaceTransactor) MintedTokenID(receipt *types.Receipt) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	transfer, ok := t.abi.Events["Transfer"]
	if !ok {
		return nil, false
	}
	for _, l := range receipt.Logs {
		if l == nil || len(l.Topics) != 4 || l.Topics[0] != transfer.ID {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != (common.Address{}) {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), true
	}
	return nil, false
}
