package marketplace

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olympus-market/olympus-client/internal/constants"
)

// TokenMetadata is the on-chain metadata struct stored per token.
type TokenMetadata struct {
	Name        string
	Description string
	Category    uint8
	Creator     common.Address
}

func CategoryName(c uint8) string {
	if int(c) < len(constants.Categories) {
		return constants.Categories[c]
	}
	return "Unknown"
}

// CategoryIndex resolves a category name (case-insensitive) to its enum value.
func CategoryIndex(name string) (uint8, bool) {
	for i, c := range constants.Categories {
		if strings.EqualFold(c, strings.TrimSpace(name)) {
			return uint8(i), true
		}
	}
	return 0, false
}

// TokenRecord is one token as the reconciler sees it. Everything but Owner
// is fixed at mint.
type TokenRecord struct {
	TokenID     *big.Int
	Owner       common.Address
	Name        string
	Description string
	ImageURI    string
	TokenURI    string
	Category    uint8
	Creator     common.Address
	CreatedAt   time.Time
}

// ListingRecord is a fixed-price sale. At most one is active per token.
type ListingRecord struct {
	TokenID *big.Int
	Seller  common.Address
	Price   *big.Int
	Active  bool
}

// AuctionRecord is a time-boxed auction. It is terminal once now >= EndTime.
type AuctionRecord struct {
	TokenID       *big.Int
	Seller        common.Address
	StartPrice    *big.Int
	HighestBid    *big.Int
	HighestBidder *common.Address
	EndTime       time.Time
	Active        bool
}

// CurrentBid is the highest bid, or the start price before the first bid.
func (a AuctionRecord) CurrentBid() *big.Int {
	if a.HighestBid == nil || a.StartPrice != nil && a.HighestBid.Cmp(a.StartPrice) < 0 {
		if a.StartPrice == nil {
			return new(big.Int)
		}
		return new(big.Int).Set(a.StartPrice)
	}
	return new(big.Int).Set(a.HighestBid)
}

// HasBids reports whether anyone has bid.
func (a AuctionRecord) HasBids() bool {
	return a.HighestBidder != nil
}

// MinNextBid is the smallest acceptable bid: the start price before any
// bid, one wei above the highest bid after.
func (a AuctionRecord) MinNextBid() *big.Int {
	next := a.CurrentBid()
	if a.HasBids() {
		next.Add(next, big.NewInt(1))
	}
	return next
}

func (a AuctionRecord) Ended(now time.Time) bool {
	return !now.Before(a.EndTime)
}

func (a AuctionRecord) Remaining(now time.Time) time.Duration {
	if a.Ended(now) {
		return 0
	}
	return a.EndTime.Sub(now)
}
