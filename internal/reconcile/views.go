package reconcile

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/marketplace"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/olympus-market/olympus-client/internal/utils"
)

type TokenView struct {
	TokenID     string     `json:"tokenId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	TokenURI    string     `json:"tokenUri"`
	Category    string     `json:"category"`
	CategoryID  uint8      `json:"categoryId"`
	Creator     string     `json:"creator"`
	Owner       string     `json:"owner"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

type ListingView struct {
	TokenView
	Seller string `json:"seller"`
	// PriceWei is exact; Price is for display only.
	PriceWei   string `json:"priceWei"`
	Price      string `json:"price"`
	Symbol     string `json:"symbol"`
	ListedByMe bool   `json:"listedByMe"`
}

type AuctionView struct {
	TokenView
	Seller          string    `json:"seller"`
	StartPriceWei   string    `json:"startPriceWei"`
	StartPrice      string    `json:"startPrice"`
	CurrentBidWei   string    `json:"currentBidWei"`
	CurrentBid      string    `json:"currentBid"`
	MinNextBidWei   string    `json:"minNextBidWei"`
	HighestBidder   string    `json:"highestBidder,omitempty"`
	EndTime         time.Time `json:"endTime"`
	RemainingSecond int64     `json:"remainingSeconds"`
	Remaining       string    `json:"remaining"`
	Ended           bool      `json:"ended"`
	Biddable        bool      `json:"biddable"`
	Symbol          string    `json:"symbol"`
}

// Views is one complete reconciliation, tagged with what it was computed for.
type Views struct {
	Seq         uint64          `json:"seq"`
	Session     session.Session `json:"session"`
	Filter      FilterView      `json:"filter"`
	Owned       []TokenView     `json:"owned"`
	Marketplace []ListingView   `json:"marketplace"`
	Auctions    []AuctionView   `json:"auctions"`
	Collection  []TokenView     `json:"collection"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Errors      []string        `json:"errors,omitempty"`
}

func formatPrice(wei *big.Int) string {
	return utils.FormatUnitsTrim(wei, constants.PriceDecimals, constants.PriceDisplayDigits)
}

func addressOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func tokenView(t marketplace.TokenRecord) TokenView {
	v := TokenView{
		TokenID:     t.TokenID.String(),
		Name:        t.Name,
		Description: t.Description,
		Image:       t.ImageURI,
		TokenURI:    t.TokenURI,
		Category:    marketplace.CategoryName(t.Category),
		CategoryID:  t.Category,
		Creator:     addressOrEmpty(t.Creator),
		Owner:       addressOrEmpty(t.Owner),
	}
	if !t.CreatedAt.IsZero() {
		at := t.CreatedAt
		v.CreatedAt = &at
	}
	return v
}

func listingView(t marketplace.TokenRecord, l marketplace.ListingRecord) ListingView {
	return ListingView{
		TokenView: tokenView(t),
		Seller:    addressOrEmpty(l.Seller),
		PriceWei:  l.Price.String(),
		Price:     formatPrice(l.Price),
		Symbol:    constants.NativeSymbol,
	}
}

func auctionView(t marketplace.TokenRecord, a marketplace.AuctionRecord, now time.Time) AuctionView {
	current := a.CurrentBid()
	minNext := a.MinNextBid()
	remaining := a.Remaining(now)
	ended := a.Ended(now)

	v := AuctionView{
		TokenView:       tokenView(t),
		Seller:          addressOrEmpty(a.Seller),
		StartPriceWei:   a.StartPrice.String(),
		StartPrice:      formatPrice(a.StartPrice),
		CurrentBidWei:   current.String(),
		CurrentBid:      formatPrice(current),
		MinNextBidWei:   minNext.String(),
		EndTime:         a.EndTime,
		RemainingSecond: int64(remaining / time.Second),
		Remaining:       utils.FormatRemaining(remaining),
		Ended:           ended,
		Biddable:        a.Active && !ended,
		Symbol:          constants.NativeSymbol,
	}
	if a.HighestBidder != nil {
		v.HighestBidder = a.HighestBidder.Hex()
	}
	return v
}

// Annotate returns a copy of listings with ListedByMe set for the session
// account. Published slices are never mutated.
func Annotate(listings []ListingView, s session.Session) []ListingView {
	out := make([]ListingView, len(listings))
	for i, l := range listings {
		l.ListedByMe = s.Account != nil && strings.EqualFold(l.Seller, s.Account.Hex())
		out[i] = l
	}
	return out
}
