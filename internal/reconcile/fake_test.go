package reconcile

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olympus-market/olympus-client/internal/content"
	"github.com/olympus-market/olympus-client/internal/marketplace"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func ether(whole, milli int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(whole), big.NewInt(1_000_000_000_000_000_000))
	return v.Add(v, new(big.Int).Mul(big.NewInt(milli), big.NewInt(1_000_000_000_000_000)))
}

// fakeChain is an in-memory marketplace contract.
type fakeChain struct {
	mu       sync.Mutex
	counter  int64
	owners   map[int64]common.Address
	meta     map[int64]marketplace.TokenMetadata
	uris     map[int64]string
	listings map[int64]marketplace.ListingRecord
	auctions map[int64]marketplace.AuctionRecord
	broken   map[int64]bool

	// gate, when set, blocks the next TokenCounter call until closed.
	gate chan struct{}
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		counter:  1,
		owners:   map[int64]common.Address{},
		meta:     map[int64]marketplace.TokenMetadata{},
		uris:     map[int64]string{},
		listings: map[int64]marketplace.ListingRecord{},
		auctions: map[int64]marketplace.AuctionRecord{},
		broken:   map[int64]bool{},
	}
}

// mint adds token id owned by owner with metadata at ipfs://meta-<id>.
func (f *fakeChain) mint(id int64, owner common.Address, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[id] = owner
	f.meta[id] = marketplace.TokenMetadata{Name: name, Description: name + " description", Category: 1, Creator: owner}
	f.uris[id] = "ipfs://meta-" + big.NewInt(id).String()
	if id >= f.counter {
		f.counter = id + 1
	}
}

func (f *fakeChain) categorize(id int64, category uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.meta[id]
	m.Category = category
	f.meta[id] = m
}

func (f *fakeChain) list(id int64, price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[id] = marketplace.ListingRecord{TokenID: big.NewInt(id), Seller: f.owners[id], Price: price, Active: true}
}

func (f *fakeChain) auction(id int64, start *big.Int, end time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auctions[id] = marketplace.AuctionRecord{
		TokenID: big.NewInt(id), Seller: f.owners[id], StartPrice: start, HighestBid: new(big.Int), EndTime: end, Active: true,
	}
}

func (f *fakeChain) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeChain) TokenCounter(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	counter := f.counter
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return big.NewInt(counter), nil
}

func (f *fakeChain) OwnerOf(_ context.Context, id *big.Int) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken[id.Int64()] {
		return common.Address{}, errors.New("execution reverted")
	}
	owner, ok := f.owners[id.Int64()]
	if !ok {
		return common.Address{}, errors.New("execution reverted: ERC721: invalid token ID")
	}
	return owner, nil
}

func (f *fakeChain) TokenURI(_ context.Context, id *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uris[id.Int64()], nil
}

func (f *fakeChain) Metadata(_ context.Context, id *big.Int) (marketplace.TokenMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta[id.Int64()], nil
}

func (f *fakeChain) Listing(_ context.Context, id *big.Int) (marketplace.ListingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.listings[id.Int64()]; ok {
		return l, nil
	}
	return marketplace.ListingRecord{TokenID: id, Price: new(big.Int)}, nil
}

func (f *fakeChain) Auction(_ context.Context, id *big.Int) (marketplace.AuctionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.auctions[id.Int64()]; ok {
		return a, nil
	}
	return marketplace.AuctionRecord{TokenID: id, StartPrice: new(big.Int), HighestBid: new(big.Int)}, nil
}

// fakeMetadata serves a document for every ipfs://meta-<id> URI unless the
// URI is marked missing.
type fakeMetadata struct {
	mu      sync.Mutex
	missing map[string]bool
}

func (m *fakeMetadata) Fetch(_ context.Context, uri string) (content.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing[uri] {
		return content.Metadata{}, errors.New("404 Not Found")
	}
	return content.Metadata{
		Name:        "json name",
		Description: "json description",
		Image:       "ipfs://image-of-" + uri[len("ipfs://"):],
		CreatedAt:   "2024-05-01T10:00:00Z",
	}, nil
}
