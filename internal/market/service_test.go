package market

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/content"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/marketplace"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	chainID = big.NewInt(31337)
	now     = time.Unix(1_700_000_000, 0)
)

type fakeGate struct {
	account common.Address
	err     error
}

func (g fakeGate) RequireChain(want *big.Int) (session.Session, error) {
	if g.err != nil {
		return session.Session{}, g.err
	}
	a := g.account
	return session.Session{Account: &a, ChainID: want, Status: session.Connected, Generation: 1}, nil
}

type fakeSigner struct{ from common.Address }

func (f fakeSigner) Transactor(context.Context, *big.Int) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: f.from}, nil
}

type call struct {
	method string
	value  *big.Int
	args   []any
}

type fakeContract struct {
	mu       sync.Mutex
	calls    []call
	nonce    uint64
	sendErr  error
	owners   map[int64]common.Address
	listings map[int64]marketplace.ListingRecord
	auctions map[int64]marketplace.AuctionRecord
}

func newFakeContract() *fakeContract {
	return &fakeContract{
		owners:   map[int64]common.Address{},
		listings: map[int64]marketplace.ListingRecord{},
		auctions: map[int64]marketplace.AuctionRecord{},
	}
}

func (f *fakeContract) record(opts *bind.TransactOpts, method string, args ...any) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.calls = append(f.calls, call{method: method, value: opts.Value, args: args})
	f.nonce++
	return types.NewTx(&types.LegacyTx{Nonce: f.nonce, Value: opts.Value}), nil
}

func (f *fakeContract) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func (f *fakeContract) OwnerOf(_ context.Context, id *big.Int) (common.Address, error) {
	owner, ok := f.owners[id.Int64()]
	if !ok {
		return common.Address{}, errors.New("execution reverted")
	}
	return owner, nil
}

func (f *fakeContract) Listing(_ context.Context, id *big.Int) (marketplace.ListingRecord, error) {
	if l, ok := f.listings[id.Int64()]; ok {
		return l, nil
	}
	return marketplace.ListingRecord{TokenID: id, Price: new(big.Int)}, nil
}

func (f *fakeContract) Auction(_ context.Context, id *big.Int) (marketplace.AuctionRecord, error) {
	if a, ok := f.auctions[id.Int64()]; ok {
		return a, nil
	}
	return marketplace.AuctionRecord{TokenID: id, StartPrice: new(big.Int), HighestBid: new(big.Int)}, nil
}

func (f *fakeContract) MintNFT(opts *bind.TransactOpts, tokenURI, name, description string, category uint8) (*types.Transaction, error) {
	return f.record(opts, "mintNFT", tokenURI, name, description, category)
}

func (f *fakeContract) ListForSale(opts *bind.TransactOpts, tokenID, price *big.Int) (*types.Transaction, error) {
	return f.record(opts, "listForSale", tokenID, price)
}

func (f *fakeContract) CancelSale(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error) {
	return f.record(opts, "cancelSale", tokenID)
}

func (f *fakeContract) BuyNFT(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error) {
	return f.record(opts, "buyNFT", tokenID)
}

func (f *fakeContract) TransferNFT(opts *bind.TransactOpts, tokenID *big.Int, to common.Address) (*types.Transaction, error) {
	return f.record(opts, "transferNFT", tokenID, to)
}

func (f *fakeContract) CreateAuction(opts *bind.TransactOpts, tokenID, startPrice, duration *big.Int) (*types.Transaction, error) {
	return f.record(opts, "createAuction", tokenID, startPrice, duration)
}

func (f *fakeContract) PlaceBid(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error) {
	return f.record(opts, "placeBid", tokenID)
}

func (f *fakeContract) EndAuction(opts *bind.TransactOpts, tokenID *big.Int) (*types.Transaction, error) {
	return f.record(opts, "endAuction", tokenID)
}

func (f *fakeContract) MintedTokenID(*types.Receipt) (*big.Int, bool) {
	return big.NewInt(5), true
}

// fakeReceipts mines every transaction immediately with the given status.
type fakeReceipts struct{ status uint64 }

func (f fakeReceipts) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(7), GasUsed: 21000}, nil
}

func (f fakeReceipts) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

type fakeUploads struct {
	mu       sync.Mutex
	order    []string
	docs     []any
	failFile error
}

func (u *fakeUploads) UploadFile(_ context.Context, name string, _ []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.order = append(u.order, "file:"+name)
	if u.failFile != nil {
		return "", u.failFile
	}
	return "ipfs://QmImage", nil
}

func (u *fakeUploads) UploadJSON(_ context.Context, name string, v any) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.order = append(u.order, "json:"+name)
	u.docs = append(u.docs, v)
	return "ipfs://QmMeta", nil
}

type countingRefresher struct{ n int }

func (r *countingRefresher) Refresh() { r.n++ }

type fixedClock struct{}

func (fixedClock) Now() time.Time { return now }

type harness struct {
	svc       *Service
	contract  *fakeContract
	uploads   *fakeUploads
	refresher *countingRefresher
}

func newHarness(t *testing.T, gate fakeGate, status uint64) harness {
	t.Helper()
	h := harness{contract: newFakeContract(), uploads: &fakeUploads{}, refresher: &countingRefresher{}}
	svc, err := NewService(Deps{
		Sessions:  gate,
		Signer:    fakeSigner{from: gate.account},
		Contract:  h.contract,
		Receipts:  fakeReceipts{status: status},
		Uploads:   h.uploads,
		Refresher: h.refresher,
		Clock:     fixedClock{},
	}, Config{ChainID: chainID})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestMint(t *testing.T) {
	h := newHarness(t, fakeGate{account: alice}, types.ReceiptStatusSuccessful)

	res, err := h.svc.Mint(context.Background(), MintRequest{
		Name: "Zeus", Description: "King of the gods", Category: "gods", ImageName: "../zeus.png", Image: []byte{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "5", res.TokenID)
	assert.Equal(t, "ipfs://QmImage", res.ImageURI)
	assert.Equal(t, "ipfs://QmMeta", res.TokenURI)
	assert.Equal(t, uint64(7), res.BlockNumber)
	assert.NotEmpty(t, res.IntentID)

	assert.Equal(t, []string{"file:zeus.png", "json:Zeus.json"}, h.uploads.order)
	doc := h.uploads.docs[0].(content.Metadata)
	assert.Equal(t, "ipfs://QmImage", doc.Image)
	assert.Equal(t, "Gods", doc.Category)
	assert.Equal(t, "2023-11-14T22:13:20Z", doc.CreatedAt)

	require.Len(t, h.contract.calls, 1)
	assert.Equal(t, []any{"ipfs://QmMeta", "Zeus", "King of the gods", uint8(0)}, h.contract.calls[0].args)
	assert.Equal(t, 1, h.refresher.n)
}

func TestMintUploadFailureSendsNothing(t *testing.T) {
	h := newHarness(t, fakeGate{account: alice}, types.ReceiptStatusSuccessful)
	h.uploads.failFile = errors.New("401 unauthorized")

	_, err := h.svc.Mint(context.Background(), MintRequest{Name: "Zeus", Category: "Gods", Image: []byte{1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpload))
	assert.Empty(t, h.contract.methods())
	assert.Zero(t, h.refresher.n)
}

func TestMintValidation(t *testing.T) {
	h := newHarness(t, fakeGate{account: alice}, types.ReceiptStatusSuccessful)
	ctx := context.Background()

	for _, req := range []MintRequest{
		{Category: "Gods", Image: []byte{1}},
		{Name: "Zeus", Category: "Gods"},
		{Name: "Zeus", Category: "Dragons", Image: []byte{1}},
	} {
		_, err := h.svc.Mint(ctx, req)
		assert.True(t, errors.Is(err, errs.ErrInvalidInput), req)
	}
	assert.Empty(t, h.uploads.order)
}

func TestIntentsNeedSession(t *testing.T) {
	for _, gateErr := range []error{
		errors.Mark(errors.New("no session"), errs.ErrNotConnected),
		errs.NetworkMismatch(31337, 1),
	} {
		h := newHarness(t, fakeGate{err: gateErr}, types.ReceiptStatusSuccessful)
		_, err := h.svc.Buy(context.Background(), big.NewInt(1))
		assert.ErrorIs(t, err, gateErr)
		_, err = h.svc.Mint(context.Background(), MintRequest{Name: "Zeus", Category: "Gods", Image: []byte{1}})
		assert.ErrorIs(t, err, gateErr)
		assert.Empty(t, h.uploads.order)
		assert.Empty(t, h.contract.methods())
	}
}

func TestBuyPaysListingPrice(t *testing.T) {
	h := newHarness(t, fakeGate{account: bob}, types.ReceiptStatusSuccessful)
	price := big.NewInt(2_500_000_000_000_000_000)
	h.contract.listings[2] = marketplace.ListingRecord{TokenID: big.NewInt(2), Seller: alice, Price: price, Active: true}

	_, err := h.svc.Buy(context.Background(), big.NewInt(2))
	require.NoError(t, err)
	require.Len(t, h.contract.calls, 1)
	assert.Equal(t, "buyNFT", h.contract.calls[0].method)
	assert.Equal(t, price, h.contract.calls[0].value)

	_, err = h.svc.Buy(context.Background(), big.NewInt(3))
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
}

func TestRevertedReceipt(t *testing.T) {
	h := newHarness(t, fakeGate{account: alice}, types.ReceiptStatusFailed)
	h.contract.owners[1] = alice

	res, err := h.svc.List(context.Background(), big.NewInt(1), big.NewInt(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransactionReverted))
	assert.NotEmpty(t, res.TxHash)
	assert.Zero(t, h.refresher.n)
}

func TestUserRejectedSignature(t *testing.T) {
	h := newHarness(t, fakeGate{account: alice}, types.ReceiptStatusSuccessful)
	h.contract.owners[1] = alice
	h.contract.sendErr = errs.UserRejected(errors.New("user denied transaction signature"))

	_, err := h.svc.Transfer(context.Background(), big.NewInt(1), bob)
	assert.True(t, errors.Is(err, errs.ErrUserRejected))
}

func TestListAndCancel(t *testing.T) {
	h := newHarness(t, fakeGate{account: alice}, types.ReceiptStatusSuccessful)
	ctx := context.Background()
	h.contract.owners[1] = alice
	h.contract.owners[2] = bob

	_, err := h.svc.List(ctx, big.NewInt(2), big.NewInt(100))
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "not owner")
	_, err = h.svc.List(ctx, big.NewInt(1), big.NewInt(0))
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "zero price")

	_, err = h.svc.List(ctx, big.NewInt(1), big.NewInt(100))
	require.NoError(t, err)

	h.contract.listings[1] = marketplace.ListingRecord{TokenID: big.NewInt(1), Seller: alice, Price: big.NewInt(100), Active: true}
	_, err = h.svc.CancelListing(ctx, big.NewInt(1))
	require.NoError(t, err)

	assert.Equal(t, []string{"listForSale", "cancelSale"}, h.contract.methods())
	assert.Equal(t, 2, h.refresher.n)
}

func TestAuctionIntents(t *testing.T) {
	h := newHarness(t, fakeGate{account: bob}, types.ReceiptStatusSuccessful)
	ctx := context.Background()
	bidder := alice
	h.contract.auctions[3] = marketplace.AuctionRecord{
		TokenID: big.NewInt(3), Seller: alice, StartPrice: big.NewInt(100), HighestBid: new(big.Int), EndTime: now.Add(-time.Second), Active: true,
	}
	h.contract.auctions[4] = marketplace.AuctionRecord{
		TokenID: big.NewInt(4), Seller: alice, StartPrice: big.NewInt(100), HighestBid: big.NewInt(150), HighestBidder: &bidder,
		EndTime: now.Add(time.Hour), Active: true,
	}

	_, err := h.svc.PlaceBid(ctx, big.NewInt(3), big.NewInt(500))
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "ended")

	_, err = h.svc.PlaceBid(ctx, big.NewInt(4), big.NewInt(150))
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "not above current")

	_, err = h.svc.PlaceBid(ctx, big.NewInt(4), big.NewInt(151))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(151), h.contract.calls[0].value)

	_, err = h.svc.SettleAuction(ctx, big.NewInt(4))
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "still running")

	_, err = h.svc.SettleAuction(ctx, big.NewInt(3))
	require.NoError(t, err)

	h.contract.owners[9] = bob
	_, err = h.svc.CreateAuction(ctx, big.NewInt(9), big.NewInt(10), constants.MaxAuctionDuration+time.Second)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "too long")

	_, err = h.svc.CreateAuction(ctx, big.NewInt(9), big.NewInt(10), 90*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, []string{"placeBid", "endAuction", "createAuction"}, h.contract.methods())
	assert.Equal(t, []any{big.NewInt(9), big.NewInt(10), big.NewInt(5400)}, h.contract.calls[2].args)
}
