package marketplace

import (
	"context"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	addrX        = common.HexToAddress("0x1000000000000000000000000000000000000001")
	addrY        = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

// abiCaller answers eth_call by decoding the selector and packing scripted outputs.
type abiCaller struct {
	abi     abi.ABI
	answers map[string]func(args []interface{}) []interface{}
}

func newABICaller(t *testing.T) *abiCaller {
	parsed, err := MarketplaceMetaData.GetAbi()
	require.NoError(t, err)
	return &abiCaller{abi: *parsed, answers: map[string]func([]interface{}) []interface{}{}}
}

func (c *abiCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (c *abiCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := c.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(c.answers[method.Name](args)...)
}

func TestCallerDecodesRecords(t *testing.T) {
	chain := newABICaller(t)
	end := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

	chain.answers["tokenCounter"] = func([]interface{}) []interface{} {
		return []interface{}{big.NewInt(4)}
	}
	chain.answers["ownerOf"] = func(args []interface{}) []interface{} {
		assert.Equal(t, int64(1), args[0].(*big.Int).Int64())
		return []interface{}{addrX}
	}
	chain.answers["tokenURI"] = func([]interface{}) []interface{} {
		return []interface{}{"ipfs://QmToken"}
	}
	chain.answers["nftMetadata"] = func([]interface{}) []interface{} {
		return []interface{}{"Zeus", "King of the gods", uint8(0), addrX}
	}
	chain.answers["marketplaceListings"] = func([]interface{}) []interface{} {
		return []interface{}{addrX, big.NewInt(2_500_000_000_000_000_000), true}
	}
	chain.answers["auctions"] = func([]interface{}) []interface{} {
		return []interface{}{addrY, big.NewInt(100), big.NewInt(0), common.Address{}, big.NewInt(end.Unix()), true}
	}

	caller, err := NewMarketplaceCaller(contractAddr, chain)
	require.NoError(t, err)
	ctx := context.Background()

	counter, err := caller.TokenCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counter.Int64())

	owner, err := caller.OwnerOf(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, addrX, owner)

	uri, err := caller.TokenURI(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmToken", uri)

	meta, err := caller.Metadata(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, TokenMetadata{Name: "Zeus", Description: "King of the gods", Category: 0, Creator: addrX}, meta)
	assert.Equal(t, "Gods", CategoryName(meta.Category))

	listing, err := caller.Listing(ctx, big.NewInt(2))
	require.NoError(t, err)
	assert.True(t, listing.Active)
	assert.Equal(t, addrX, listing.Seller)
	assert.Equal(t, "2500000000000000000", listing.Price.String())
	assert.Equal(t, int64(2), listing.TokenID.Int64())

	auction, err := caller.Auction(ctx, big.NewInt(3))
	require.NoError(t, err)
	assert.True(t, auction.Active)
	assert.Nil(t, auction.HighestBidder)
	assert.False(t, auction.HasBids())
	assert.Equal(t, end, auction.EndTime)
	assert.Equal(t, int64(100), auction.CurrentBid().Int64())
}

func TestAuctionClock(t *testing.T) {
	end := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	a := AuctionRecord{StartPrice: big.NewInt(10), HighestBid: big.NewInt(25), EndTime: end}

	assert.Equal(t, int64(25), a.CurrentBid().Int64())
	assert.False(t, a.Ended(end.Add(-time.Second)))
	assert.Equal(t, time.Second, a.Remaining(end.Add(-time.Second)))
	assert.True(t, a.Ended(end))
	assert.Equal(t, time.Duration(0), a.Remaining(end.Add(time.Hour)))
}

func TestCategories(t *testing.T) {
	idx, ok := CategoryIndex(" monsters ")
	require.True(t, ok)
	assert.Equal(t, uint8(4), idx)
	_, ok = CategoryIndex("Dragons")
	assert.False(t, ok)
	assert.Equal(t, "Unknown", CategoryName(9))
}

func TestMintedTokenID(t *testing.T) {
	m, err := NewMarketplace(contractAddr, nil)
	require.NoError(t, err)

	transfer := m.abi.Events["Transfer"].ID
	tokenTopic := common.BigToHash(big.NewInt(7))
	receipt := &types.Receipt{Logs: []*types.Log{
		{Topics: []common.Hash{common.HexToHash("0x01")}},
		{Topics: []common.Hash{transfer, common.BytesToHash(addrY.Bytes()), common.BytesToHash(addrX.Bytes()), common.BigToHash(big.NewInt(3))}},
		{Topics: []common.Hash{transfer, {}, common.BytesToHash(addrX.Bytes()), tokenTopic}},
	}}

	id, ok := m.MintedTokenID(receipt)
	require.True(t, ok)
	assert.Equal(t, int64(7), id.Int64())

	_, ok = m.MintedTokenID(&types.Receipt{})
	assert.False(t, ok)
	assert.Equal(t, contractAddr, m.Address())
}
