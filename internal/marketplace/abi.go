package marketplace

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// MarketplaceMetaData describes the MythicNFTMarketplace contract surface used by the client.
var MarketplaceMetaData = &bind.MetaData{
	ABI: `[
  {"type":"function","name":"tokenCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"nftMetadata","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
    {"name":"name","type":"string"},
    {"name":"description","type":"string"},
    {"name":"nftType","type":"uint8"},
    {"name":"creator","type":"address"}]},
  {"type":"function","name":"marketplaceListings","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
    {"name":"seller","type":"address"},
    {"name":"price","type":"uint256"},
    {"name":"active","type":"bool"}]},
  {"type":"function","name":"auctions","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
    {"name":"seller","type":"address"},
    {"name":"startingPrice","type":"uint256"},
    {"name":"highestBid","type":"uint256"},
    {"name":"highestBidder","type":"address"},
    {"name":"endTime","type":"uint256"},
    {"name":"active","type":"bool"}]},

  {"type":"function","name":"mintNFT","stateMutability":"nonpayable","inputs":[
    {"name":"tokenURI","type":"string"},
    {"name":"name","type":"string"},
    {"name":"description","type":"string"},
    {"name":"nftType","type":"uint8"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"listForSale","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelSale","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"buyNFT","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"transferNFT","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"to","type":"address"}],"outputs":[]},
  {"type":"function","name":"createAuction","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"},{"name":"startingPrice","type":"uint256"},{"name":"duration","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"placeBid","stateMutability":"payable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"endAuction","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},

  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"tokenId","type":"uint256","indexed":true}]}
]`,
}
