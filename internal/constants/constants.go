package constants

import "time"

const (
	AppName = "olympus-client"

	// Token ids are minted sequentially from 1; 0 is never assigned.
	DefaultFirstTokenID = 1

	DefaultGatewayURL = "https://gateway.pinata.cloud/ipfs/"
	ArweaveGatewayURL = "https://arweave.net/"

	PinataEndpoint = "https://api.pinata.cloud"

	DefaultConnectTimeout  = 30 * time.Second
	DefaultWalletPollEvery = 2 * time.Second

	// Listing and bid prices are wei; display strings use ether.
	PriceDecimals      = 18
	PriceDisplayDigits = 6

	MaxMetadataBytes = 10 << 20
	MaxUploadBytes   = 50 << 20

	NativeSymbol = "ETH"

	MaxAuctionDuration = 365 * 24 * time.Hour

	// JSON-RPC (EIP-1193) provider error codes.
	RPCCodeUserRejected   = 4001
	RPCCodeUnauthorized   = 4100
	RPCCodeMethodNotFound = -32601
	RPCCodeChainNotAdded  = 4902
)

// Categories in the contract's enum order.
var Categories = []string{"Gods", "Titans", "Heroes", "Artifacts", "Monsters"}
