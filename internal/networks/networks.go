// Package networks names chains for display and checks that the wallet and
// the marketplace agree on which chain they are talking to.
package networks

import (
	"context"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/olympus-market/olympus-client/internal/chains"
	"github.com/olympus-market/olympus-client/internal/errs"
)

var chainDefaults = map[string]struct {
	Name     string
	Explorer string
}{
	// Ethereum
	"0x1":      {"mainnet", "https://etherscan.io"},
	"0xaa36a7": {"sepolia", "https://sepolia.etherscan.io"},
	"0x4268":   {"holesky", "https://holesky.etherscan.io"},

	// Layer 2s
	"0xa4b1":  {"arbitrum", "https://arbiscan.io"},
	"0x66eed": {"arbitrum-sepolia", "https://sepolia.arbiscan.io"},

	"0xa":      {"optimism", "https://optimistic.etherscan.io"},
	"0xaa37dc": {"optimism-sepolia", "https://sepolia-optimistic.etherscan.io"},

	"0x2105":  {"base", "https://basescan.org"},
	"0x14a34": {"base-sepolia", "https://sepolia.basescan.org"},

	"0x89":    {"polygon", "https://polygonscan.com"},
	"0x13882": {"polygon-amoy", "https://amoy.polygonscan.com"},

	// Local development
	"0x7a69": {"hardhat", ""},
	"0x539":  {"ganache", ""},
}

type Network struct {
	Name       string `json:"name"`
	ChainID    uint64 `json:"chainId"`
	ChainIDHex string `json:"chainIdHex"`
	Explorer   string `json:"explorer,omitempty"`
}

type Manager struct {
	cfg *chains.AllChainsConfig
}

func NewManager(cfg *chains.AllChainsConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Lookup names a chain id: configured networks first, then the built-in table.
func (m *Manager) Lookup(chainID *big.Int) Network {
	if chainID == nil || !chainID.IsUint64() {
		return Network{}
	}
	id := chainID.Uint64()
	out := Network{ChainID: id, ChainIDHex: hexutil.EncodeUint64(id)}

	if m != nil && m.cfg != nil {
		for name, n := range m.cfg.Networks {
			if n.ChainID != id {
				continue
			}
			out.Name = name
			out.Explorer = n.Explorer
			break
		}
	}

	if out.Name == "" || out.Explorer == "" {
		if d, ok := chainDefaults[out.ChainIDHex]; ok {
			if out.Name == "" {
				out.Name = d.Name
			}
			if out.Explorer == "" {
				out.Explorer = d.Explorer
			}
		}
	}
	if out.Name == "" {
		out.Name = "chain-" + chainID.String()
	}
	return out
}

// TxURL links a transaction on the chain's explorer, or "" when none is known.
func (m *Manager) TxURL(chainID *big.Int, txHash string) string {
	n := m.Lookup(chainID)
	if n.Explorer == "" || strings.TrimSpace(txHash) == "" {
		return ""
	}
	return strings.TrimRight(n.Explorer, "/") + "/tx/" + txHash
}

// CheckMatch fails with a network mismatch when got is not want.
func CheckMatch(want, got *big.Int) error {
	if want == nil {
		return errors.New("marketplace chain id is unknown")
	}
	if got == nil {
		return errs.NetworkMismatch(want.Uint64(), 0)
	}
	if want.Cmp(got) != 0 {
		return errs.NetworkMismatch(want.Uint64(), got.Uint64())
	}
	return nil
}

type ProbeResult struct {
	ChainID       uint64 `json:"chainId"`
	ChainIDHex    string `json:"chainIdHex"`
	ClientVersion string `json:"clientVersion,omitempty"`
	LatestBlock   uint64 `json:"latestBlock"`
}

// ProbeRPC asks an endpoint for its chain id, client version and head.
func ProbeRPC(ctx context.Context, rpcURL string) (ProbeResult, error) {
	var out ProbeResult

	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return out, errors.New("missing rpc url")
	}

	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return out, errors.Wrapf(err, "dial %s", rpcURL)
	}
	defer client.Close()

	var chainID hexutil.Uint64
	if err := client.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		return out, errors.Wrap(err, "eth_chainId")
	}
	out.ChainID = uint64(chainID)
	out.ChainIDHex = chainID.String()

	// optional
	var cv string
	if err := client.CallContext(ctx, &cv, "web3_clientVersion"); err == nil {
		out.ClientVersion = strings.TrimSpace(cv)
	}

	var head hexutil.Uint64
	if err := client.CallContext(ctx, &head, "eth_blockNumber"); err == nil {
		out.LatestBlock = uint64(head)
	}

	return out, nil
}

// VerifyEndpoint probes rpcURL and fails unless it serves the expected chain.
func VerifyEndpoint(ctx context.Context, rpcURL string, want uint64) (ProbeResult, error) {
	res, err := ProbeRPC(ctx, rpcURL)
	if err != nil {
		return res, err
	}
	if res.ChainID != want {
		return res, errors.Newf("rpc %s serves chain %d, configured %d", rpcURL, res.ChainID, want)
	}
	return res, nil
}
