package chains

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type AllChainsConfig struct {
	Networks      map[string]NetworkConfig `json:"networks" yaml:"networks"`
	ActiveNetwork string                   `json:"activeNetwork" yaml:"activeNetwork" mapstructure:"activeNetwork"`
	ActiveRPC     string                   `json:"activeRPC" yaml:"activeRPC" mapstructure:"activeRPC"`
}

// NetworkConfig describes a network and its RPC endpoints.
type NetworkConfig struct {
	Name       string `json:"name" yaml:"name"`
	ChainID    uint64 `json:"chainId" yaml:"chainId" mapstructure:"chainId"`
	ChainIDHex string `json:"chainIdHex" yaml:"chainIdHex" mapstructure:"chainIdHex"`
	RPCs       []RPC  `json:"rpcs" yaml:"rpcs"`
	Explorer   string `json:"explorer" yaml:"explorer" mapstructure:"explorer"`
}

type RPC struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	WSS  string `json:"wss" yaml:"wss"`
}

func (mc *AllChainsConfig) Normalize() {
	if mc == nil {
		return
	}
	for name, n := range mc.Networks {
		n.Name = name
		if n.ChainIDHex == "" && n.ChainID != 0 {
			n.ChainIDHex = hexutil.EncodeUint64(n.ChainID)
		}
		mc.Networks[name] = n
	}
}

func (mc *AllChainsConfig) Validate() error {
	if mc == nil || len(mc.Networks) == 0 {
		return errors.New("no networks configured")
	}
	active := strings.TrimSpace(mc.ActiveNetwork)
	if active == "" {
		return errors.New("active network is empty")
	}
	n, ok := mc.Networks[active]
	if !ok {
		return errors.Newf("active network %q is not configured", active)
	}
	if n.ChainID == 0 {
		return errors.Newf("network %q has no chainId", active)
	}
	if len(n.RPCs) == 0 {
		return errors.Newf("network %q has no RPCs configured", active)
	}
	return nil
}
