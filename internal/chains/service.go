package chains

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is everything the marketplace binding and the intents need from a node.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type ChainConfig struct {
	Chains               *AllChainsConfig
	DefaultActiveNetwork string
	PreferredRPCName     string
}

type ResolvedChain struct {
	NetworkName string
	ChainID     uint64
	ChainIDHex  string
	Explorer    string

	RPCName string
	URL     string
	WSS     string
}

type activeChain struct {
	network ResolvedChain
	backend Backend
}

// Dialer opens a backend for a resolved network.
type Dialer func(ctx context.Context, chain ResolvedChain) (Backend, error)

type ChainService struct {
	cfg              ChainConfig
	dial             Dialer
	active           atomic.Pointer[activeChain]
	mu               sync.Mutex
	backendByNetwork map[string]Backend
}

func NewChainService(ctx context.Context, cfg ChainConfig) (*ChainService, error) {
	return NewChainServiceWithDialer(ctx, cfg, DialEthClient)
}

func NewChainServiceWithDialer(ctx context.Context, cfg ChainConfig, dial Dialer) (*ChainService, error) {
	if cfg.Chains == nil {
		return nil, errors.New("chains config is nil")
	}
	if strings.TrimSpace(cfg.DefaultActiveNetwork) == "" {
		return nil, errors.New("active network is empty")
	}

	service := &ChainService{
		cfg:              cfg,
		dial:             dial,
		backendByNetwork: make(map[string]Backend),
	}

	if err := service.SwitchChain(ctx, cfg.DefaultActiveNetwork); err != nil {
		return nil, err
	}

	return service, nil
}

func (s *ChainService) Active() (Backend, error) {
	current := s.active.Load()
	if current == nil || current.backend == nil {
		return nil, errors.New("no active chain")
	}
	return current.backend, nil
}

func (s *ChainService) ActiveNetwork() (ResolvedChain, error) {
	current := s.active.Load()
	if current == nil {
		return ResolvedChain{}, errors.New("no active chain")
	}
	return current.network, nil
}

// ActiveChainID is the chain id the marketplace contract lives on.
func (s *ChainService) ActiveChainID() *big.Int {
	current := s.active.Load()
	if current == nil {
		return nil
	}
	return new(big.Int).SetUint64(current.network.ChainID)
}

func (s *ChainService) SwitchChain(ctx context.Context, networkName string) error {
	networkName = strings.TrimSpace(networkName)
	if networkName == "" {
		return errors.New("network name is empty")
	}

	// no-op if already active
	if current := s.active.Load(); current != nil {
		if strings.EqualFold(current.network.NetworkName, networkName) {
			return nil
		}
	}

	resolved, err := s.ResolveNetworkByName(networkName)
	if err != nil {
		return err
	}

	backend, err := s.BackendForNetwork(ctx, networkName)
	if err != nil {
		return err
	}

	s.active.Store(&activeChain{
		network: resolved,
		backend: backend,
	})
	return nil
}

// BackendForNetwork returns (and caches) a backend for a network WITHOUT changing the active chain.
func (s *ChainService) BackendForNetwork(ctx context.Context, networkName string) (Backend, error) {
	networkName = strings.TrimSpace(networkName)
	if networkName == "" {
		return nil, errors.New("network name is empty")
	}

	cacheKey := strings.ToLower(networkName)

	s.mu.Lock()
	if existing := s.backendByNetwork[cacheKey]; existing != nil {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	resolved, err := s.ResolveNetworkByName(networkName)
	if err != nil {
		return nil, err
	}

	// Dial outside the lock
	dialed, err := s.dial(ctx, resolved)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing := s.backendByNetwork[cacheKey]; existing != nil {
		s.mu.Unlock()
		safeClose(dialed)
		return existing, nil
	}
	s.backendByNetwork[cacheKey] = dialed
	s.mu.Unlock()

	return dialed, nil
}

// Close closes all cached backends (call on shutdown).
func (s *ChainService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, backend := range s.backendByNetwork {
		safeClose(backend)
		delete(s.backendByNetwork, key)
	}

	s.active.Store(nil)
	return nil
}

// DialEthClient prefers the websocket endpoint and falls back to HTTP.
func DialEthClient(ctx context.Context, chain ResolvedChain) (Backend, error) {
	url := strings.TrimSpace(chain.WSS)
	if url == "" {
		url = strings.TrimSpace(chain.URL)
	}
	if url == "" {
		return nil, errors.Newf("invalid chain rpc config for %q (missing url)", chain.NetworkName)
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %q", chain.NetworkName)
	}
	return client, nil
}

func safeClose(b Backend) {
	if b == nil {
		return
	}
	if closer, ok := b.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (s *ChainService) ResolveNetworkByChainID(chainID uint64) (ResolvedChain, error) {
	if chainID == 0 {
		return ResolvedChain{}, errors.New("chainID is 0")
	}

	for networkName, network := range s.cfg.Chains.Networks {
		if network.ChainID != chainID {
			continue
		}
		return s.resolveFromNetworkConfig(networkName, network)
	}

	return ResolvedChain{}, errors.Newf("unknown chainID %d", chainID)
}

func (s *ChainService) ResolveNetworkByName(networkName string) (ResolvedChain, error) {
	networkName = strings.TrimSpace(networkName)
	if networkName == "" {
		return ResolvedChain{}, errors.New("network name is empty")
	}

	network, ok := s.cfg.Chains.Networks[networkName]
	if !ok {
		return ResolvedChain{}, errors.Newf("unknown network %q", networkName)
	}
	return s.resolveFromNetworkConfig(networkName, network)
}

func (s *ChainService) resolveFromNetworkConfig(networkName string, network NetworkConfig) (ResolvedChain, error) {
	// pick RPC by preferred name; otherwise first
	var selectedRPC *RPC

	if preferred := strings.TrimSpace(s.cfg.PreferredRPCName); preferred != "" {
		for i := range network.RPCs {
			if strings.EqualFold(strings.TrimSpace(network.RPCs[i].Name), preferred) {
				selectedRPC = &network.RPCs[i]
				break
			}
		}
	}
	if selectedRPC == nil {
		if len(network.RPCs) == 0 {
			return ResolvedChain{}, errors.Newf("network %q has no RPCs configured", networkName)
		}
		selectedRPC = &network.RPCs[0]
	}

	if strings.TrimSpace(selectedRPC.URL) == "" && strings.TrimSpace(selectedRPC.WSS) == "" {
		return ResolvedChain{}, errors.Newf("network %q rpc %q has no url", networkName, selectedRPC.Name)
	}

	return ResolvedChain{
		NetworkName: networkName,
		ChainID:     network.ChainID,
		ChainIDHex:  network.ChainIDHex,
		Explorer:    network.Explorer,
		RPCName:     selectedRPC.Name,
		URL:         selectedRPC.URL,
		WSS:         selectedRPC.WSS,
	}, nil
}
