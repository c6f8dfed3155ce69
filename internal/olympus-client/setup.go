// setup.go
package olympus_client

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olympus-market/olympus-client/cmd/olympus-client/config"
	"github.com/olympus-market/olympus-client/internal/chains"
	"github.com/olympus-market/olympus-client/internal/content"
	clienthttp "github.com/olympus-market/olympus-client/internal/http"
	"github.com/olympus-market/olympus-client/internal/httpui"
	"github.com/olympus-market/olympus-client/internal/market"
	"github.com/olympus-market/olympus-client/internal/marketplace"
	"github.com/olympus-market/olympus-client/internal/networks"
	"github.com/olympus-market/olympus-client/internal/provider"
	"github.com/olympus-market/olympus-client/internal/reconcile"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

const preflightTimeout = 10 * time.Second

type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// App is the wired client: one chain, one wallet, one marketplace contract.
type App struct {
	Config   *config.Config
	ChainID  *big.Int
	Network  networks.Network
	Networks *networks.Manager

	Chains      *chains.ChainService
	Backend     chains.Backend
	Heads       *chains.HeadTracker
	Marketplace *marketplace.Marketplace

	Gateway  *content.Gateway
	Metadata *content.MetadataClient
	Pinata   *content.Pinata

	Wallet     provider.Provider
	Sessions   *session.Manager
	Reconciler *reconcile.Reconciler
	Syncer     *reconcile.Syncer
	Intents    *market.Service
}

// NewApp dials the active network, checks the marketplace is deployed there
// and wires every component. Close releases what NewApp opened.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config:   cfg,
		Networks: networks.NewManager(&cfg.Ethereum),
	}

	setupOK := false
	defer func() {
		if !setupOK {
			app.Close()
		}
	}()

	// ---- Chain service
	chainService, err := newChainServiceFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Chains = chainService

	active, err := chainService.ActiveNetwork()
	if err != nil {
		return nil, err
	}
	if err := preflightEndpoint(ctx, active); err != nil {
		return nil, err
	}

	backend, err := chainService.Active()
	if err != nil {
		return nil, err
	}
	app.Backend = backend
	app.ChainID = chainService.ActiveChainID()
	app.Network = app.Networks.Lookup(app.ChainID)

	// ---- Marketplace contract
	address := cfg.MarketplaceAddress()
	if err := verifyMarketplaceDeployed(ctx, backend, address); err != nil {
		return nil, err
	}
	app.Marketplace, err = marketplace.NewMarketplace(address, backend)
	if err != nil {
		return nil, err
	}

	app.Heads, err = chains.NewHeadTracker(ctx, backend, cfg.Marketplace.HeadPollInterval)
	if err != nil {
		return nil, errors.Wrap(err, "head tracker")
	}

	// ---- Content
	app.Gateway = content.NewGateway(cfg.Content.IPFSGateway, cfg.Content.ArweaveGateway)
	metaCfg := content.DefaultMetadataClientConfig()
	metaCfg.Timeout = cfg.Content.MetadataTimeout
	metaCfg.CacheSize = cfg.Content.MetadataCacheSize
	app.Metadata = content.NewMetadataClient(app.Gateway, nil, metaCfg)
	app.Pinata = content.NewPinata(content.PinataConfig{
		Endpoint:  cfg.Content.PinataEndpoint,
		JWT:       cfg.Content.PinataJWT,
		APIKey:    cfg.Content.PinataAPIKey,
		APISecret: cfg.Content.PinataAPISecret,
		Timeout:   cfg.Content.UploadTimeout,
	}, nil)

	// ---- Reconciler
	app.Reconciler, err = reconcile.NewReconciler(app.Marketplace, app.Metadata, app.Gateway, reconcile.Config{
		FirstTokenID: cfg.Marketplace.FirstTokenID,
		Concurrency:  cfg.Marketplace.Concurrency,
		MaxTokens:    cfg.Marketplace.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if err := app.Reconciler.ValidateTokenIDBase(ctx); err != nil {
		return nil, err
	}

	// ---- Wallet + session
	app.Wallet, err = newWallet(ctx, cfg, app.ChainID)
	if err != nil {
		return nil, err
	}
	app.Sessions = session.NewManager(app.Wallet, session.Config{ConnectTimeout: cfg.Wallet.ConnectTimeout})
	app.Syncer = reconcile.NewSyncer(app.Reconciler, app.Sessions, app.Heads)

	// ---- Intents
	app.Intents, err = market.NewService(market.Deps{
		Sessions:  app.Sessions,
		Signer:    app.Wallet,
		Contract:  app.Marketplace,
		Receipts:  backend,
		Uploads:   app.Pinata,
		Refresher: app.Syncer,
		Clock:     app.Heads,
	}, market.Config{
		ChainID:        app.ChainID,
		ReceiptTimeout: cfg.Marketplace.ReceiptTimeout,
	})
	if err != nil {
		return nil, err
	}

	log.Info("olympus client ready",
		"network", app.Network.Name,
		"chain_id", app.ChainID.String(),
		"rpc", active.RPCName,
		"marketplace", address.Hex(),
		"wallet", cfg.Wallet.Kind,
	)
	setupOK = true
	return app, nil
}

// Close stops the background sync and releases the wallet and the node
// connections. It is safe on a partially built App.
func (a *App) Close() {
	if a.Syncer != nil {
		a.Syncer.Stop()
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Wallet != nil {
		if err := a.Wallet.Close(); err != nil {
			log.Error("wallet close failed", "error", err)
		}
	}
	if a.Chains != nil {
		if err := a.Chains.Close(); err != nil {
			log.Error("chain service close failed", "error", err)
		}
	}
}

// Server builds the local API bound to this app.
func (a *App) Server() (*clienthttp.Server, error) {
	var ui http.Handler
	if dir := strings.TrimSpace(a.Config.ClientSettings.UIDir); dir != "" {
		h, err := httpui.Dir(dir)
		if err != nil {
			return nil, err
		}
		ui = h
		log.Info("serving ui", "dir", dir)
	}

	return clienthttp.NewServer(clienthttp.Config{
		Addr:           a.Config.ClientSettings.ListenAddr,
		AllowedOrigins: a.Config.ClientSettings.AllowedOrigins,
		ChainID:        a.ChainID,
		NetworkName:    a.Network.Name,
		Marketplace:    a.Marketplace.Address(),
		UI:             ui,
	}, clienthttp.Deps{
		Sessions: a.Sessions,
		Views:    a.Syncer,
		Loader:   a.Reconciler,
		Intents:  a.Intents,
		Clock:    a.Heads,
	})
}

// Run serves the local API until ctx is done.
func Run(ctx context.Context, build BuildInfo, configFile string) error {
	log.Info("olympus-client",
		"version", build.Version,
		"commit", build.Commit,
		"build_date", build.BuildDate,
	)

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	server, err := app.Server()
	if err != nil {
		return err
	}

	app.Syncer.Start()
	if err := server.Run(ctx); err != nil {
		return err
	}
	log.Info("olympus client stopped")
	return nil
}

func newChainServiceFromConfig(ctx context.Context, cfg *config.Config) (*chains.ChainService, error) {
	return chains.NewChainService(ctx, chains.ChainConfig{
		Chains:               &cfg.Ethereum,
		DefaultActiveNetwork: cfg.Ethereum.ActiveNetwork,
		PreferredRPCName:     cfg.Ethereum.ActiveRPC,
	})
}

// preflightEndpoint fails fast when the RPC serves a different chain than configured.
func preflightEndpoint(ctx context.Context, chain chains.ResolvedChain) error {
	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()

	res, err := networks.VerifyEndpoint(ctx, chain.URL, chain.ChainID)
	if err != nil {
		return errors.Wrapf(err, "network %s", chain.NetworkName)
	}
	log.Info("rpc endpoint ok",
		"network", chain.NetworkName,
		"client", res.ClientVersion,
		"latest_block", res.LatestBlock,
	)
	return nil
}

func verifyMarketplaceDeployed(ctx context.Context, backend chains.Backend, address common.Address) error {
	code, err := backend.CodeAt(ctx, address, nil) // latest
	if err != nil {
		return errors.Wrap(err, "read marketplace code")
	}
	if len(code) == 0 {
		return errors.Newf("marketplace not deployed on this chain: %s", address.Hex())
	}
	return nil
}

func newWallet(ctx context.Context, cfg *config.Config, chainID *big.Int) (provider.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Wallet.Kind)) {
	case config.WalletKindKeystore:
		var account common.Address
		if a := strings.TrimSpace(cfg.Wallet.Account); a != "" {
			account = common.HexToAddress(a)
		}
		ks, err := provider.NewKeystore(provider.KeystoreConfig{
			Dir:     cfg.Wallet.KeystoreDir,
			Account: account,
			ChainID: chainID,
			Light:   cfg.Wallet.LightScrypt,
		})
		if err != nil {
			return nil, err
		}
		return ks, nil

	default:
		// The wallet may come up after the client; only log what we see.
		probeCtx, cancel := context.WithTimeout(ctx, preflightTimeout)
		defer cancel()
		if res, err := networks.ProbeRPC(probeCtx, cfg.Wallet.RPCURL); err != nil {
			log.Warn("wallet endpoint not reachable yet", "url", cfg.Wallet.RPCURL, "error", err)
		} else if res.ChainID != chainID.Uint64() {
			log.Warn("wallet is on another chain", "wallet_chain_id", res.ChainID, "chain_id", chainID.String())
		}
		return provider.NewRPCWallet(provider.RPCWalletConfig{
			URL:          cfg.Wallet.RPCURL,
			PollInterval: cfg.Wallet.PollInterval,
		}), nil
	}
}
