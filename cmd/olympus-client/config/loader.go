package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olympus-market/olympus-client/internal/chains"
	"github.com/spf13/viper"
)

const envPrefix = "OLYMPUS"

const (
	WalletKindRPC      = "rpc"
	WalletKindKeystore = "keystore"
)

type ClientSettings struct {
	ListenAddr     string
	AllowedOrigins []string
	// UIDir optionally serves a built front end from this directory.
	UIDir string
}

type WalletSettings struct {
	Kind           string
	RPCURL         string
	PollInterval   time.Duration
	ConnectTimeout time.Duration
	KeystoreDir    string
	Account        string
	LightScrypt    bool
}

type MarketplaceSettings struct {
	Address          string
	FirstTokenID     int64
	Concurrency      int
	MaxTokens        int64
	ReceiptTimeout   time.Duration
	HeadPollInterval time.Duration
}

type ContentSettings struct {
	IPFSGateway       string
	ArweaveGateway    string
	PinataEndpoint    string
	PinataJWT         string
	PinataAPIKey      string
	PinataAPISecret   string
	MetadataTimeout   time.Duration
	MetadataCacheSize int
	UploadTimeout     time.Duration
}

type Config struct {
	ClientSettings ClientSettings
	Wallet         WalletSettings
	Marketplace    MarketplaceSettings
	Content        ContentSettings
	Ethereum       chains.AllChainsConfig `mapstructure:"Ethereum"`
}

func searchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".config", "olympus-client"),
		".",
	}
}

// Load reads the embedded defaults, merges config.yaml from the first search
// path that has one (or file, when set), then applies OLYMPUS_* env vars.
func Load(file string) (*Config, error) {
	return LoadFrom(searchPaths(), file)
}

func LoadFrom(paths []string, file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, errors.Wrap(err, "read embedded config")
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	} else {
		v.SetConfigName("config")
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config")
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	cfg.Ethereum.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Ethereum.Validate(); err != nil {
		return errors.Wrap(err, "Ethereum")
	}
	if !common.IsHexAddress(c.Marketplace.Address) || common.HexToAddress(c.Marketplace.Address) == (common.Address{}) {
		return errors.Newf("Marketplace.Address %q is not a contract address", c.Marketplace.Address)
	}
	if c.Marketplace.FirstTokenID != 0 && c.Marketplace.FirstTokenID != 1 {
		return errors.Newf("Marketplace.FirstTokenID must be 0 or 1, got %d", c.Marketplace.FirstTokenID)
	}
	if len(c.ClientSettings.AllowedOrigins) == 0 {
		return errors.New("ClientSettings.AllowedOrigins is empty")
	}

	switch strings.ToLower(strings.TrimSpace(c.Wallet.Kind)) {
	case WalletKindRPC:
		if strings.TrimSpace(c.Wallet.RPCURL) == "" {
			return errors.New("Wallet.RPCURL is required for an rpc wallet")
		}
	case WalletKindKeystore:
		if strings.TrimSpace(c.Wallet.KeystoreDir) == "" {
			return errors.New("Wallet.KeystoreDir is required for a keystore wallet")
		}
		if a := strings.TrimSpace(c.Wallet.Account); a != "" && !common.IsHexAddress(a) {
			return errors.Newf("Wallet.Account %q is not an address", a)
		}
	default:
		return errors.Newf("Wallet.Kind %q is not one of rpc, keystore", c.Wallet.Kind)
	}
	return nil
}

// MarketplaceAddress is the validated contract address.
func (c *Config) MarketplaceAddress() common.Address {
	return common.HexToAddress(c.Marketplace.Address)
}

// ActiveNetwork returns the configured network the client runs against.
func (c *Config) ActiveNetwork() chains.NetworkConfig {
	return c.Ethereum.Networks[c.Ethereum.ActiveNetwork]
}
