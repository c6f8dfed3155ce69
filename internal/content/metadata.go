package content

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/errs"
)

type Trait struct {
	TraitType   string `json:"trait_type"`
	Value       any    `json:"value"`
	DisplayType string `json:"display_type,omitempty"`
}

// Metadata is an ERC-721 / OpenSea style token JSON document.
type Metadata struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	ExternalURL string  `json:"external_url,omitempty"`
	Attributes  []Trait `json:"attributes,omitempty"`

	// Set by the mint flow; absent on documents minted elsewhere.
	Category  string `json:"category,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type MetadataClientConfig struct {
	Timeout         time.Duration
	MaxResponseSize int64
	UserAgent       string
	CacheSize       int
}

func DefaultMetadataClientConfig() MetadataClientConfig {
	return MetadataClientConfig{
		Timeout:         15 * time.Second,
		MaxResponseSize: constants.MaxMetadataBytes,
		UserAgent:       constants.AppName,
		CacheSize:       512,
	}
}

// MetadataClient fetches token JSON through a Gateway. Documents are content
// addressed, so successful fetches are cached by URI.
type MetadataClient struct {
	gateway *Gateway
	client  *http.Client
	cfg     MetadataClientConfig
	cache   *lru.Cache[string, Metadata]
}

func NewMetadataClient(gateway *Gateway, httpClient *http.Client, cfg MetadataClientConfig) *MetadataClient {
	def := DefaultMetadataClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = def.MaxResponseSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &MetadataClient{
		gateway: gateway,
		client:  httpClient,
		cfg:     cfg,
		cache:   lru.NewCache[string, Metadata](cfg.CacheSize),
	}
}

// Fetch loads the document at tokenURI. Image is returned rewritten to the gateway.
func (c *MetadataClient) Fetch(ctx context.Context, tokenURI string) (Metadata, error) {
	tokenURI = strings.TrimSpace(tokenURI)
	if tokenURI == "" {
		return Metadata{}, errs.FetchSkip(errors.New("empty token uri"))
	}
	if md, ok := c.cache.Get(tokenURI); ok {
		return md, nil
	}

	var (
		data []byte
		err  error
	)
	resolved := c.gateway.Rewrite(tokenURI)
	if strings.HasPrefix(resolved, "data:") {
		data, err = decodeDataURI(resolved)
	} else {
		data, err = c.get(ctx, resolved)
	}
	if err != nil {
		return Metadata{}, errs.FetchSkip(errors.Wrapf(err, "fetch %s", resolved))
	}

	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, errs.FetchSkip(errors.Wrapf(err, "parse %s", resolved))
	}
	md.Image = c.gateway.Rewrite(md.Image)

	c.cache.Add(tokenURI, md)
	return md, nil
}

func (c *MetadataClient) get(ctx context.Context, httpURL string) ([]byte, error) {
	u, err := url.Parse(httpURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Newf("unsupported uri %q", httpURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.cfg.MaxResponseSize {
		return nil, errors.Newf("response larger than %d bytes", c.cfg.MaxResponseSize)
	}
	return data, nil
}

// decodeDataURI handles data:[<mediatype>][;base64],<data>.
func decodeDataURI(dataURI string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(dataURI, "data:"), ",")
	if !ok {
		return nil, errors.New("no data in data uri")
	}
	if strings.Contains(header, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(decoded), nil
}
