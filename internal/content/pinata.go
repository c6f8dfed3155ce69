package content

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/errs"
)

type PinataConfig struct {
	Endpoint string
	// JWT is preferred; APIKey/APISecret are the legacy key pair.
	JWT       string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Pinata pins files and JSON documents and returns ipfs:// URIs.
// Every failure, including missing credentials, is marked errs.ErrUpload.
type Pinata struct {
	cfg    PinataConfig
	client *http.Client
}

func NewPinata(cfg PinataConfig, httpClient *http.Client) *Pinata {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = constants.PinataEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Pinata{cfg: cfg, client: httpClient}
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (p *Pinata) authorize(req *http.Request) error {
	switch {
	case strings.TrimSpace(p.cfg.JWT) != "":
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.cfg.JWT))
	case p.cfg.APIKey != "" && p.cfg.APISecret != "":
		req.Header.Set("pinata_api_key", p.cfg.APIKey)
		req.Header.Set("pinata_secret_api_key", p.cfg.APISecret)
	default:
		return errors.New("pinata credentials are not configured")
	}
	return nil
}

// UploadFile pins a single file.
func (p *Pinata) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errs.Upload(errors.New("file is empty"))
	}
	if len(data) > constants.MaxUploadBytes {
		return "", errs.Upload(errors.Newf("file larger than %d bytes", constants.MaxUploadBytes))
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", errs.Upload(err)
	}
	if _, err := part.Write(data); err != nil {
		return "", errs.Upload(err)
	}
	meta, _ := json.Marshal(map[string]string{"name": name})
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return "", errs.Upload(err)
	}
	if err := mw.Close(); err != nil {
		return "", errs.Upload(err)
	}

	return p.pin(ctx, "/pinning/pinFileToIPFS", mw.FormDataContentType(), &body)
}

// UploadJSON pins v encoded as JSON.
func (p *Pinata) UploadJSON(ctx context.Context, name string, v any) (string, error) {
	payload := map[string]any{
		"pinataContent":  v,
		"pinataMetadata": map[string]string{"name": name},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Upload(errors.Wrap(err, "encode json"))
	}
	return p.pin(ctx, "/pinning/pinJSONToIPFS", "application/json", bytes.NewReader(raw))
}

func (p *Pinata) pin(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+path, body)
	if err != nil {
		return "", errs.Upload(err)
	}
	if err := p.authorize(req); err != nil {
		return "", errs.Upload(err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errs.Upload(errors.Wrap(err, path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errs.Upload(errors.Wrap(err, path))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errs.Upload(errors.Newf("%s: HTTP %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out pinResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errs.Upload(errors.Wrapf(err, "%s: decode response", path))
	}
	if strings.TrimSpace(out.IpfsHash) == "" {
		return "", errs.Upload(errors.Newf("%s: response has no IpfsHash", path))
	}
	return IPFSURI(out.IpfsHash), nil
}
