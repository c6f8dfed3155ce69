// Package content resolves content-addressed references and talks to the
// pinning service used for mints.
package content

import (
	"strings"

	"github.com/mr-tron/base58"
	"github.com/olympus-market/olympus-client/internal/constants"
)

// Public IPFS gateways whose URLs are moved onto the configured gateway.
var knownIPFSGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://dweb.link/ipfs/",
	"https://w3s.link/ipfs/",
	"https://nftstorage.link/ipfs/",
}

// Gateway rewrites content-addressed URIs to HTTP(S) URLs. Rewrite is pure
// and idempotent: Rewrite(Rewrite(u)) == Rewrite(u).
type Gateway struct {
	ipfs    string
	arweave string
	known   []string
}

func NewGateway(ipfsGateway, arweaveGateway string) *Gateway {
	ipfs := normalizeBase(ipfsGateway, constants.DefaultGatewayURL)
	arweave := normalizeBase(arweaveGateway, constants.ArweaveGatewayURL)

	known := []string{ipfs}
	for _, gw := range knownIPFSGateways {
		if gw != ipfs {
			known = append(known, gw)
		}
	}
	return &Gateway{ipfs: ipfs, arweave: arweave, known: known}
}

func normalizeBase(base, def string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = def
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// Base is the IPFS gateway prefix, ending in a slash.
func (g *Gateway) Base() string {
	return g.ipfs
}

func (g *Gateway) Rewrite(uri string) string {
	uri = strings.TrimSpace(uri)

	switch {
	case uri == "", strings.HasPrefix(uri, "data:"):
		return uri

	case strings.HasPrefix(uri, "ipfs://"):
		path := strings.TrimPrefix(uri, "ipfs://")
		path = strings.TrimLeft(path, "/")
		path = strings.TrimPrefix(path, "ipfs/")
		return g.ipfs + path

	case strings.HasPrefix(uri, "ar://"):
		return g.arweave + strings.TrimLeft(strings.TrimPrefix(uri, "ar://"), "/")

	case strings.HasPrefix(uri, "/ipfs/"):
		return g.ipfs + strings.TrimPrefix(uri, "/ipfs/")

	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		for _, gw := range g.known {
			if strings.HasPrefix(uri, gw) {
				return g.ipfs + strings.TrimPrefix(uri, gw)
			}
		}
		return uri
	}

	if cid, rest, _ := strings.Cut(uri, "/"); IsCID(cid) {
		if rest != "" {
			return g.ipfs + cid + "/" + rest
		}
		return g.ipfs + cid
	}
	return uri
}

// IPFSURI formats a CID as an ipfs:// URI.
func IPFSURI(cid string) string {
	return "ipfs://" + strings.TrimSpace(cid)
}

// IsCID reports whether s looks like an IPFS CID: a base58 sha2-256 multihash
// (v0) or a base32 v1 CID.
func IsCID(s string) bool {
	if strings.HasPrefix(s, "Qm") && len(s) == 46 {
		raw, err := base58.Decode(s)
		return err == nil && len(raw) == 34 && raw[0] == 0x12 && raw[1] == 0x20
	}
	if strings.HasPrefix(s, "bafy") || strings.HasPrefix(s, "bafk") {
		if len(s) < 50 {
			return false
		}
		for i := 1; i < len(s); i++ {
			c := s[i]
			if !(c >= 'a' && c <= 'z' || c >= '2' && c <= '7') {
				return false
			}
		}
		return true
	}
	return false
}
