// Package reconcile rebuilds the owned, marketplace and auction views from
// contract reads and content metadata. Nothing here is cached across calls:
// every load recomputes from the current chain state.
package reconcile

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/content"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/marketplace"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/sync/errgroup"
)

// Reader is the subset of marketplace contract reads the reconciler needs.
type Reader interface {
	TokenCounter(ctx context.Context) (*big.Int, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
	Metadata(ctx context.Context, tokenID *big.Int) (marketplace.TokenMetadata, error)
	Listing(ctx context.Context, tokenID *big.Int) (marketplace.ListingRecord, error)
	Auction(ctx context.Context, tokenID *big.Int) (marketplace.AuctionRecord, error)
}

type MetadataFetcher interface {
	Fetch(ctx context.Context, tokenURI string) (content.Metadata, error)
}

type URIRewriter interface {
	Rewrite(uri string) string
}

type Config struct {
	FirstTokenID int64
	// Concurrency bounds the per-token reads in flight.
	Concurrency int
	// MaxTokens caps enumeration when tokenCounter is implausibly large.
	MaxTokens int64
}

func DefaultConfig() Config {
	return Config{
		FirstTokenID: constants.DefaultFirstTokenID,
		Concurrency:  8,
		MaxTokens:    10_000,
	}
}

type Reconciler struct {
	reader  Reader
	meta    MetadataFetcher
	gateway URIRewriter
	cfg     Config
}

func NewReconciler(reader Reader, meta MetadataFetcher, gateway URIRewriter, cfg Config) (*Reconciler, error) {
	if reader == nil || meta == nil || gateway == nil {
		return nil, errors.New("reconciler needs a reader, a metadata fetcher and a gateway")
	}
	if cfg.FirstTokenID != 0 && cfg.FirstTokenID != 1 {
		return nil, errs.Invalid("first token id must be 0 or 1, got %d", cfg.FirstTokenID)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Reconciler{reader: reader, meta: meta, gateway: gateway, cfg: cfg}, nil
}

// ValidateTokenIDBase checks the configured first id against the contract.
// With base 1, token 0 must not exist; with base 0, it must once anything is
// minted.
func (r *Reconciler) ValidateTokenIDBase(ctx context.Context) error {
	counter, err := r.reader.TokenCounter(ctx)
	if err != nil {
		return errors.Wrap(err, "read token counter")
	}
	if counter.Sign() == 0 {
		return nil
	}

	owner, err := r.reader.OwnerOf(ctx, big.NewInt(0))
	exists := err == nil && owner != (common.Address{})

	switch {
	case r.cfg.FirstTokenID == 1 && exists:
		return errs.Invalid("token 0 exists on the contract; first token id should be 0")
	case r.cfg.FirstTokenID == 0 && !exists:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Invalid("token 0 does not exist on the contract; first token id should be 1")
	}
	return nil
}

// tokenIDs lists [FirstTokenID, tokenCounter).
func (r *Reconciler) tokenIDs(ctx context.Context) ([]*big.Int, error) {
	counter, err := r.reader.TokenCounter(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read token counter")
	}
	first := big.NewInt(r.cfg.FirstTokenID)
	if counter.Cmp(first) <= 0 {
		return nil, nil
	}
	n := new(big.Int).Sub(counter, first)
	if !n.IsInt64() || n.Int64() > r.cfg.MaxTokens {
		log.Warn("token counter above enumeration cap", "counter", counter.String(), "cap", r.cfg.MaxTokens)
		n = big.NewInt(r.cfg.MaxTokens)
	}

	ids := make([]*big.Int, 0, n.Int64())
	for i := int64(0); i < n.Int64(); i++ {
		ids = append(ids, new(big.Int).Add(first, big.NewInt(i)))
	}
	return ids, nil
}

// forEach runs fn for every id with bounded concurrency. Per-token failures
// are logged and skipped; only cancellation aborts the pass.
func (r *Reconciler) forEach(ctx context.Context, ids []*big.Int, fn func(ctx context.Context, i int, id *big.Int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := fn(gctx, i, id); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("skipping token", "token_id", id.String(), "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// loadToken merges the on-chain metadata with the off-chain JSON. On-chain
// name and description win; the JSON fills blanks and supplies the image.
func (r *Reconciler) loadToken(ctx context.Context, id *big.Int, owner common.Address) (marketplace.TokenRecord, error) {
	onChain, err := r.reader.Metadata(ctx, id)
	if err != nil {
		return marketplace.TokenRecord{}, errs.FetchSkip(err)
	}
	uri, err := r.reader.TokenURI(ctx, id)
	if err != nil {
		return marketplace.TokenRecord{}, errs.FetchSkip(err)
	}
	offChain, err := r.meta.Fetch(ctx, uri)
	if err != nil {
		return marketplace.TokenRecord{}, errs.FetchSkip(err)
	}

	rec := marketplace.TokenRecord{
		TokenID:     new(big.Int).Set(id),
		Owner:       owner,
		Name:        firstNonEmpty(onChain.Name, offChain.Name),
		Description: firstNonEmpty(onChain.Description, offChain.Description),
		ImageURI:    r.gateway.Rewrite(offChain.Image),
		TokenURI:    r.gateway.Rewrite(uri),
		Category:    onChain.Category,
		Creator:     onChain.Creator,
	}
	if offChain.CreatedAt != "" {
		if at, err := time.Parse(time.RFC3339, offChain.CreatedAt); err == nil {
			rec.CreatedAt = at
		}
	}
	return rec, nil
}

// LoadOwned returns the session account's tokens that are not actively
// listed. A session that is not connected owns nothing.
func (r *Reconciler) LoadOwned(ctx context.Context, s session.Session) ([]TokenView, error) {
	ids, err := r.tokenIDs(ctx)
	if err != nil {
		return nil, err
	}
	return r.owned(ctx, ids, s)
}

func (r *Reconciler) owned(ctx context.Context, ids []*big.Int, s session.Session) ([]TokenView, error) {
	if !s.IsConnected() {
		return []TokenView{}, nil
	}
	account := *s.Account

	slots := make([]*TokenView, len(ids))
	err := r.forEach(ctx, ids, func(ctx context.Context, i int, id *big.Int) error {
		owner, err := r.reader.OwnerOf(ctx, id)
		if err != nil {
			return errs.FetchSkip(err)
		}
		if owner != account {
			return nil
		}
		listing, err := r.reader.Listing(ctx, id)
		if err != nil {
			return errs.FetchSkip(err)
		}
		if listing.Active {
			return nil
		}
		rec, err := r.loadToken(ctx, id, owner)
		if err != nil {
			return err
		}
		v := tokenView(rec)
		slots[i] = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return compact(slots), nil
}

// LoadMarketplace returns active listings matching f, ordered by token id.
func (r *Reconciler) LoadMarketplace(ctx context.Context, f Filter) ([]ListingView, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ids, err := r.tokenIDs(ctx)
	if err != nil {
		return nil, err
	}
	return r.marketplace(ctx, ids, f)
}

func (r *Reconciler) marketplace(ctx context.Context, ids []*big.Int, f Filter) ([]ListingView, error) {
	slots := make([]*ListingView, len(ids))
	err := r.forEach(ctx, ids, func(ctx context.Context, i int, id *big.Int) error {
		listing, err := r.reader.Listing(ctx, id)
		if err != nil {
			return errs.FetchSkip(err)
		}
		if !listing.Active {
			return nil
		}
		// Owner is read so the view reflects who holds the token while listed.
		owner, err := r.reader.OwnerOf(ctx, id)
		if err != nil {
			return errs.FetchSkip(err)
		}
		rec, err := r.loadToken(ctx, id, owner)
		if err != nil {
			return err
		}
		if !f.Match(rec.Name, listing.Price) {
			return nil
		}
		v := listingView(rec, listing)
		slots[i] = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return compact(slots), nil
}

// LoadAuctions returns active auctions evaluated at now. Auctions past their
// end time stay listed until settled, but are not biddable.
func (r *Reconciler) LoadAuctions(ctx context.Context, now time.Time) ([]AuctionView, error) {
	ids, err := r.tokenIDs(ctx)
	if err != nil {
		return nil, err
	}
	return r.auctions(ctx, ids, now)
}

func (r *Reconciler) auctions(ctx context.Context, ids []*big.Int, now time.Time) ([]AuctionView, error) {
	slots := make([]*AuctionView, len(ids))
	err := r.forEach(ctx, ids, func(ctx context.Context, i int, id *big.Int) error {
		auction, err := r.reader.Auction(ctx, id)
		if err != nil {
			return errs.FetchSkip(err)
		}
		if !auction.Active {
			return nil
		}
		owner, err := r.reader.OwnerOf(ctx, id)
		if err != nil {
			return errs.FetchSkip(err)
		}
		rec, err := r.loadToken(ctx, id, owner)
		if err != nil {
			return err
		}
		v := auctionView(rec, auction, now)
		slots[i] = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return compact(slots), nil
}

// Snapshot is the result of one full pass.
type Snapshot struct {
	Owned       []TokenView
	Marketplace []ListingView
	Auctions    []AuctionView
	Collection  []TokenView
	Errors      []error
}

// LoadAll reads tokenCounter once and builds every view from it. The
// collection is unfiltered. A view
// that fails as a whole is left nil and its error recorded.
func (r *Reconciler) LoadAll(ctx context.Context, s session.Session, f Filter, now time.Time) (Snapshot, error) {
	ids, err := r.tokenIDs(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if snap.Owned, err = r.owned(ctx, ids, s); err != nil {
		snap.Errors = append(snap.Errors, errors.Wrap(err, "owned"))
	}
	if snap.Marketplace, err = r.marketplace(ctx, ids, f); err != nil {
		snap.Errors = append(snap.Errors, errors.Wrap(err, "marketplace"))
	}
	if snap.Auctions, err = r.auctions(ctx, ids, now); err != nil {
		snap.Errors = append(snap.Errors, errors.Wrap(err, "auctions"))
	}
	if snap.Collection, err = r.collection(ctx, ids, CollectionFilter{}); err != nil {
		snap.Errors = append(snap.Errors, errors.Wrap(err, "collection"))
	}
	if ctx.Err() != nil {
		return Snapshot{}, ctx.Err()
	}
	return snap, nil
}

func compact[T any](slots []*T) []T {
	out := make([]T, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
