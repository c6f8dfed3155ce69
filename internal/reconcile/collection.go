package reconcile

import (
	"context"
	"math/big"
	"strings"

	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/marketplace"
)

// CollectionFilter narrows the all-tokens view. A nil Category matches every
// category.
type CollectionFilter struct {
	Query    string
	Category *uint8
}

// ParseCollectionFilter accepts a category name; "" and "All" mean any.
func ParseCollectionFilter(query, category string) (CollectionFilter, error) {
	f := CollectionFilter{Query: strings.TrimSpace(query)}
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, "all") {
		return f, nil
	}
	c, ok := marketplace.CategoryIndex(category)
	if !ok {
		return CollectionFilter{}, errs.Invalid("unknown category %q", category)
	}
	f.Category = &c
	return f, nil
}

func (f CollectionFilter) Match(name string, category uint8) bool {
	if f.Category != nil && *f.Category != category {
		return false
	}
	q := strings.ToLower(f.Query)
	return q == "" || strings.Contains(strings.ToLower(name), q)
}

// CollectionFilterView is the display form of a CollectionFilter.
type CollectionFilterView struct {
	Query    string `json:"q"`
	Category string `json:"category"`
}

func (f CollectionFilter) View() CollectionFilterView {
	v := CollectionFilterView{Query: f.Query, Category: "All"}
	if f.Category != nil {
		v.Category = marketplace.CategoryName(*f.Category)
	}
	return v
}

// LoadCollection returns every minted token matching f, listed or not,
// ordered by token id.
func (r *Reconciler) LoadCollection(ctx context.Context, f CollectionFilter) ([]TokenView, error) {
	ids, err := r.tokenIDs(ctx)
	if err != nil {
		return nil, err
	}
	return r.collection(ctx, ids, f)
}

func (r *Reconciler) collection(ctx context.Context, ids []*big.Int, f CollectionFilter) ([]TokenView, error) {
	slots := make([]*TokenView, len(ids))
	err := r.forEach(ctx, ids, func(ctx context.Context, i int, id *big.Int) error {
		owner, err := r.reader.OwnerOf(ctx, id)
		if err != nil {
			return errs.FetchSkip(err)
		}
		rec, err := r.loadToken(ctx, id, owner)
		if err != nil {
			return err
		}
		if !f.Match(rec.Name, rec.Category) {
			return nil
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
