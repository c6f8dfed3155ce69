package reconcile

import (
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/utils"
)

// Filter narrows the marketplace view. Price bounds are inclusive, in wei;
// nil means unbounded.
type Filter struct {
	Query    string
	MinPrice *big.Int
	MaxPrice *big.Int
}

// ParseFilter converts display decimals (ether) into a wei Filter.
func ParseFilter(query, minPrice, maxPrice string) (Filter, error) {
	f := Filter{Query: strings.TrimSpace(query)}

	var err error
	if strings.TrimSpace(minPrice) != "" {
		if f.MinPrice, err = utils.ParseUnits(minPrice, constants.PriceDecimals); err != nil {
			return Filter{}, errs.Invalid("min price: %v", err)
		}
	}
	if strings.TrimSpace(maxPrice) != "" {
		if f.MaxPrice, err = utils.ParseUnits(maxPrice, constants.PriceDecimals); err != nil {
			return Filter{}, errs.Invalid("max price: %v", err)
		}
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func (f Filter) Validate() error {
	if f.MinPrice != nil && f.MinPrice.Sign() < 0 || f.MaxPrice != nil && f.MaxPrice.Sign() < 0 {
		return errors.Mark(errors.New("price bounds must not be negative"), errs.ErrInvalidInput)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.Cmp(f.MaxPrice) > 0 {
		return errors.Mark(errors.New("min price is above max price"), errs.ErrInvalidInput)
	}
	return nil
}

// Match applies the name substring (case-insensitive) and the price range.
func (f Filter) Match(name string, price *big.Int) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(name), q) {
			return false
		}
	}
	if price == nil {
		return f.MinPrice == nil && f.MaxPrice == nil
	}
	if f.MinPrice != nil && price.Cmp(f.MinPrice) < 0 {
		return false
	}
	if f.MaxPrice != nil && price.Cmp(f.MaxPrice) > 0 {
		return false
	}
	return true
}

// Equal compares the normalized query and the bounds by value.
func (f Filter) Equal(o Filter) bool {
	return strings.TrimSpace(f.Query) == strings.TrimSpace(o.Query) &&
		equalBound(f.MinPrice, o.MinPrice) && equalBound(f.MaxPrice, o.MaxPrice)
}

func equalBound(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func (f Filter) clone() Filter {
	out := Filter{Query: f.Query}
	if f.MinPrice != nil {
		out.MinPrice = new(big.Int).Set(f.MinPrice)
	}
	if f.MaxPrice != nil {
		out.MaxPrice = new(big.Int).Set(f.MaxPrice)
	}
	return out
}

// FilterView is the display form of a Filter.
type FilterView struct {
	Query    string `json:"q"`
	MinPrice string `json:"min,omitempty"`
	MaxPrice string `json:"max,omitempty"`
}

func (f Filter) View() FilterView {
	v := FilterView{Query: f.Query}
	if f.MinPrice != nil {
		v.MinPrice = utils.FormatUnitsTrim(f.MinPrice, constants.PriceDecimals, constants.PriceDecimals)
	}
	if f.MaxPrice != nil {
		v.MaxPrice = utils.FormatUnitsTrim(f.MaxPrice, constants.PriceDecimals, constants.PriceDecimals)
	}
	return v
}
