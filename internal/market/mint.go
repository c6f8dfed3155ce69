package market

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/content"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/marketplace"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

type MintRequest struct {
	Name        string
	Description string
	Category    string
	ImageName   string
	Image       []byte
	Attributes  []content.Trait
}

func (r MintRequest) validate() (uint8, error) {
	if strings.TrimSpace(r.Name) == "" {
		return 0, errs.Invalid("name is required")
	}
	if len(r.Image) == 0 {
		return 0, errs.Invalid("image is required")
	}
	if len(r.Image) > constants.MaxUploadBytes {
		return 0, errs.Invalid("image is larger than %d bytes", constants.MaxUploadBytes)
	}
	category, ok := marketplace.CategoryIndex(r.Category)
	if !ok {
		return 0, errs.Invalid("unknown category %q", r.Category)
	}
	return category, nil
}

// MintResult adds the content locations to the mined Result.
type MintResult struct {
	Result
	ImageURI string `json:"imageUri"`
	TokenURI string `json:"tokenUri"`
}

// Mint uploads the image, then the metadata document, then mints. An upload
// failure aborts before any transaction is signed.
func (s *Service) Mint(ctx context.Context, req MintRequest) (MintResult, error) {
	category, err := req.validate()
	if err != nil {
		return MintResult{}, err
	}
	if s.Uploads == nil {
		return MintResult{}, errs.Upload(errors.New("no content uploader configured"))
	}
	account, err := s.require()
	if err != nil {
		return MintResult{}, err
	}

	name := strings.TrimSpace(req.Name)
	imageName := req.ImageName
	if imageName == "" {
		imageName = "image"
	}
	imageURI, err := s.Uploads.UploadFile(ctx, filepath.Base(imageName), req.Image)
	if err != nil {
		return MintResult{}, errs.Upload(err)
	}

	categoryName := marketplace.CategoryName(category)
	doc := content.Metadata{
		Name:        name,
		Description: req.Description,
		Image:       imageURI,
		Attributes:  append([]content.Trait{{TraitType: "Category", Value: categoryName}}, req.Attributes...),
		Category:    categoryName,
		CreatedAt:   s.Clock.Now().UTC().Format(time.RFC3339),
	}
	tokenURI, err := s.Uploads.UploadJSON(ctx, name+".json", doc)
	if err != nil {
		return MintResult{}, errs.Upload(err)
	}
	log.Info("mint content uploaded", "image", imageURI, "token_uri", tokenURI, "creator", account.Hex())

	res, receipt, err := s.submit(ctx, "mint", nil, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return s.Contract.MintNFT(opts, tokenURI, name, req.Description, category)
	})
	out := MintResult{Result: res, ImageURI: imageURI, TokenURI: tokenURI}
	if err != nil {
		return out, err
	}
	if id, ok := s.Contract.MintedTokenID(receipt); ok {
		out.TokenID = id.String()
	}
	return out, nil
}
