package http

import (
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/olympus-market/olympus-client/internal/constants"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/market"
	"github.com/olympus-market/olympus-client/internal/reconcile"
	"github.com/olympus-market/olympus-client/internal/utils"
)

func (s *Server) handleHealth(c *gin.Context) {
	res := healthRes{Status: "ok", Network: s.cfg.NetworkName}
	if s.cfg.ChainID != nil {
		res.ChainID = s.cfg.ChainID.String()
	}
	if s.cfg.Marketplace != (common.Address{}) {
		res.Market = s.cfg.Marketplace.Hex()
	}
	writeOK(c, res)
}

// GET /session
func (s *Server) handleSession(c *gin.Context) {
	writeOK(c, s.Sessions.Current())
}

// POST /session/connect
func (s *Server) handleConnect(c *gin.Context) {
	sess, err := s.Sessions.Connect(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, sess)
}

// POST /session/disconnect
func (s *Server) handleDisconnect(c *gin.Context) {
	writeOK(c, s.Sessions.Disconnect(c.Request.Context()))
}

// GET /views returns the last synced state without touching the chain.
func (s *Server) handleViews(c *gin.Context) {
	writeOK(c, s.Views.Views())
}

// GET /nfts/mine
func (s *Server) handleOwned(c *gin.Context) {
	owned, err := s.Loader.LoadOwned(c.Request.Context(), s.Sessions.Current())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, owned)
}

// GET /marketplace?q=&min=&max=
func (s *Server) handleMarketplace(c *gin.Context) {
	filter, err := reconcile.ParseFilter(c.Query("q"), c.Query("min"), c.Query("max"))
	if err != nil {
		writeError(c, err)
		return
	}
	// Keep the background views on the same filter as the UI. An unchanged
	// filter does not restart the background pass.
	if err := s.Views.SetFilter(filter); err != nil {
		writeError(c, err)
		return
	}

	listings, err := s.Loader.LoadMarketplace(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, gin.H{
		"filter":   filter.View(),
		"listings": reconcile.Annotate(listings, s.Sessions.Current()),
	})
}

// GET /collections?q=&category=
func (s *Server) handleCollections(c *gin.Context) {
	filter, err := reconcile.ParseCollectionFilter(c.Query("q"), c.Query("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	tokens, err := s.Loader.LoadCollection(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, gin.H{
		"filter": filter.View(),
		"tokens": tokens,
	})
}

// GET /auctions
func (s *Server) handleAuctions(c *gin.Context) {
	auctions, err := s.Loader.LoadAuctions(c.Request.Context(), s.Clock.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, auctions)
}

// POST /nfts/mint (multipart: name, description, category, image)
func (s *Server) handleMint(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		writeBadRequest(c, "image file is required")
		return
	}
	image, err := readUpload(header)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := s.Intents.Mint(c.Request.Context(), market.MintRequest{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
		ImageName:   header.Filename,
		Image:       image,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, res)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	if header.Size > constants.MaxUploadBytes {
		return nil, errs.Invalid("image is larger than %d bytes", constants.MaxUploadBytes)
	}
	f, err := header.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, constants.MaxUploadBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	if len(data) > constants.MaxUploadBytes {
		return nil, errs.Invalid("image is larger than %d bytes", constants.MaxUploadBytes)
	}
	return data, nil
}

// POST /nfts/:id/list {"price": "2.5"}
func (s *Server) handleList(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	var req listReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, HTTPErrorInvalidJSONText)
		return
	}
	price, err := utils.ParseUnits(req.Price, constants.PriceDecimals)
	if err != nil {
		writeError(c, errs.Invalid("price: %v", err))
		return
	}
	s.respond(c)(s.Intents.List(c.Request.Context(), id, price))
}

// POST /nfts/:id/cancel
func (s *Server) handleCancel(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	s.respond(c)(s.Intents.CancelListing(c.Request.Context(), id))
}

// POST /nfts/:id/buy
func (s *Server) handleBuy(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	s.respond(c)(s.Intents.Buy(c.Request.Context(), id))
}

// POST /nfts/:id/transfer {"to": "0x..."}
func (s *Server) handleTransfer(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, HTTPErrorInvalidJSONText)
		return
	}
	to := strings.TrimSpace(req.To)
	if !common.IsHexAddress(to) {
		writeBadRequest(c, "invalid recipient address")
		return
	}
	s.respond(c)(s.Intents.Transfer(c.Request.Context(), id, common.HexToAddress(to)))
}

// POST /nfts/:id/auction {"startPrice": "1", "durationSeconds": 3600}
func (s *Server) handleCreateAuction(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	var req auctionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, HTTPErrorInvalidJSONText)
		return
	}
	start, err := utils.ParseUnits(req.StartPrice, constants.PriceDecimals)
	if err != nil {
		writeError(c, errs.Invalid("start price: %v", err))
		return
	}
	// Bound before multiplying so a huge value cannot wrap into a valid one.
	if req.DurationSeconds < 1 || req.DurationSeconds > int64(constants.MaxAuctionDuration/time.Second) {
		writeError(c, errs.Invalid("durationSeconds must be between 1 and %d", int64(constants.MaxAuctionDuration/time.Second)))
		return
	}
	duration := time.Duration(req.DurationSeconds) * time.Second
	s.respond(c)(s.Intents.CreateAuction(c.Request.Context(), id, start, duration))
}

// POST /nfts/:id/bid {"amount": "1.2"}
func (s *Server) handleBid(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	var req bidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, HTTPErrorInvalidJSONText)
		return
	}
	amount, err := utils.ParseUnits(req.Amount, constants.PriceDecimals)
	if err != nil {
		writeError(c, errs.Invalid("bid: %v", err))
		return
	}
	s.respond(c)(s.Intents.PlaceBid(c.Request.Context(), id, amount))
}

// POST /nfts/:id/settle
func (s *Server) handleSettle(c *gin.Context) {
	id, ok := tokenIDParam(c)
	if !ok {
		return
	}
	s.respond(c)(s.Intents.SettleAuction(c.Request.Context(), id))
}

// respond writes an intent outcome. A reverted transaction still reports
// its hash alongside the error.
func (s *Server) respond(c *gin.Context) func(market.Result, error) {
	return func(res market.Result, err error) {
		if err != nil {
			body := apiResponse{OK: false, Code: errs.Code(err), Error: err.Error()}
			if res.TxHash != "" {
				body.Data = res
			}
			c.AbortWithStatusJSON(statusFor(err), body)
			return
		}
		writeOK(c, res)
	}
}
