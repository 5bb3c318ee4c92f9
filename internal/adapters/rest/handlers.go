package rest

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/ports/inbound"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type createAuctionBody struct {
	ListingID       uuid.UUID        `json:"listing_id"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	ReservePrice    *decimal.Decimal `json:"reserve_price"`
	MinBidIncrement *decimal.Decimal `json:"min_bid_increment"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	MaxExtensions   *int             `json:"max_extensions"`
}

type placeBidBody struct {
	Amount       decimal.Decimal  `json:"amount"`
	ProxyCeiling *decimal.Decimal `json:"proxy_ceiling"`
}

type proxyBidBody struct {
	Ceiling    decimal.Decimal  `json:"ceiling"`
	InitialBid *decimal.Decimal `json:"initial_bid"`
}

type extendBody struct {
	Minutes int    `json:"minutes"`
	Reason  string `json:"reason"`
}

type reasonBody struct {
	Reason string `json:"reason"`
}

// Handler serves the REST API over the inbound ports
type Handler struct {
	auctions inbound.AuctionService
	bids     inbound.BidService
	logger   zerolog.Logger
}

type HandlerParams struct {
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	Logger         zerolog.Logger
}

func NewHandler(params HandlerParams) *Handler {
	return &Handler{
		auctions: params.AuctionService,
		bids:     params.BidService,
		logger:   params.Logger.With().Str("component", "rest_handler").Logger(),
	}
}

func (h *Handler) bindError(c *gin.Context, handlerName string, err error) {
	wrapped := fmt.Errorf("invalid request payload: %w", err)
	JSONError(c, http.StatusBadRequest, wrapped, "invalid request payload")
	h.logger.Warn().Err(err).Str("handler", handlerName).Msg("Binding error")
}

// serviceError reports a failed call. Only unexpected failures are logged
// as errors; rule rejections are routine.
func (h *Handler) serviceError(c *gin.Context, handlerName string, err error) {
	abortWithServiceError(c, err)
	if MapErrorToHTTP(err) >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("handler", handlerName).Msg("Request failed")
	}
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, body any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(body)
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		JSONError(c, http.StatusBadRequest, errInvalidID, "invalid request")
		return uuid.Nil, false
	}
	return id, true
}

// CreateAuction handles POST /auctions
func (h *Handler) CreateAuction(c *gin.Context) {
	var body createAuctionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, "CreateAuction", err)
		return
	}

	a, err := h.auctions.CreateAuction(c.Request.Context(), inbound.CreateAuctionRequest{
		ListingID:       body.ListingID,
		SellerID:        currentUser(c),
		StartingPrice:   body.StartingPrice,
		ReservePrice:    body.ReservePrice,
		MinBidIncrement: body.MinBidIncrement,
		StartTime:       body.StartTime,
		EndTime:         body.EndTime,
		MaxExtensions:   body.MaxExtensions,
	})
	if err != nil {
		h.serviceError(c, "CreateAuction", err)
		return
	}
	JSONResponse(c, http.StatusCreated, a, "auction created")
}

// ListAuctions handles GET /auctions
func (h *Handler) ListAuctions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	req := inbound.ListAuctionsRequest{Page: page, PageSize: pageSize}
	if s := c.Query("status"); s != "" {
		status := auction.Status(s)
		req.Status = &status
	}

	auctions, err := h.auctions.ListAuctions(c.Request.Context(), req)
	if err != nil {
		h.serviceError(c, "ListAuctions", err)
		return
	}
	JSONResponse(c, http.StatusOK, auctions, "auctions retrieved")
}

// GetAuction handles GET /auctions/:id
func (h *Handler) GetAuction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := h.auctions.GetAuction(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "GetAuction", err)
		return
	}
	JSONResponse(c, http.StatusOK, a, "auction retrieved")
}

// GetBids handles GET /auctions/:id/bids
func (h *Handler) GetBids(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	bids, err := h.bids.GetBids(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "GetBids", err)
		return
	}
	JSONResponse(c, http.StatusOK, bids, "bids retrieved")
}

// PlaceBid handles POST /auctions/:id/bids
func (h *Handler) PlaceBid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body placeBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, "PlaceBid", err)
		return
	}

	admission, err := h.bids.PlaceBid(c.Request.Context(), inbound.PlaceBidRequest{
		AuctionID:    id,
		BidderID:     currentUser(c),
		Amount:       body.Amount,
		ProxyCeiling: body.ProxyCeiling,
	})
	if err != nil {
		h.serviceError(c, "PlaceBid", err)
		return
	}
	JSONResponse(c, http.StatusCreated, admission, "bid accepted")
}

// SetupProxyBid handles POST /auctions/:id/proxy
func (h *Handler) SetupProxyBid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body proxyBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, "SetupProxyBid", err)
		return
	}

	admission, err := h.bids.SetupProxyBid(c.Request.Context(), inbound.SetupProxyBidRequest{
		AuctionID:  id,
		BidderID:   currentUser(c),
		Ceiling:    body.Ceiling,
		InitialBid: body.InitialBid,
	})
	if err != nil {
		h.serviceError(c, "SetupProxyBid", err)
		return
	}
	JSONResponse(c, http.StatusCreated, admission, "proxy bid registered")
}

// CancelProxyBid handles DELETE /auctions/:id/proxy
func (h *Handler) CancelProxyBid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	kept, err := h.bids.CancelProxyBid(c.Request.Context(), inbound.CancelProxyBidRequest{
		AuctionID: id,
		BidderID:  currentUser(c),
	})
	if err != nil {
		h.serviceError(c, "CancelProxyBid", err)
		return
	}
	JSONResponse(c, http.StatusOK, kept, "proxy bid cancelled")
}

// RetractBid handles POST /bids/:id/retract
func (h *Handler) RetractBid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body reasonBody
	if err := bindOptional(c, &body); err != nil {
		h.bindError(c, "RetractBid", err)
		return
	}

	retraction, err := h.bids.RetractBid(c.Request.Context(), inbound.RetractBidRequest{
		BidID:       id,
		RequestedBy: currentUser(c),
		Reason:      body.Reason,
	})
	if err != nil {
		h.serviceError(c, "RetractBid", err)
		return
	}
	JSONResponse(c, http.StatusOK, retraction, "bid retracted")
}

// ExtendAuction handles POST /auctions/:id/extend
func (h *Handler) ExtendAuction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body extendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, "ExtendAuction", err)
		return
	}

	delta, err := h.auctions.ExtendAuction(c.Request.Context(), inbound.ExtendAuctionRequest{
		AuctionID:   id,
		RequestedBy: currentUser(c),
		Minutes:     body.Minutes,
		Reason:      body.Reason,
	})
	if err != nil {
		h.serviceError(c, "ExtendAuction", err)
		return
	}
	JSONResponse(c, http.StatusOK, delta, "auction extended")
}

// CancelAuction handles POST /auctions/:id/cancel
func (h *Handler) CancelAuction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body reasonBody
	if err := bindOptional(c, &body); err != nil {
		h.bindError(c, "CancelAuction", err)
		return
	}

	a, err := h.auctions.CancelAuction(c.Request.Context(), inbound.CancelAuctionRequest{
		AuctionID:   id,
		RequestedBy: actor(c),
		Reason:      body.Reason,
	})
	if err != nil {
		h.serviceError(c, "CancelAuction", err)
		return
	}
	JSONResponse(c, http.StatusOK, a, "auction cancelled")
}

// EndAuction handles POST /auctions/:id/end
func (h *Handler) EndAuction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.auctions.EndAuction(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "EndAuction", err)
		return
	}
	JSONResponse(c, http.StatusOK, result, "auction ended")
}

// SettleAuction handles POST /auctions/:id/settle
func (h *Handler) SettleAuction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := h.auctions.SettleAuction(c.Request.Context(), inbound.SettleAuctionRequest{
		AuctionID:   id,
		RequestedBy: actor(c),
	})
	if err != nil {
		h.serviceError(c, "SettleAuction", err)
		return
	}
	JSONResponse(c, http.StatusOK, a, "auction settled")
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auction-engine"})
}
