package auction

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/openlot/bidwire/pkg/middleware"
	"github.com/openlot/bidwire/pkg/response"
)

// GinHandlers contains the thin REST surface around the registry: auction
// seeding for the listing workflow, the scheduler activation signal, and a
// snapshot read for observers.
type GinHandlers struct {
	registry *Registry
}

func NewGinHandlers(registry *Registry) *GinHandlers {
	return &GinHandlers{registry: registry}
}

// CreateAuctionHandler handles POST requests seeding a new auction record.
func (h *GinHandlers) CreateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var params CreateAuctionParams
		if err := c.ShouldBindJSON(&params); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if params.StartingPrice.IsNegative() || params.MinIncrement.IsNegative() {
			response.BadRequest(c, "prices must not be negative")
			return
		}

		auction, err := h.registry.Create(c.Request.Context(), params)
		response.Handle(c, auction, err)
	}
}

// ActivateAuctionHandler handles the scheduler signal flipping an auction to
// ACTIVE at start time.
func (h *GinHandlers) ActivateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")
		err := h.registry.Activate(c.Request.Context(), auctionID)
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			response.NotFound(c, "Auction not found")
		case errors.Is(err, ErrAuctionFinished):
			response.Conflict(c, "Auction already finished")
		default:
			response.Handle(c, gin.H{"auction_id": auctionID, "status": "ACTIVE"}, err)
		}
	}
}

// ListMyBidsHandler returns the caller's own bids on an auction, resolved
// from the bidder context the auth middleware stored.
func (h *GinHandlers) ListMyBidsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bidder, ok := middleware.Bidder(c)
		if !ok {
			response.Unauthorized(c, "Bidder identity required")
			return
		}

		auctionID := c.Param("auction_id")
		bids, err := h.registry.BidderHistory(c.Request.Context(), auctionID, bidder.UserID)
		if errors.Is(err, ErrAuctionNotFound) {
			response.NotFound(c, "Auction not found")
			return
		}
		response.Handle(c, gin.H{"auction_id": auctionID, "bids": bids}, err)
	}
}

// GetAuctionHandler returns the authoritative snapshot with the recent-bid
// window, the same view a joining subscriber receives.
func (h *GinHandlers) GetAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctionID := c.Param("auction_id")
		frame, ok := h.registry.SnapshotFrame(auctionID)
		if !ok {
			response.NotFound(c, "Auction not found")
			return
		}
		response.Success(c, json.RawMessage(frame))
	}
}
