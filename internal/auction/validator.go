package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot/bidwire/internal/hub"
	"github.com/openlot/bidwire/internal/types"
)

// BidRequest is one candidate bid routed from the gateway to an auctioneer.
type BidRequest struct {
	AuctionID string
	Bidder    types.BidderContext
	Amount    decimal.Decimal
	MaxProxy  decimal.NullDecimal

	// ExpectedSequence, when set, is the snapshot sequence the client bid
	// against. A mismatch rejects with stale_sequence.
	ExpectedSequence *int64

	// ClientRef is echoed back on the ack so the client can deduplicate the
	// ack against the broadcast.
	ClientRef string

	// Notify, when set, receives the bid_accepted ack. It is emitted from
	// the same post-commit point as the broadcast, so the submitter never
	// sees its ack after a later-sequence state frame.
	Notify hub.Subscriber
}

// Rejection is a validation failure as plain data.
type Rejection struct {
	Reason types.ReasonCode

	// MinimumRequired accompanies amount_too_low so the client can prompt
	// with the smallest acceptable bid.
	MinimumRequired *decimal.Decimal
}

// Validate runs the rule checks for a candidate bid against an auction
// snapshot, in order, short-circuiting on the first failure. It is pure: the
// snapshot is passed by value and nothing is mutated, so it is safe to call
// from any goroutine.
func Validate(a types.Auction, req BidRequest, now time.Time) *Rejection {
	if !a.Status.BiddingOpen() || now.Before(a.StartTime) || !now.Before(a.EndTime) {
		return &Rejection{Reason: types.ReasonAuctionInactive}
	}

	if !req.Bidder.Verified {
		return &Rejection{Reason: types.ReasonUnverified}
	}

	if req.Bidder.UserID == a.SellerID {
		return &Rejection{Reason: types.ReasonSelfBid}
	}

	if min := a.MinimumBid(); req.Amount.LessThan(min) {
		return &Rejection{Reason: types.ReasonAmountTooLow, MinimumRequired: &min}
	}

	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return &Rejection{Reason: types.ReasonMalformedAmount}
	}

	return nil
}
