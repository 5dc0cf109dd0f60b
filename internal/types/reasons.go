package types

// ReasonCode identifies why a bid was rejected or a frame refused. Validation
// failures are ordinary data carried in a BidOutcome, never Go errors.
type ReasonCode string

const (
	// Validation rejections, surfaced synchronously and never retried.
	ReasonAuctionInactive ReasonCode = "auction_inactive"
	ReasonUnverified      ReasonCode = "unverified_bidder"
	ReasonSelfBid         ReasonCode = "self_bid_forbidden"
	ReasonAmountTooLow    ReasonCode = "amount_too_low"
	ReasonMalformedAmount ReasonCode = "malformed_amount"

	// Concurrency rejection: the client acted on an outdated snapshot. The
	// rejection carries the fresh snapshot so the client can resubmit.
	ReasonStaleSequence ReasonCode = "stale_sequence"

	// Durable write failed after bounded retries; auction state unchanged.
	ReasonPersistenceUnavailable ReasonCode = "persistence_unavailable"
)

// Protocol-level error codes delivered on the error frame.
const (
	ErrCodeProtocolError   = "protocol_error"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeAuctionNotFound = "auction_not_found"
)
