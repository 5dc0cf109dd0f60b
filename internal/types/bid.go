package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BidStatus is the closed set of bid states. A bid is created PENDING by the
// gateway, resolved to ACCEPTED or REJECTED by the auctioneer, and an accepted
// bid is WINNING until a later accepted bid flips it to OUTBID.
type BidStatus string

const (
	BidPending  BidStatus = "PENDING"
	BidAccepted BidStatus = "ACCEPTED"
	BidRejected BidStatus = "REJECTED"
	BidOutbid   BidStatus = "OUTBID"
	BidWinning  BidStatus = "WINNING"
)

// Bid is one buyer's priced offer against an auction. Bids are append-only:
// they are never deleted, only flipped between statuses by the owning
// auctioneer.
type Bid struct {
	gorm.Model `json:"-"`
	BidID      string `gorm:"uniqueIndex" json:"bid_id"`
	AuctionID  string `gorm:"index;uniqueIndex:idx_auction_sequence" json:"auction_id"`
	BidderID   string `json:"bidder_id"`

	Amount decimal.Decimal `gorm:"type:numeric" json:"amount"`

	// MaxProxyAmount is a pre-authorized ceiling for automatic escalation.
	// The ceiling is stored but no auto-bidding engine acts on it.
	MaxProxyAmount decimal.NullDecimal `gorm:"type:numeric" json:"max_proxy_amount,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`

	// AcceptedSequence is the auction's sequence value at acceptance, nil for
	// rejected bids. Unique per auction so no two accepted bids share one.
	AcceptedSequence *int64 `gorm:"uniqueIndex:idx_auction_sequence" json:"accepted_sequence,omitempty"`

	Status          BidStatus `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`

	// ClientRef is the opaque client_id echoed back on acks so a client can
	// match its own submission against the broadcast.
	ClientRef string `json:"client_ref,omitempty"`
}

// BidderContext is the identity resolved by the auth provider for one
// connection. Observers may be anonymous; bidding requires a verified one.
type BidderContext struct {
	UserID   string `json:"user_id"`
	Verified bool   `json:"is_verified"`
}
