package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AuctionStatus is the closed set of auction lifecycle states. Transitions
// only move forward, with the single exception of CLOSING -> ACTIVE when an
// extension pushes the deadline back out of the closing window.
type AuctionStatus string

const (
	AuctionDraft     AuctionStatus = "DRAFT"
	AuctionScheduled AuctionStatus = "SCHEDULED"
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionClosing   AuctionStatus = "CLOSING"
	AuctionEnded     AuctionStatus = "ENDED"
	AuctionSold      AuctionStatus = "SOLD"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

var statusRank = map[AuctionStatus]int{
	AuctionDraft:     0,
	AuctionScheduled: 1,
	AuctionActive:    2,
	AuctionClosing:   3,
	AuctionEnded:     4,
	AuctionSold:      4,
	AuctionCancelled: 4,
}

// BiddingOpen reports whether the auction accepts bids in this status.
// The deadline check is authoritative; status is informational.
func (s AuctionStatus) BiddingOpen() bool {
	return s == AuctionActive || s == AuctionClosing
}

// Terminal reports whether the auction has reached a final state.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionEnded || s == AuctionSold || s == AuctionCancelled
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. CLOSING -> ACTIVE is allowed because an extension can move the
// deadline without regressing the auction.
func (s AuctionStatus) CanTransition(next AuctionStatus) bool {
	if s == AuctionClosing && next == AuctionActive {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Auction is the authoritative record for one auction. A copy of it is the
// snapshot handed to the validator and to late-joining subscribers; only the
// owning auctioneer ever mutates the live instance.
type Auction struct {
	gorm.Model `json:"-"`
	AuctionID  string        `gorm:"uniqueIndex" json:"auction_id"`
	SellerID   string        `json:"seller_id"`
	Title      string        `json:"title"`
	Status     AuctionStatus `json:"status"`

	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	AutoExtend         bool          `json:"auto_extend"`
	ExtensionThreshold time.Duration `json:"extension_threshold"`
	ExtensionDuration  time.Duration `json:"extension_duration"`
	ExtensionCount     int           `json:"extension_count"`
	MaxExtensions      int           `json:"max_extensions"`

	StartingPrice decimal.Decimal `gorm:"type:numeric" json:"starting_price"`
	CurrentPrice  decimal.Decimal `gorm:"type:numeric" json:"current_price"`
	MinIncrement  decimal.Decimal `gorm:"type:numeric" json:"min_increment"`

	WinningBidID string `json:"winning_bid_id,omitempty"`

	// Sequence increases by one on every accepted mutation. Used for
	// staleness checks and for ordering accepted bids.
	Sequence int64 `json:"sequence"`
}

// MinimumBid returns the smallest amount the next bid must carry.
func (a *Auction) MinimumBid() decimal.Decimal {
	return a.CurrentPrice.Add(a.MinIncrement)
}
