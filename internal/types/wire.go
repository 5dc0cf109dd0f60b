package types

import (
	"encoding/json"
	"time"
)

// Client -> server message types.
const (
	MsgJoin     = "join"
	MsgPlaceBid = "place_bid"
	MsgPing     = "ping"
)

// Server -> client message types.
const (
	MsgAuctionState = "auction_state"
	MsgBidAccepted  = "bid_accepted"
	MsgBidRejected  = "bid_rejected"
	MsgError        = "error"
	MsgPong         = "pong"
)

// ClientMessage is the single tagged frame accepted from clients.
type ClientMessage struct {
	Type      string   `json:"type"`
	AuctionID string   `json:"auction_id,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
	MaxBid    *float64 `json:"max_bid,omitempty"`
	// Sequence, when present, is the snapshot sequence the client bid
	// against; a mismatch is rejected as stale_sequence.
	Sequence *int64 `json:"sequence,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// BidSummary is one entry of the bounded recent-bid window delivered to late
// joiners.
type BidSummary struct {
	BidID    string    `json:"bid_id"`
	BidderID string    `json:"bidder_id"`
	Amount   float64   `json:"amount"`
	Sequence int64     `json:"sequence"`
	PlacedAt time.Time `json:"placed_at"`
}

// AuctionState is the broadcast snapshot frame. RecentBids is populated only
// on the snapshot sent to a newly subscribed connection.
type AuctionState struct {
	Type           string        `json:"type"`
	AuctionID      string        `json:"auction_id"`
	Status         AuctionStatus `json:"status"`
	CurrentPrice   float64       `json:"current_price"`
	MinIncrement   float64       `json:"min_increment"`
	EndTime        time.Time     `json:"end_time"`
	ExtensionCount int           `json:"extension_count"`
	Sequence       int64         `json:"sequence"`
	WinningBidID   string        `json:"winning_bid_id,omitempty"`
	Participants   int           `json:"participants,omitempty"`
	RecentBids     []BidSummary  `json:"recent_bids,omitempty"`
}

// NewAuctionState builds the wire snapshot for an auction copy.
func NewAuctionState(a Auction, participants int) AuctionState {
	return AuctionState{
		Type:           MsgAuctionState,
		AuctionID:      a.AuctionID,
		Status:         a.Status,
		CurrentPrice:   a.CurrentPrice.InexactFloat64(),
		MinIncrement:   a.MinIncrement.InexactFloat64(),
		EndTime:        a.EndTime,
		ExtensionCount: a.ExtensionCount,
		Sequence:       a.Sequence,
		WinningBidID:   a.WinningBidID,
		Participants:   participants,
	}
}

// BidAcceptedMsg is the synchronous ack for an accepted bid. It is emitted
// from the same post-commit point as the matching auction_state broadcast, so
// a client can deduplicate the pair on Sequence.
type BidAcceptedMsg struct {
	Type      string    `json:"type"`
	AuctionID string    `json:"auction_id"`
	BidID     string    `json:"bid_id"`
	Amount    float64   `json:"amount"`
	Sequence  int64     `json:"sequence"`
	EndTime   time.Time `json:"end_time"`
	ClientID  string    `json:"client_id,omitempty"`
}

// BidRejectedMsg carries the rejection reason, the minimum acceptable amount
// for amount_too_low, and the fresh snapshot for stale_sequence.
type BidRejectedMsg struct {
	Type            string        `json:"type"`
	AuctionID       string        `json:"auction_id"`
	Reason          ReasonCode    `json:"reason"`
	MinimumRequired *float64      `json:"minimum_required,omitempty"`
	Snapshot        *AuctionState `json:"snapshot,omitempty"`
	ClientID        string        `json:"client_id,omitempty"`
}

// ErrorMsg is the protocol-level error frame.
type ErrorMsg struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// PongMsg answers a ping.
type PongMsg struct {
	Type string `json:"type"`
}

// Frame marshals a wire message, panicking on marshal failure. All wire
// structs are plain data so a failure here is a programming error.
func Frame(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
