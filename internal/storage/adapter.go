package storage

import (
	"context"
	"errors"

	"github.com/openlot/bidwire/internal/types"
)

var (
	// ErrNotFound is returned when no snapshot exists for an auction.
	ErrNotFound = errors.New("auction not found")

	// ErrSequenceConflict means the (auction_id, accepted_sequence) slot is
	// already taken by a different bid. The in-memory snapshot has diverged
	// from the last durable commit and must be reloaded before accepting
	// further bids.
	ErrSequenceConflict = errors.New("sequence already committed by another bid")
)

// Adapter is the durable store consumed by the auctioneer. CommitBid is
// idempotent keyed on (auction_id, accepted_sequence): retrying a commit that
// already landed succeeds without double-applying.
type Adapter interface {
	// CommitBid durably appends the accepted bid, flips the previously
	// winning bid to OUTBID, and writes the new auction snapshot, all in one
	// transaction.
	CommitBid(ctx context.Context, bid *types.Bid, snapshot types.Auction) error

	// AppendBid records a bid that did not mutate the auction (rejected bids
	// kept for the append-only history).
	AppendBid(ctx context.Context, bid *types.Bid) error

	// UpdateSnapshot writes the auction snapshot outside the bid path
	// (activation, extension by timer, terminal close).
	UpdateSnapshot(ctx context.Context, snapshot types.Auction) error

	// LoadSnapshot returns the current durable snapshot for an auction.
	LoadSnapshot(ctx context.Context, auctionID string) (*types.Auction, error)

	// RecentBids returns the most recent accepted bids for an auction,
	// newest first, bounded by limit.
	RecentBids(ctx context.Context, auctionID string, limit int) ([]types.Bid, error)

	// BidsByBidder returns every bid one bidder placed on an auction,
	// accepted and rejected, newest first.
	BidsByBidder(ctx context.Context, auctionID, bidderID string) ([]types.Bid, error)

	// CreateAuction inserts a brand-new auction record.
	CreateAuction(ctx context.Context, auction *types.Auction) error
}
