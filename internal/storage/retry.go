package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlot/bidwire/internal/types"
)

// Retrying wraps an Adapter with a bounded retry loop. Transient write
// failures are retried with doubling backoff; ErrSequenceConflict and
// ErrNotFound are permanent and returned immediately. Reads are not retried.
type Retrying struct {
	inner    Adapter
	attempts int
	backoff  time.Duration
	logger   zerolog.Logger
}

func NewRetrying(inner Adapter, attempts int, backoff time.Duration, logger zerolog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		inner:    inner,
		attempts: attempts,
		backoff:  backoff,
		logger:   logger.With().Str("component", "storage_retry").Logger(),
	}
}

func permanent(err error) bool {
	return errors.Is(err, ErrSequenceConflict) || errors.Is(err, ErrNotFound)
}

func (r *Retrying) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	delay := r.backoff
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = fn(); err == nil || permanent(err) {
			return err
		}
		r.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("durable write failed")
		if attempt == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (r *Retrying) CommitBid(ctx context.Context, bid *types.Bid, snapshot types.Auction) error {
	return r.retry(ctx, "commit_bid", func() error {
		return r.inner.CommitBid(ctx, bid, snapshot)
	})
}

func (r *Retrying) AppendBid(ctx context.Context, bid *types.Bid) error {
	return r.retry(ctx, "append_bid", func() error {
		return r.inner.AppendBid(ctx, bid)
	})
}

func (r *Retrying) UpdateSnapshot(ctx context.Context, snapshot types.Auction) error {
	return r.retry(ctx, "update_snapshot", func() error {
		return r.inner.UpdateSnapshot(ctx, snapshot)
	})
}

func (r *Retrying) LoadSnapshot(ctx context.Context, auctionID string) (*types.Auction, error) {
	return r.inner.LoadSnapshot(ctx, auctionID)
}

func (r *Retrying) RecentBids(ctx context.Context, auctionID string, limit int) ([]types.Bid, error) {
	return r.inner.RecentBids(ctx, auctionID, limit)
}

func (r *Retrying) BidsByBidder(ctx context.Context, auctionID, bidderID string) ([]types.Bid, error) {
	return r.inner.BidsByBidder(ctx, auctionID, bidderID)
}

func (r *Retrying) CreateAuction(ctx context.Context, auction *types.Auction) error {
	return r.retry(ctx, "create_auction", func() error {
		return r.inner.CreateAuction(ctx, auction)
	})
}
