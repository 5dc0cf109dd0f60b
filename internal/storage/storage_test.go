package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/openlot/bidwire/internal/types"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "bidwire_test.db"))
	assert.Nil(t, err)
	return db
}

func seedAuction(t *testing.T, db *Database) types.Auction {
	t.Helper()
	now := time.Now()
	auction := types.Auction{
		AuctionID:     "AUC_storage",
		SellerID:      "seller-1",
		Title:         "Harbor lot",
		Status:        types.AuctionActive,
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		StartingPrice: decimal.NewFromInt(1000),
		CurrentPrice:  decimal.NewFromInt(1000),
		MinIncrement:  decimal.NewFromInt(50),
	}
	assert.Nil(t, db.CreateAuction(context.Background(), &auction))
	return auction
}

func acceptedBid(auctionID, bidID, bidderID string, amount int64, seq int64) *types.Bid {
	return &types.Bid{
		BidID:            bidID,
		AuctionID:        auctionID,
		BidderID:         bidderID,
		Amount:           decimal.NewFromInt(amount),
		SubmittedAt:      time.Now(),
		AcceptedSequence: &seq,
		Status:           types.BidWinning,
	}
}

func TestLoadSnapshot(t *testing.T) {
	db := openTestDB(t)
	seeded := seedAuction(t, db)

	loaded, err := db.LoadSnapshot(context.Background(), seeded.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, seeded.AuctionID, loaded.AuctionID)
	check.Equal(t, types.AuctionActive, loaded.Status)
	check.True(t, loaded.CurrentPrice.Equal(decimal.NewFromInt(1000)))

	_, err = db.LoadSnapshot(context.Background(), "AUC_missing")
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestCommitBid(t *testing.T) {
	db := openTestDB(t)
	seeded := seedAuction(t, db)

	bid := acceptedBid(seeded.AuctionID, "BID_1", "buyer-1", 1100, 1)
	snapshot := seeded
	snapshot.CurrentPrice = decimal.NewFromInt(1100)
	snapshot.WinningBidID = bid.BidID
	snapshot.Sequence = 1

	assert.Nil(t, db.CommitBid(context.Background(), bid, snapshot))

	loaded, err := db.LoadSnapshot(context.Background(), seeded.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, int64(1), loaded.Sequence)
	check.Equal(t, "BID_1", loaded.WinningBidID)
	check.True(t, loaded.CurrentPrice.Equal(decimal.NewFromInt(1100)))
}

func TestCommitBid_RetryIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	seeded := seedAuction(t, db)

	bid := acceptedBid(seeded.AuctionID, "BID_1", "buyer-1", 1100, 1)
	snapshot := seeded
	snapshot.CurrentPrice = decimal.NewFromInt(1100)
	snapshot.WinningBidID = bid.BidID
	snapshot.Sequence = 1

	assert.Nil(t, db.CommitBid(context.Background(), bid, snapshot))
	// A retry of the same commit lands on its own bid and succeeds.
	assert.Nil(t, db.CommitBid(context.Background(), bid, snapshot))

	bids, err := db.RecentBids(context.Background(), seeded.AuctionID, 10)
	assert.Nil(t, err)
	check.Equal(t, 1, len(bids))
}

func TestCommitBid_SequenceConflict(t *testing.T) {
	db := openTestDB(t)
	seeded := seedAuction(t, db)

	first := acceptedBid(seeded.AuctionID, "BID_1", "buyer-1", 1100, 1)
	snapshot := seeded
	snapshot.CurrentPrice = decimal.NewFromInt(1100)
	snapshot.WinningBidID = first.BidID
	snapshot.Sequence = 1
	assert.Nil(t, db.CommitBid(context.Background(), first, snapshot))

	// A different bid targeting the same sequence slot must be refused.
	second := acceptedBid(seeded.AuctionID, "BID_2", "buyer-2", 1200, 1)
	snapshot.WinningBidID = second.BidID
	err := db.CommitBid(context.Background(), second, snapshot)
	check.True(t, errors.Is(err, ErrSequenceConflict))
}

func TestCommitBid_FlipsPreviousWinner(t *testing.T) {
	db := openTestDB(t)
	seeded := seedAuction(t, db)
	ctx := context.Background()

	first := acceptedBid(seeded.AuctionID, "BID_1", "buyer-1", 1100, 1)
	snapshot := seeded
	snapshot.CurrentPrice = decimal.NewFromInt(1100)
	snapshot.WinningBidID = first.BidID
	snapshot.Sequence = 1
	assert.Nil(t, db.CommitBid(ctx, first, snapshot))

	second := acceptedBid(seeded.AuctionID, "BID_2", "buyer-2", 1200, 2)
	snapshot.CurrentPrice = decimal.NewFromInt(1200)
	snapshot.WinningBidID = second.BidID
	snapshot.Sequence = 2
	assert.Nil(t, db.CommitBid(ctx, second, snapshot))

	bids, err := db.RecentBids(ctx, seeded.AuctionID, 10)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(bids))
	// Newest first.
	check.Equal(t, "BID_2", bids[0].BidID)
	check.Equal(t, types.BidWinning, bids[0].Status)
	check.Equal(t, "BID_1", bids[1].BidID)
	check.Equal(t, types.BidOutbid, bids[1].Status)
}

func TestRecentBids_ExcludesRejectedAndHonorsLimit(t *testing.T) {
	db := openTestDB(t)
	seeded := seedAuction(t, db)
	ctx := context.Background()

	snapshot := seeded
	for i := int64(1); i <= 3; i++ {
		bid := acceptedBid(seeded.AuctionID, "BID_"+string(rune('0'+i)), "buyer-1", 1000+i*100, i)
		snapshot.CurrentPrice = bid.Amount
		snapshot.WinningBidID = bid.BidID
		snapshot.Sequence = i
		assert.Nil(t, db.CommitBid(ctx, bid, snapshot))
	}

	rejected := &types.Bid{
		BidID:           "BID_rejected",
		AuctionID:       seeded.AuctionID,
		BidderID:        "buyer-2",
		Amount:          decimal.NewFromInt(900),
		SubmittedAt:     time.Now(),
		Status:          types.BidRejected,
		RejectionReason: string(types.ReasonAmountTooLow),
	}
	assert.Nil(t, db.AppendBid(ctx, rejected))

	bids, err := db.RecentBids(ctx, seeded.AuctionID, 2)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(bids))
	check.Equal(t, "BID_3", bids[0].BidID)
	check.Equal(t, "BID_2", bids[1].BidID)
}

func TestBidsByBidder(t *testing.T) {
	db := openTestDB(t)
	seeded := seedAuction(t, db)
	ctx := context.Background()
	now := time.Now()

	snapshot := seeded
	mine := acceptedBid(seeded.AuctionID, "BID_1", "buyer-1", 1100, 1)
	mine.SubmittedAt = now.Add(-2 * time.Minute)
	snapshot.CurrentPrice = mine.Amount
	snapshot.WinningBidID = mine.BidID
	snapshot.Sequence = 1
	assert.Nil(t, db.CommitBid(ctx, mine, snapshot))

	rival := acceptedBid(seeded.AuctionID, "BID_2", "buyer-2", 1200, 2)
	rival.SubmittedAt = now.Add(-time.Minute)
	snapshot.CurrentPrice = rival.Amount
	snapshot.WinningBidID = rival.BidID
	snapshot.Sequence = 2
	assert.Nil(t, db.CommitBid(ctx, rival, snapshot))

	rejected := &types.Bid{
		BidID:           "BID_3",
		AuctionID:       seeded.AuctionID,
		BidderID:        "buyer-1",
		Amount:          decimal.NewFromInt(1150),
		SubmittedAt:     now,
		Status:          types.BidRejected,
		RejectionReason: string(types.ReasonAmountTooLow),
	}
	assert.Nil(t, db.AppendBid(ctx, rejected))

	bids, err := db.BidsByBidder(ctx, seeded.AuctionID, "buyer-1")
	assert.Nil(t, err)
	assert.Equal(t, 2, len(bids))
	// Newest first, rejected bids included.
	check.Equal(t, "BID_3", bids[0].BidID)
	check.Equal(t, types.BidRejected, bids[0].Status)
	check.Equal(t, "BID_1", bids[1].BidID)
	check.Equal(t, types.BidOutbid, bids[1].Status)
}

func TestUpdateSnapshot(t *testing.T) {
	db := openTestDB(t)
	seeded := seedAuction(t, db)
	ctx := context.Background()

	seeded.Status = types.AuctionEnded
	seeded.Sequence = 1
	assert.Nil(t, db.UpdateSnapshot(ctx, seeded))

	loaded, err := db.LoadSnapshot(ctx, seeded.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, types.AuctionEnded, loaded.Status)
	check.Equal(t, int64(1), loaded.Sequence)

	missing := seeded
	missing.AuctionID = "AUC_missing"
	check.True(t, errors.Is(db.UpdateSnapshot(ctx, missing), ErrNotFound))
}
