package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openlot/bidwire/internal/types"
)

// Database is the GORM-backed persistence adapter.
type Database struct {
	db *gorm.DB
}

// Open initializes the SQLite database and runs migrations.
func Open(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&types.Auction{}, &types.Bid{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Database{db: db}, nil
}

// NewDatabase wraps an existing GORM connection (used by tests).
func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateAuction(ctx context.Context, auction *types.Auction) error {
	return d.db.WithContext(ctx).Create(auction).Error
}

func (d *Database) LoadSnapshot(ctx context.Context, auctionID string) (*types.Auction, error) {
	var auction types.Auction
	err := d.db.WithContext(ctx).Where("auction_id = ?", auctionID).First(&auction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &auction, nil
}

func (d *Database) UpdateSnapshot(ctx context.Context, snapshot types.Auction) error {
	res := d.db.WithContext(ctx).
		Model(&types.Auction{}).
		Where("auction_id = ?", snapshot.AuctionID).
		Select("status", "start_time", "end_time", "extension_count",
			"current_price", "winning_bid_id", "sequence", "updated_at").
		Updates(&snapshot)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) AppendBid(ctx context.Context, bid *types.Bid) error {
	return d.db.WithContext(ctx).Create(bid).Error
}

// CommitBid writes the accepted bid and the new auction snapshot in one
// transaction. A retry that finds its own bid already committed at the target
// sequence returns success; a different bid at that sequence surfaces
// ErrSequenceConflict.
func (d *Database) CommitBid(ctx context.Context, bid *types.Bid, snapshot types.Auction) error {
	if bid.AcceptedSequence == nil {
		return errors.New("commit requires an accepted sequence")
	}

	var existing types.Bid
	err := d.db.WithContext(ctx).
		Where("auction_id = ? AND accepted_sequence = ?", bid.AuctionID, *bid.AcceptedSequence).
		First(&existing).Error
	if err == nil {
		if existing.BidID == bid.BidID {
			return nil // already applied
		}
		return ErrSequenceConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if snapshot.WinningBidID != bid.BidID {
			return fmt.Errorf("snapshot winner %q does not match bid %q", snapshot.WinningBidID, bid.BidID)
		}

		// Flip the previously winning bid.
		if err := tx.Model(&types.Bid{}).
			Where("auction_id = ? AND status = ?", bid.AuctionID, types.BidWinning).
			Update("status", types.BidOutbid).Error; err != nil {
			return err
		}

		if err := tx.Create(bid).Error; err != nil {
			return err
		}

		res := tx.Model(&types.Auction{}).
			Where("auction_id = ?", snapshot.AuctionID).
			Select("status", "end_time", "extension_count", "current_price",
				"winning_bid_id", "sequence", "updated_at").
			Updates(&snapshot)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (d *Database) BidsByBidder(ctx context.Context, auctionID, bidderID string) ([]types.Bid, error) {
	var bids []types.Bid
	err := d.db.WithContext(ctx).
		Where("auction_id = ? AND bidder_id = ?", auctionID, bidderID).
		Order("submitted_at DESC").
		Find(&bids).Error
	if err != nil {
		return nil, err
	}
	return bids, nil
}

func (d *Database) RecentBids(ctx context.Context, auctionID string, limit int) ([]types.Bid, error) {
	var bids []types.Bid
	err := d.db.WithContext(ctx).
		Where("auction_id = ? AND accepted_sequence IS NOT NULL", auctionID).
		Order("accepted_sequence DESC").
		Limit(limit).
		Find(&bids).Error
	if err != nil {
		return nil, err
	}
	return bids, nil
}
