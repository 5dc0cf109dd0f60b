package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openlot/bidwire/internal/storage"
	"github.com/openlot/bidwire/internal/types"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionFinished = errors.New("auction reached a terminal status")
)

// Registry is the concurrent map from auction_id to its live auctioneer.
// Handles are constructed lazily on first access and torn down when the
// auction reaches a terminal status. Read-mostly after warm-up.
type Registry struct {
	mu   sync.RWMutex
	live map[string]*Auctioneer

	store         storage.Adapter
	broadcast     Broadcaster
	events        EventSink
	logger        zerolog.Logger
	historyWindow int
}

func NewRegistry(store storage.Adapter, events EventSink, logger zerolog.Logger, historyWindow int) *Registry {
	return &Registry{
		live:          make(map[string]*Auctioneer),
		store:         store,
		events:        events,
		logger:        logger.With().Str("component", "registry").Logger(),
		historyWindow: historyWindow,
	}
}

// SetBroadcaster wires the hub in after construction; the hub in turn holds
// the registry as its snapshot source.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.broadcast = b
}

// Get returns the live auctioneer for an auction, constructing it from the
// durable snapshot on first access. Terminal auctions have no auctioneer.
func (r *Registry) Get(ctx context.Context, auctionID string) (*Auctioneer, error) {
	r.mu.RLock()
	a, ok := r.live[auctionID]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	snap, err := r.store.LoadSnapshot(ctx, auctionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	if snap.Status.Terminal() {
		return nil, ErrAuctionFinished
	}

	history, err := r.store.RecentBids(ctx, auctionID, r.historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load bid history: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.live[auctionID]; ok {
		return a, nil
	}
	a = New(*snap, history, Deps{
		Store:         r.store,
		Broadcast:     r.broadcast,
		Events:        r.events,
		Logger:        r.logger,
		HistoryWindow: r.historyWindow,
		OnStopped:     r.evict,
	})
	r.live[auctionID] = a
	return a, nil
}

func (r *Registry) evict(auctionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, auctionID)
}

// SnapshotFrame implements hub.SnapshotSource: the authoritative state frame
// for late joiners, with the bounded recent-bid window. Terminal auctions are
// served from the durable snapshot.
func (r *Registry) SnapshotFrame(auctionID string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.mu.RLock()
	a, ok := r.live[auctionID]
	r.mu.RUnlock()

	if ok {
		state, history, alive := a.StateView(ctx)
		if alive {
			return types.Frame(stateWithHistory(state, history, r.participants(auctionID))), true
		}
	}

	snap, err := r.store.LoadSnapshot(ctx, auctionID)
	if err != nil {
		return nil, false
	}
	history, err := r.store.RecentBids(ctx, auctionID, r.historyWindow)
	if err != nil {
		return nil, false
	}
	return types.Frame(stateWithHistory(*snap, history, r.participants(auctionID))), true
}

func (r *Registry) participants(auctionID string) int {
	if r.broadcast == nil {
		return 0
	}
	return r.broadcast.Count(auctionID)
}

func stateWithHistory(a types.Auction, history []types.Bid, participants int) types.AuctionState {
	state := types.NewAuctionState(a, participants)
	for _, b := range history {
		if b.AcceptedSequence == nil {
			continue
		}
		state.RecentBids = append(state.RecentBids, types.BidSummary{
			BidID:    b.BidID,
			BidderID: b.BidderID,
			Amount:   b.Amount.InexactFloat64(),
			Sequence: *b.AcceptedSequence,
			PlacedAt: b.SubmittedAt,
		})
	}
	return state
}

// CreateAuctionParams seeds a new auction record from the external listing
// workflow.
type CreateAuctionParams struct {
	SellerID           string          `json:"seller_id" binding:"required"`
	Title              string          `json:"title" binding:"required"`
	StartingPrice      decimal.Decimal `json:"starting_price"`
	MinIncrement       decimal.Decimal `json:"min_increment"`
	StartTime          time.Time       `json:"start_time"`
	DurationSeconds    int64           `json:"duration_seconds" binding:"required"`
	AutoExtend         bool            `json:"auto_extend"`
	ExtensionThreshold int64           `json:"extension_threshold_seconds"`
	ExtensionDuration  int64           `json:"extension_duration_seconds"`
	MaxExtensions      int             `json:"max_extensions"`
}

// Create inserts a new auction in SCHEDULED status. The scheduler
// collaborator activates it at start time.
func (r *Registry) Create(ctx context.Context, p CreateAuctionParams) (*types.Auction, error) {
	start := p.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	a := &types.Auction{
		AuctionID:          "AUC_" + uuid.New().String(),
		SellerID:           p.SellerID,
		Title:              p.Title,
		Status:             types.AuctionScheduled,
		StartTime:          start,
		EndTime:            start.Add(time.Duration(p.DurationSeconds) * time.Second),
		AutoExtend:         p.AutoExtend,
		ExtensionThreshold: time.Duration(p.ExtensionThreshold) * time.Second,
		ExtensionDuration:  time.Duration(p.ExtensionDuration) * time.Second,
		MaxExtensions:      p.MaxExtensions,
		StartingPrice:      p.StartingPrice,
		CurrentPrice:       p.StartingPrice,
		MinIncrement:       p.MinIncrement,
	}
	if err := r.store.CreateAuction(ctx, a); err != nil {
		return nil, err
	}
	r.logger.Info().Str("auction_id", a.AuctionID).Time("end_time", a.EndTime).Msg("auction created")
	return a, nil
}

// BidderHistory returns every bid one bidder placed on an auction, newest
// first. Works for live and terminal auctions alike.
func (r *Registry) BidderHistory(ctx context.Context, auctionID, bidderID string) ([]types.Bid, error) {
	if _, err := r.store.LoadSnapshot(ctx, auctionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	return r.store.BidsByBidder(ctx, auctionID, bidderID)
}

// Activate is the scheduler signal entry point.
func (r *Registry) Activate(ctx context.Context, auctionID string) error {
	a, err := r.Get(ctx, auctionID)
	if err != nil {
		return err
	}
	return a.Activate(ctx)
}

// Shutdown stops every live auctioneer and waits for the loops to exit.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	live := make([]*Auctioneer, 0, len(r.live))
	for _, a := range r.live {
		live = append(live, a)
	}
	r.mu.Unlock()

	for _, a := range live {
		a.Stop()
	}
	for _, a := range live {
		select {
		case <-a.Done():
		case <-ctx.Done():
			return
		}
	}
}
