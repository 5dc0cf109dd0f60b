package auction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openlot/bidwire/internal/storage"
	"github.com/openlot/bidwire/internal/types"
)

// Broadcaster is the hub surface the auctioneer publishes through.
type Broadcaster interface {
	Publish(auctionID string, frame []byte)
	Count(auctionID string) int
}

// OutbidNotice is emitted after every durably committed bid for the
// out-of-core notification collaborator.
type OutbidNotice struct {
	AuctionID        string
	BidID            string
	BidderID         string
	PreviousBidderID string
	Amount           decimal.Decimal
	Sequence         int64
}

// ClosedNotice is emitted once when an auction reaches a terminal state.
type ClosedNotice struct {
	AuctionID    string
	Status       types.AuctionStatus
	WinningBidID string
	WinnerID     string
	FinalPrice   decimal.Decimal
}

// EventSink receives fire-and-forget domain events.
type EventSink interface {
	BidAccepted(OutbidNotice)
	AuctionClosed(ClosedNotice)
}

// BidOutcome is the synchronous result of a submission. Rejections are data,
// not errors.
type BidOutcome struct {
	Accepted        bool
	Bid             *types.Bid
	Reason          types.ReasonCode
	MinimumRequired *decimal.Decimal

	// Snapshot carries the fresh auction state on stale_sequence rejections.
	Snapshot *types.Auction
}

// Deps are the collaborators handed to every auctioneer.
type Deps struct {
	Store         storage.Adapter
	Broadcast     Broadcaster
	Events        EventSink
	Logger        zerolog.Logger
	HistoryWindow int

	// OnStopped is invoked once, after the run loop exits, so the registry
	// can tear the handle down.
	OnStopped func(auctionID string)
}

// Auctioneer is the single serialized execution context for one auction: all
// mutation of the auction's price, winner and timing happens on its run
// goroutine, in arrival order on the command channel. Different auctions
// share nothing but the registry map.
type Auctioneer struct {
	id   string
	deps Deps

	cmds chan func()
	done chan struct{}

	// Owned by the run goroutine.
	state    types.Auction
	history  []types.Bid // accepted bids, newest first, bounded
	winning  *types.Bid
	stopping bool
}

const farFuture = 365 * 24 * time.Hour

// New starts the auctioneer for a loaded snapshot. history must be the
// auction's accepted bids, newest first.
func New(state types.Auction, history []types.Bid, deps Deps) *Auctioneer {
	if deps.HistoryWindow <= 0 {
		deps.HistoryWindow = 20
	}
	a := &Auctioneer{
		id:      state.AuctionID,
		deps:    deps,
		cmds:    make(chan func(), 64),
		done:    make(chan struct{}),
		state:   state,
		history: history,
	}
	a.deps.Logger = deps.Logger.With().Str("component", "auctioneer").Str("auction_id", a.id).Logger()
	if state.WinningBidID != "" {
		for i := range history {
			if history[i].BidID == state.WinningBidID {
				a.winning = &history[i]
				break
			}
		}
	}
	go a.run()
	return a
}

func (a *Auctioneer) run() {
	defer func() {
		close(a.done)
		if a.deps.OnStopped != nil {
			a.deps.OnStopped(a.id)
		}
	}()

	timer := time.NewTimer(a.untilDeadline())
	defer timer.Stop()

	for {
		select {
		case fn := <-a.cmds:
			fn()
		case <-timer.C:
			a.onDeadline()
		}
		if a.state.Status.Terminal() || a.stopping {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(a.untilDeadline())
	}
}

func (a *Auctioneer) untilDeadline() time.Duration {
	if !a.state.Status.BiddingOpen() {
		return farFuture
	}
	d := time.Until(a.state.EndTime)
	if d < 0 {
		d = 0
	}
	return d
}

// onDeadline fires when the armed end time passes. If an accepted bid moved
// the deadline since the timer was set, the loop simply re-arms; otherwise
// the auction closes.
func (a *Auctioneer) onDeadline() {
	if !a.state.Status.BiddingOpen() {
		return
	}
	if time.Now().Before(a.state.EndTime) {
		return
	}
	a.close()
}

// dispatch runs fn on the auctioneer goroutine, or reports false if the
// auctioneer has stopped.
func (a *Auctioneer) dispatch(ctx context.Context, fn func()) bool {
	select {
	case a.cmds <- fn:
		return true
	case <-a.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// SubmitBid validates, serializes and durably commits one bid. Bids are
// processed strictly in arrival order on the command channel; two
// "simultaneous" bids resolve deterministically, the loser rejected against
// the winner's now-current price.
func (a *Auctioneer) SubmitBid(ctx context.Context, req BidRequest) BidOutcome {
	reply := make(chan BidOutcome, 1)
	ok := a.dispatch(ctx, func() {
		reply <- a.handleSubmit(ctx, req)
	})
	if !ok {
		return BidOutcome{Reason: types.ReasonAuctionInactive}
	}
	select {
	case out := <-reply:
		return out
	case <-a.done:
		select {
		case out := <-reply:
			return out
		default:
			return BidOutcome{Reason: types.ReasonAuctionInactive}
		}
	}
}

func (a *Auctioneer) handleSubmit(ctx context.Context, req BidRequest) BidOutcome {
	now := time.Now()

	if req.ExpectedSequence != nil && *req.ExpectedSequence != a.state.Sequence {
		fresh := a.state
		return BidOutcome{Reason: types.ReasonStaleSequence, Snapshot: &fresh}
	}

	if rej := Validate(a.state, req, now); rej != nil {
		a.recordRejected(ctx, req, now, rej.Reason)
		return BidOutcome{Reason: rej.Reason, MinimumRequired: rej.MinimumRequired}
	}

	// Build the post-accept state on a copy; nothing is visible until the
	// durable commit succeeds.
	candidate := a.state
	seq := candidate.Sequence + 1
	bid := &types.Bid{
		BidID:            "BID_" + uuid.New().String(),
		AuctionID:        a.id,
		BidderID:         req.Bidder.UserID,
		Amount:           req.Amount,
		MaxProxyAmount:   req.MaxProxy,
		SubmittedAt:      now,
		AcceptedSequence: &seq,
		Status:           types.BidWinning,
		ClientRef:        req.ClientRef,
	}
	candidate.Sequence = seq
	candidate.CurrentPrice = req.Amount
	candidate.WinningBidID = bid.BidID
	maybeExtend(&candidate, now)

	if err := a.deps.Store.CommitBid(ctx, bid, candidate); err != nil {
		if errors.Is(err, storage.ErrSequenceConflict) {
			// In-memory state diverged from the durable log: reload before
			// accepting anything further.
			a.deps.Logger.Error().Err(err).Msg("snapshot diverged from durable state, reloading")
			a.reload(ctx)
			fresh := a.state
			return BidOutcome{Reason: types.ReasonStaleSequence, Snapshot: &fresh}
		}
		a.deps.Logger.Error().Err(err).Msg("durable commit failed, bid rejected")
		return BidOutcome{Reason: types.ReasonPersistenceUnavailable}
	}

	prevBidderID := ""
	if a.winning != nil {
		a.winning.Status = types.BidOutbid
		prevBidderID = a.winning.BidderID
		for i := range a.history {
			if a.history[i].BidID == a.state.WinningBidID {
				a.history[i].Status = types.BidOutbid
			}
		}
	}
	a.state = candidate
	a.winning = bid
	a.history = append([]types.Bid{*bid}, a.history...)
	if len(a.history) > a.deps.HistoryWindow {
		a.history = a.history[:a.deps.HistoryWindow]
	}

	a.deps.Logger.Info().
		Str("bid_id", bid.BidID).
		Str("bidder_id", bid.BidderID).
		Str("amount", bid.Amount.String()).
		Int64("sequence", seq).
		Msg("bid accepted")

	// Ack first, then broadcast, both from this post-commit point: the
	// submitter can never observe its ack after a later-sequence frame.
	if req.Notify != nil {
		req.Notify.Send(types.Frame(types.BidAcceptedMsg{
			Type:      types.MsgBidAccepted,
			AuctionID: a.id,
			BidID:     bid.BidID,
			Amount:    bid.Amount.InexactFloat64(),
			Sequence:  seq,
			EndTime:   a.state.EndTime,
			ClientID:  req.ClientRef,
		}))
	}
	a.publishState()

	if a.deps.Events != nil {
		a.deps.Events.BidAccepted(OutbidNotice{
			AuctionID:        a.id,
			BidID:            bid.BidID,
			BidderID:         bid.BidderID,
			PreviousBidderID: prevBidderID,
			Amount:           bid.Amount,
			Sequence:         seq,
		})
	}

	return BidOutcome{Accepted: true, Bid: bid}
}

// recordRejected appends the rejected bid to the append-only history.
// Best effort: a write failure here never changes the outcome.
func (a *Auctioneer) recordRejected(ctx context.Context, req BidRequest, now time.Time, reason types.ReasonCode) {
	bid := &types.Bid{
		BidID:           "BID_" + uuid.New().String(),
		AuctionID:       a.id,
		BidderID:        req.Bidder.UserID,
		Amount:          req.Amount,
		MaxProxyAmount:  req.MaxProxy,
		SubmittedAt:     now,
		Status:          types.BidRejected,
		RejectionReason: string(reason),
		ClientRef:       req.ClientRef,
	}
	if err := a.deps.Store.AppendBid(ctx, bid); err != nil {
		a.deps.Logger.Warn().Err(err).Str("reason", string(reason)).Msg("failed to record rejected bid")
	}
}

// maybeExtend applies the anti-sniping rule to a candidate snapshot: when a
// bid lands inside the extension window the deadline moves back by exactly
// ExtensionDuration, at most MaxExtensions times. The CLOSING status is
// informational; the deadline check is authoritative.
func maybeExtend(a *types.Auction, now time.Time) bool {
	if !a.Status.BiddingOpen() {
		return false
	}
	remaining := a.EndTime.Sub(now)
	extended := false
	if a.AutoExtend && remaining < a.ExtensionThreshold && a.ExtensionCount < a.MaxExtensions {
		a.EndTime = a.EndTime.Add(a.ExtensionDuration)
		a.ExtensionCount++
		remaining = a.EndTime.Sub(now)
		extended = true
	}
	if remaining <= a.ExtensionThreshold {
		a.Status = types.AuctionClosing
	} else if a.Status == types.AuctionClosing {
		a.Status = types.AuctionActive
	}
	return extended
}

// close finalizes the auction: SOLD when a winning bid exists, ENDED
// otherwise. Terminal and persisted; later submissions get auction_inactive.
func (a *Auctioneer) close() {
	final := a.state
	if a.winning != nil {
		final.Status = types.AuctionSold
	} else {
		final.Status = types.AuctionEnded
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	persisted := true
	if err := a.deps.Store.UpdateSnapshot(ctx, final); err != nil {
		// The deadline has passed so no further bids can be accepted either
		// way; the terminal status is reconciled on next load.
		a.deps.Logger.Error().Err(err).Msg("failed to persist terminal status")
		persisted = false
	}
	a.state = final

	a.deps.Logger.Info().
		Str("status", string(final.Status)).
		Str("final_price", final.CurrentPrice.String()).
		Str("winning_bid_id", final.WinningBidID).
		Msg("auction closed")

	if persisted {
		a.publishState()
		if a.deps.Events != nil {
			winnerID := ""
			if a.winning != nil {
				winnerID = a.winning.BidderID
			}
			a.deps.Events.AuctionClosed(ClosedNotice{
				AuctionID:    a.id,
				Status:       final.Status,
				WinningBidID: final.WinningBidID,
				WinnerID:     winnerID,
				FinalPrice:   final.CurrentPrice,
			})
		}
	}
}

func (a *Auctioneer) publishState() {
	frame := types.Frame(types.NewAuctionState(a.state, a.deps.Broadcast.Count(a.id)))
	a.deps.Broadcast.Publish(a.id, frame)
}

// reload replaces the in-memory snapshot with the last durable commit.
func (a *Auctioneer) reload(ctx context.Context) {
	snap, err := a.deps.Store.LoadSnapshot(ctx, a.id)
	if err != nil {
		a.deps.Logger.Error().Err(err).Msg("reload failed")
		return
	}
	bids, err := a.deps.Store.RecentBids(ctx, a.id, a.deps.HistoryWindow)
	if err != nil {
		a.deps.Logger.Error().Err(err).Msg("reload history failed")
		return
	}
	a.state = *snap
	a.history = bids
	a.winning = nil
	for i := range bids {
		if bids[i].BidID == snap.WinningBidID {
			a.winning = &bids[i]
			break
		}
	}
}

// Activate is the scheduler's lifecycle entry point, flipping the auction to
// ACTIVE and arming the end-time timer. Idempotent while bidding is open.
func (a *Auctioneer) Activate(ctx context.Context) error {
	reply := make(chan error, 1)
	ok := a.dispatch(ctx, func() {
		reply <- a.handleActivate(ctx)
	})
	if !ok {
		return ErrAuctionFinished
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrAuctionFinished
		}
	}
}

func (a *Auctioneer) handleActivate(ctx context.Context) error {
	if a.state.Status.BiddingOpen() {
		return nil
	}
	if !a.state.Status.CanTransition(types.AuctionActive) {
		return ErrAuctionFinished
	}

	candidate := a.state
	candidate.Status = types.AuctionActive
	candidate.Sequence++
	if err := a.deps.Store.UpdateSnapshot(ctx, candidate); err != nil {
		return err
	}
	a.state = candidate
	a.deps.Logger.Info().Time("end_time", a.state.EndTime).Msg("auction activated")
	a.publishState()
	return nil
}

// StateView returns a copy of the current snapshot and the bounded recent-bid
// history, newest first. ok is false once the auctioneer has stopped.
func (a *Auctioneer) StateView(ctx context.Context) (types.Auction, []types.Bid, bool) {
	type view struct {
		state   types.Auction
		history []types.Bid
	}
	reply := make(chan view, 1)
	ok := a.dispatch(ctx, func() {
		history := make([]types.Bid, len(a.history))
		copy(history, a.history)
		reply <- view{state: a.state, history: history}
	})
	if !ok {
		return types.Auction{}, nil, false
	}
	select {
	case v := <-reply:
		return v.state, v.history, true
	case <-a.done:
		select {
		case v := <-reply:
			return v.state, v.history, true
		default:
			return types.Auction{}, nil, false
		}
	}
}

// Stop ends the run loop without closing the auction (shutdown path).
func (a *Auctioneer) Stop() {
	a.dispatch(context.Background(), func() {
		a.stopping = true
	})
}

// Done exposes loop termination for tests and the registry.
func (a *Auctioneer) Done() <-chan struct{} {
	return a.done
}
