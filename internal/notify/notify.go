package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/openlot/bidwire/internal/auction"
	"github.com/openlot/bidwire/internal/config"
)

const publishTimeout = 5 * time.Second

// Task is one notification unit pushed to the queue for the out-of-core
// notification collaborator (outbid emails, won-auction emails).
type Task struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type outbidPayload struct {
	AuctionID        string  `json:"auction_id"`
	BidID            string  `json:"bid_id"`
	BidderID         string  `json:"bidder_id"`
	PreviousBidderID string  `json:"previous_bidder_id,omitempty"`
	Amount           float64 `json:"amount"`
	Sequence         int64   `json:"sequence"`
}

type closedPayload struct {
	AuctionID    string  `json:"auction_id"`
	Status       string  `json:"status"`
	WinningBidID string  `json:"winning_bid_id,omitempty"`
	WinnerID     string  `json:"winner_id,omitempty"`
	FinalPrice   float64 `json:"final_price"`
}

// Publisher pushes domain events onto a Redis list on a fire-and-forget
// basis. With no Redis address configured it is a no-op, so the bidding core
// never depends on the notification pipeline being up.
type Publisher struct {
	client *redis.Client
	queue  string
	logger zerolog.Logger
}

func NewPublisher(cfg config.RedisConfig, logger zerolog.Logger) *Publisher {
	p := &Publisher{
		queue:  cfg.Queue,
		logger: logger.With().Str("component", "notify").Logger(),
	}
	if cfg.Addr == "" {
		return p
	}
	p.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return p
}

// BidAccepted implements auction.EventSink.
func (p *Publisher) BidAccepted(n auction.OutbidNotice) {
	p.push("bid_accepted", outbidPayload{
		AuctionID:        n.AuctionID,
		BidID:            n.BidID,
		BidderID:         n.BidderID,
		PreviousBidderID: n.PreviousBidderID,
		Amount:           n.Amount.InexactFloat64(),
		Sequence:         n.Sequence,
	})
}

// AuctionClosed implements auction.EventSink.
func (p *Publisher) AuctionClosed(n auction.ClosedNotice) {
	p.push("auction_closed", closedPayload{
		AuctionID:    n.AuctionID,
		Status:       string(n.Status),
		WinningBidID: n.WinningBidID,
		WinnerID:     n.WinnerID,
		FinalPrice:   n.FinalPrice.InexactFloat64(),
	})
}

func (p *Publisher) push(kind string, payload interface{}) {
	if p.client == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("type", kind).Msg("failed to marshal notification")
		return
	}
	task, err := json.Marshal(Task{Type: kind, Payload: raw, CreatedAt: time.Now()})
	if err != nil {
		p.logger.Error().Err(err).Str("type", kind).Msg("failed to marshal task")
		return
	}

	// Fire and forget: delivery never blocks the auctioneer.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.client.LPush(ctx, p.queue, task).Err(); err != nil {
			p.logger.Warn().Err(err).Str("type", kind).Msg("failed to enqueue notification")
		}
	}()
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
