package hub

import (
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber is one connection's outbound side. Send must not block: it
// returns false when the subscriber cannot take the frame, at which point the
// hub drops it from the fan-out rather than stalling the publisher.
type Subscriber interface {
	ID() string
	Send(frame []byte) bool
}

// SnapshotSource supplies the authoritative current state of an auction so a
// late joiner can render immediately without racing the next broadcast.
type SnapshotSource interface {
	SnapshotFrame(auctionID string) ([]byte, bool)
}

// Hub fans state-changed events out to every subscriber of an auction.
// Registration and deregistration are the only cross-component writes, so the
// per-auction sets sit behind a mutex; publishing holds it only briefly.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Subscriber
	source SnapshotSource
	logger zerolog.Logger
}

func New(source SnapshotSource, logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]Subscriber),
		source: source,
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers the connection for an auction and returns the current
// snapshot frame. Subscription happens before the snapshot is taken, so any
// broadcast racing the join carries a sequence the snapshot already covers
// and the client deduplicates on sequence.
func (h *Hub) Subscribe(auctionID string, sub Subscriber) ([]byte, bool) {
	h.mu.Lock()
	room, ok := h.rooms[auctionID]
	if !ok {
		room = make(map[string]Subscriber)
		h.rooms[auctionID] = room
	}
	room[sub.ID()] = sub
	h.mu.Unlock()

	frame, ok := h.source.SnapshotFrame(auctionID)
	if !ok {
		h.Unsubscribe(auctionID, sub)
		return nil, false
	}
	return frame, true
}

// Publish delivers the frame to every current subscriber of the auction.
// Subscribers that cannot take the frame are evicted so one slow connection
// never stalls the auctioneer.
func (h *Hub) Publish(auctionID string, frame []byte) {
	h.mu.RLock()
	room := h.rooms[auctionID]
	subs := make([]Subscriber, 0, len(room))
	for _, sub := range room {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var evicted []Subscriber
	for _, sub := range subs {
		if !sub.Send(frame) {
			evicted = append(evicted, sub)
		}
	}
	for _, sub := range evicted {
		h.logger.Warn().Str("auction_id", auctionID).Str("subscriber", sub.ID()).
			Msg("evicting slow subscriber")
		h.Unsubscribe(auctionID, sub)
	}
}

// Unsubscribe removes the connection from one auction. Idempotent.
func (h *Hub) Unsubscribe(auctionID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[auctionID]; ok {
		delete(room, sub.ID())
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

// UnsubscribeAll removes the connection from every auction. Invoked on
// disconnect; idempotent.
func (h *Hub) UnsubscribeAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for auctionID, room := range h.rooms {
		delete(room, sub.ID())
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

// Count returns the number of current subscribers for an auction.
func (h *Hub) Count(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}
