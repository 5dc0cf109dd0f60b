package hub

import (
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/rs/zerolog"
)

type stubSource struct {
	frames map[string][]byte
}

func (s *stubSource) SnapshotFrame(auctionID string) ([]byte, bool) {
	frame, ok := s.frames[auctionID]
	return frame, ok
}

type stubSub struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (s *stubSub) ID() string { return s.id }

func (s *stubSub) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

func (s *stubSub) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestHub(frames map[string][]byte) *Hub {
	return New(&stubSource{frames: frames}, zerolog.Nop())
}

func TestSubscribeReturnsSnapshot(t *testing.T) {
	h := newTestHub(map[string][]byte{"a1": []byte(`{"type":"auction_state"}`)})
	sub := &stubSub{id: "s1"}

	frame, ok := h.Subscribe("a1", sub)
	assert.True(t, ok)
	check.Equal(t, `{"type":"auction_state"}`, string(frame))
	check.Equal(t, 1, h.Count("a1"))
}

func TestSubscribeUnknownAuction(t *testing.T) {
	h := newTestHub(nil)
	sub := &stubSub{id: "s1"}

	_, ok := h.Subscribe("missing", sub)
	assert.False(t, ok)
	// Failed subscribe leaves no registration behind.
	check.Equal(t, 0, h.Count("missing"))
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	h := newTestHub(map[string][]byte{"a1": []byte(`{}`), "a2": []byte(`{}`)})
	s1 := &stubSub{id: "s1"}
	s2 := &stubSub{id: "s2"}
	other := &stubSub{id: "s3"}
	h.Subscribe("a1", s1)
	h.Subscribe("a1", s2)
	h.Subscribe("a2", other)

	h.Publish("a1", []byte(`{"seq":1}`))

	check.Equal(t, 1, s1.received())
	check.Equal(t, 1, s2.received())
	// Subscribers of other auctions see nothing.
	check.Equal(t, 0, other.received())
}

func TestPublishEvictsSlowSubscriber(t *testing.T) {
	h := newTestHub(map[string][]byte{"a1": []byte(`{}`)})
	healthy := &stubSub{id: "s1"}
	slow := &stubSub{id: "s2", full: true}
	h.Subscribe("a1", healthy)
	h.Subscribe("a1", slow)

	h.Publish("a1", []byte(`{"seq":1}`))

	check.Equal(t, 1, h.Count("a1"))
	check.Equal(t, 1, healthy.received())

	// The evicted subscriber no longer receives later frames.
	h.Publish("a1", []byte(`{"seq":2}`))
	check.Equal(t, 2, healthy.received())
	check.Equal(t, 0, slow.received())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := newTestHub(map[string][]byte{"a1": []byte(`{}`)})
	sub := &stubSub{id: "s1"}
	h.Subscribe("a1", sub)

	h.Unsubscribe("a1", sub)
	h.Unsubscribe("a1", sub)
	check.Equal(t, 0, h.Count("a1"))
}

func TestUnsubscribeAll(t *testing.T) {
	h := newTestHub(map[string][]byte{"a1": []byte(`{}`), "a2": []byte(`{}`)})
	sub := &stubSub{id: "s1"}
	h.Subscribe("a1", sub)
	h.Subscribe("a2", sub)

	h.UnsubscribeAll(sub)
	check.Equal(t, 0, h.Count("a1"))
	check.Equal(t, 0, h.Count("a2"))
}
