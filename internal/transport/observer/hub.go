package observer

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
)

const subscriberBuffer = 8

// Hub fans encoded frames out to observer sessions. Publish never blocks: a slow
// session loses its oldest queued frame.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	latest []byte

	published atomic.Uint64
	dropped   atomic.Uint64
}

type subscriber struct {
	out   chan []byte
	every uint64
}

type HubStats struct {
	Subscribers    int    `json:"subscribers"`
	PublishedTotal uint64 `json:"published_total"`
	DropTotal      uint64 `json:"drop_total"`
}

func NewHub() *Hub {
	return &Hub{subs: map[string]*subscriber{}}
}

// Publish implements trainer.FramePublisher.
func (h *Hub) Publish(f observerproto.FrameMsg) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	h.published.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = b
	for _, s := range h.subs {
		if f.Tick%s.every != 0 {
			continue
		}
		if sendLatest(s.out, b) {
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a session and primes it with the most recent frame, if any.
func (h *Hub) Subscribe(id string, everyTicks int) <-chan []byte {
	s := &subscriber{out: make(chan []byte, subscriberBuffer), every: uint64(clampEvery(everyTicks))}
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.subs[id]; ok {
		close(old.out)
	}
	h.subs[id] = s
	if h.latest != nil {
		s.out <- h.latest
	}
	return s.out
}

func (h *Hub) Update(id string, everyTicks int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		s.every = uint64(clampEvery(everyTicks))
	}
}

// Unsubscribe removes the session and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.out)
	}
}

func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	n := len(h.subs)
	h.mu.Unlock()
	return HubStats{
		Subscribers:    n,
		PublishedTotal: h.published.Load(),
		DropTotal:      h.dropped.Load(),
	}
}

func clampEvery(n int) int {
	if n <= 0 {
		return 1
	}
	if n > 600 {
		return 600
	}
	return n
}

// sendLatest delivers b, evicting the oldest queued item when ch is full. It reports
// whether anything was dropped.
func sendLatest(ch chan []byte, b []byte) (dropped bool) {
	select {
	case ch <- b:
		return false
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return true
}
