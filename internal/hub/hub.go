// Package hub implements a bounded, multi-subscriber broadcast fan-out: a
// drop-oldest back-pressure policy so one slow subscriber never stalls the
// producer, plus scoped subscription lifecycle guards and a draining
// shutdown.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"mbobook/internal/feed"
	"mbobook/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

// DefaultQueueCapacity is the default per-subscriber buffer depth.
const DefaultQueueCapacity = 1024

// DefaultMaxSubscribers bounds the global subscriber count.
const DefaultMaxSubscribers = 1024

// DefaultGraceDeadline is how long Drain waits for subscribers to exit
// before closing forcefully.
const DefaultGraceDeadline = 5 * time.Second

var (
	// ErrTooManySubscribers is returned when the global subscriber cap is
	// reached; callers should answer the corresponding HTTP request 503.
	ErrTooManySubscribers = errors.New("too many subscribers")
	// ErrDraining is returned by Subscribe once the Hub has begun shutting
	// down; no new subscribers are accepted while draining.
	ErrDraining = errors.New("hub is draining")
)

// Item is what a subscriber reads off its channel: either a normal
// envelope, a lag marker (Lagged > 0, Envelope zero), or a terminal
// end-of-stream signal.
type Item struct {
	Envelope feed.Envelope
	Lagged   uint64
	Terminal bool
}

// Config tunes the Hub's capacity limits.
type Config struct {
	QueueCapacity  int
	MaxSubscribers int
	GraceDeadline  time.Duration
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:  DefaultQueueCapacity,
		MaxSubscribers: DefaultMaxSubscribers,
		GraceDeadline:  DefaultGraceDeadline,
	}
}

// Hub is the process-scoped broadcast registry: one instance constructed at
// startup and shared by every subscriber connection.
type Hub struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	subs     map[uuid.UUID]*subscription
	draining bool

	t *tomb.Tomb
}

// New constructs a Hub. It is ready for Consume and Subscribe at once.
func New(cfg Config, logger zerolog.Logger) *Hub {
	return &Hub{
		cfg:  cfg,
		log:  logger.With().Str("component", "hub").Logger(),
		subs: make(map[uuid.UUID]*subscription),
	}
}

// Run records t as the Hub's tomb. It starts no goroutine, and Consume and
// Subscribe do not consult t; shutdown of subscribers goes through Drain.
func (h *Hub) Run(t *tomb.Tomb) {
	h.mu.Lock()
	h.t = t
	h.mu.Unlock()
}

// Consume implements feed.Consumer: it fans env out to every live
// subscriber without blocking on any of them.
func (h *Hub) Consume(env feed.Envelope) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.send(Item{Envelope: env})
	}
}

// Subscription is the caller-facing handle returned by Subscribe.
type Subscription struct {
	ID    uuid.UUID
	Items <-chan Item
	sub   *subscription
	hub   *Hub
}

// Close deregisters the subscription, decrements the active-connections
// gauge, and frees its buffer. Safe to call more than once. There is no
// code path on which a dead subscription lingers.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	_, ok := s.hub.subs[s.ID]
	if ok {
		delete(s.hub.subs, s.ID)
	}
	s.hub.mu.Unlock()
	if ok {
		s.sub.close()
		metrics.ActiveConnections.Dec()
	}
}

// Subscribe registers a new live subscription. It fails with
// ErrTooManySubscribers once the global cap is reached, or ErrDraining once
// the Hub has begun shutting down.
func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.draining {
		return nil, ErrDraining
	}
	if len(h.subs) >= h.cfg.MaxSubscribers {
		return nil, ErrTooManySubscribers
	}

	id := uuid.New()
	s := newSubscription(h.cfg.QueueCapacity)
	h.subs[id] = s
	metrics.ActiveConnections.Inc()

	return &Subscription{ID: id, Items: s.ch, sub: s, hub: h}, nil
}

// Drain transitions the Hub to draining: no new subscribers are accepted,
// every live subscriber is sent a terminal item, and Drain waits up to its
// grace deadline for them to be closed. Subscriptions still registered when
// the deadline passes are closed and deregistered by Drain itself, which
// closes their Items channels. If ctx ends first, Drain returns without
// closing them. Drain does not close sockets; each connection's handler
// loop ends on the terminal item or on its closed channel.
func (h *Hub) Drain(ctx context.Context) {
	h.mu.Lock()
	h.draining = true
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.send(Item{Terminal: true})
	}

	deadline := time.NewTimer(h.cfg.GraceDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		h.mu.Lock()
		remaining := len(h.subs)
		h.mu.Unlock()
		if remaining == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			h.log.Warn().Int("remaining_subscribers", remaining).Msg("grace deadline exceeded, closing forcefully")
			h.mu.Lock()
			for id, s := range h.subs {
				delete(h.subs, id)
				s.close()
				metrics.ActiveConnections.Dec()
			}
			h.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

// Count returns the number of live subscribers. The /metrics endpoint
// reports the same figure through metrics.ActiveConnections, not Count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
