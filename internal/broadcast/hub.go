package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Message is the wire envelope for everything the hub emits
type Message struct {
	Type      string `json:"type"` // audit_result, metric_update, history, connected
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// MetricsSnapshot is the periodic aggregate published to subscribers
type MetricsSnapshot struct {
	TotalProcessed      int64   `json:"total_processed"`
	AverageFaithfulness float64 `json:"average_faithfulness"`
	HallucinationRate   float64 `json:"hallucination_rate"`
	ActiveSubscribers   int     `json:"active_subscribers"`
}

// subscriberBuffer bounds the per-subscriber send queue. A subscriber that
// falls this far behind starts losing messages (at-most-once delivery).
const subscriberBuffer = 64

// Subscriber is one live consumer of the hub's stream
type Subscriber struct {
	hub *Hub

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// Receive returns the subscriber's message channel. The channel is closed
// when the subscriber is removed from the hub.
func (s *Subscriber) Receive() <-chan []byte {
	return s.send
}

// Close detaches the subscriber from the hub
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s)
}

// deliver hands a message to the subscriber without blocking. The lock
// orders delivery against Close so a send can never hit a closed channel.
func (s *Subscriber) deliver(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
		// Buffer full: drop for this subscriber, never block the hub
	}
}

// Hub fans completed audit records and periodic metric snapshots out to any
// number of subscribers. Delivery is best-effort: the subscriber list is
// mutated under the lock, but sends go to per-subscriber buffered channels
// so one slow consumer cannot block the rest.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool

	history     []*model.AuditRecord // Oldest first, bounded FIFO
	historySize int

	totalProcessed int64
	scored         int64
	scoreSum       float64
	hallucinated   int64

	metricsInterval time.Duration
	logger          *slog.Logger
}

// NewHub creates a hub with the configured history bound and metrics cadence
func NewHub(cfg model.BroadcastConfig, logger *slog.Logger) *Hub {
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 100
	}
	interval := cfg.MetricsInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers:     make(map[*Subscriber]bool),
		historySize:     historySize,
		metricsInterval: interval,
		logger:          logger.With("component", "broadcast"),
	}
}

// Run emits metric_update messages on the configured cadence until the
// context is cancelled
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publishMetrics()
		}
	}
}

// Subscribe attaches a new live subscriber
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{hub: h, send: make(chan []byte, subscriberBuffer)}

	h.mu.Lock()
	h.subscribers[sub] = true
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("subscriber joined", "total", count)
	return sub
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	count := len(h.subscribers)
	h.mu.Unlock()

	// Closing under the subscriber lock excludes in-flight deliveries
	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.send)
	}
	sub.mu.Unlock()

	h.logger.Debug("subscriber left", "total", count)
}

// Publish records a completed audit in history and metrics, then fans it
// out. The record must be terminal and is treated as read-only from here on.
func (h *Hub) Publish(record *model.AuditRecord) {
	h.mu.Lock()
	h.history = append(h.history, record)
	if len(h.history) > h.historySize {
		// Strict FIFO eviction by completion order
		h.history = h.history[len(h.history)-h.historySize:]
	}
	h.totalProcessed++
	if record.State == model.StateScored {
		h.scored++
		h.scoreSum += record.FaithfulnessScore
		if record.Hallucination {
			h.hallucinated++
		}
	}
	h.mu.Unlock()

	h.fanOut(Message{
		Type:      "audit_result",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      record,
	})
}

// History returns the retained records, oldest first
func (h *Hub) History() []*model.AuditRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*model.AuditRecord, len(h.history))
	copy(out, h.history)
	return out
}

// Metrics returns the current aggregate snapshot
func (h *Hub) Metrics() MetricsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

// SubscriberCount reports the number of live subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) snapshotLocked() MetricsSnapshot {
	snap := MetricsSnapshot{
		TotalProcessed:    h.totalProcessed,
		ActiveSubscribers: len(h.subscribers),
	}
	// Averages cover scored audits only; FAILED records count toward
	// total_processed but carry no score
	if h.scored > 0 {
		snap.AverageFaithfulness = h.scoreSum / float64(h.scored)
		snap.HallucinationRate = float64(h.hallucinated) / float64(h.scored)
	}
	return snap
}

func (h *Hub) publishMetrics() {
	h.fanOut(Message{
		Type:      "metric_update",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      h.Metrics(),
	})
}

// fanOut delivers a message to every subscriber. The subscriber list is
// copied under the read lock; the sends happen outside it so a stalled
// consumer cannot cause head-of-line blocking for the others. Each send
// goes through deliver, which holds the subscriber's own lock against a
// concurrent Close.
func (h *Hub) fanOut(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(data)
	}
}
