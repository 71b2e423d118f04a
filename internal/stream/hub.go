package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBufferSize = 256
	dropLogInterval   = 5 * time.Second
)

// Backlog retains recent items for late subscribers.
type Backlog[T any] interface {
	Append(item T)
	Snapshot() []T
}

// Config controls a Hub.
//   - Name: label used in logs and for the subscriber observer.
//   - BufferSize: per-subscriber channel capacity (default 256).
//   - Backlog: optional replay source for new subscribers.
//   - OnSubscribers: optional callback invoked with the subscriber count after each change.
//   - Logger: optional structured logger used for drop warnings.
type Config[T any] struct {
	Name          string
	BufferSize    int
	Backlog       Backlog[T]
	OnSubscribers func(n int)
	Logger        *zap.Logger
}

// Hub fans published items out to subscribers. It is safe for concurrent use.
type Hub[T any] struct {
	cfg    Config[T]
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool

	dropped  atomic.Int64
	dropWarn rate.Sometimes
}

// Subscription is one registered consumer.
type Subscription[T any] struct {
	hub  *Hub[T]
	ch   chan T
	once sync.Once
}

// NewHub builds an empty hub.
func NewHub[T any](cfg Config[T]) *Hub[T] {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub[T]{
		cfg:      cfg,
		logger:   logger,
		subs:     make(map[*Subscription[T]]struct{}),
		dropWarn: rate.Sometimes{Interval: dropLogInterval},
	}
}

// Subscribe registers a consumer and returns it along with the backlog as of
// the moment of registration. After Close the returned subscription's channel
// is already closed.
func (h *Hub[T]) Subscribe() (*Subscription[T], []T) {
	sub := &Subscription[T]{hub: h, ch: make(chan T, h.cfg.BufferSize)}
	h.mu.Lock()
	defer h.mu.Unlock()
	var backlog []T
	if h.cfg.Backlog != nil {
		backlog = h.cfg.Backlog.Snapshot()
	}
	if h.closed {
		close(sub.ch)
		return sub, backlog
	}
	h.subs[sub] = struct{}{}
	h.notify(len(h.subs))
	return sub, backlog
}

// Publish appends item to the backlog and offers it to every subscriber
// without blocking.
func (h *Hub[T]) Publish(item T) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.cfg.Backlog != nil {
		h.cfg.Backlog.Append(item)
	}
	for sub := range h.subs {
		select {
		case sub.ch <- item:
		default:
			h.dropped.Add(1)
			h.dropWarn.Do(func() {
				h.logger.Warn("stream items dropped for slow subscriber",
					zap.String("stream", h.cfg.Name),
					zap.Int64("dropped", h.dropped.Swap(0)))
			})
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscription and rejects later publishes. Safe to call twice.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.once.Do(func() { close(sub.ch) })
		delete(h.subs, sub)
	}
	h.notify(0)
}

func (h *Hub[T]) remove(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
	h.notify(len(h.subs))
}

func (h *Hub[T]) notify(n int) {
	if h.cfg.OnSubscribers != nil {
		h.cfg.OnSubscribers(n)
	}
}

// Events yields live items; it is closed when the subscription or hub closes.
func (s *Subscription[T]) Events() <-chan T {
	return s.ch
}

// Close unregisters the subscription. Safe to call twice.
func (s *Subscription[T]) Close() {
	s.hub.remove(s)
}
