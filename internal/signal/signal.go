// Package signal implements the named event bus that glues the engine's
// components together.
//
// A Signal is a typed fan-out: subscribers register a callback taking
// (sender, payload) and Emit invokes each one in registration order. All
// signals sharing a Hub are serialized application-wide: no two deliveries
// ever run concurrently, so book and candle state mutated inside
// subscribers needs no per-field locking.
//
// Reentrancy is handled with a pending queue instead of a recursive lock:
// an Emit from inside a delivery appends to the queue and returns, and the
// goroutine that started the drain keeps delivering until the queue is
// empty. This yields one total order of deliveries across the whole
// application, with a nested emission running after the delivery that
// produced it. Emissions from other goroutines that arrive mid-drain are
// queued in order as well; consumers see them exactly as if they had been
// emitted immediately after the in-flight delivery.
package signal

import (
	"fmt"
	"log/slog"
	"sync"
)

// Hub serializes deliveries for every Signal created on it. One Hub serves
// the whole process.
type Hub struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
	logger   *slog.Logger
}

// NewHub creates a hub. Subscriber panics are reported through logger.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger.With("component", "signal")}
}

// dispatch enqueues one delivery and, unless another drain is already in
// progress, drains the queue on the calling goroutine. The lock is never
// held while a subscriber runs.
func (h *Hub) dispatch(fn func()) {
	h.mu.Lock()
	h.queue = append(h.queue, fn)
	if h.draining {
		h.mu.Unlock()
		return
	}
	h.draining = true
	for len(h.queue) > 0 {
		next := h.queue[0]
		h.queue = h.queue[1:]
		h.mu.Unlock()
		next()
		h.mu.Lock()
	}
	h.draining = false
	h.mu.Unlock()
}

// Signal is a named typed event with an ordered subscriber list.
type Signal[T any] struct {
	hub  *Hub
	name string

	mu   sync.Mutex
	subs []func(sender any, payload T)
}

// New creates a signal on the hub. The name appears in logs when a
// subscriber misbehaves.
func New[T any](hub *Hub, name string) *Signal[T] {
	return &Signal[T]{hub: hub, name: name}
}

// Connect registers a subscriber. Subscribers are invoked in the order
// they were connected and must not block indefinitely: a stuck subscriber
// stalls every signal on the hub.
func (s *Signal[T]) Connect(slot func(sender any, payload T)) {
	s.mu.Lock()
	s.subs = append(s.subs, slot)
	s.mu.Unlock()
}

// Emit delivers the payload to every subscriber, serialized against all
// other deliveries on the hub. It returns whether at least one subscriber
// was registered at the time of the call, so callers can fall back to
// plain logging when nobody listens.
func (s *Signal[T]) Emit(sender any, payload T) bool {
	s.mu.Lock()
	subs := make([]func(any, T), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	if len(subs) == 0 {
		return false
	}

	s.hub.dispatch(func() {
		for _, slot := range subs {
			s.deliver(slot, sender, payload)
		}
	})
	return true
}

// deliver runs one subscriber, containing any panic so the remaining
// subscribers still receive the event.
func (s *Signal[T]) deliver(slot func(any, T), sender any, payload T) {
	defer func() {
		if r := recover(); r != nil {
			s.hub.logger.Error("subscriber panicked",
				"signal", s.name,
				"panic", r,
			)
		}
	}()
	slot(sender, payload)
}

// Debugf formats a message and emits it on sig. When nobody is subscribed
// the message goes to the logger at debug level instead, so diagnostics
// produced before a consumer attaches are not lost.
func Debugf(sig *Signal[string], logger *slog.Logger, sender any, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !sig.Emit(sender, msg) {
		logger.Debug(msg)
	}
}
