// ABOUTME: Concurrent registry of live real-time subscriber connections
// ABOUTME: Owns the subscriber set; snapshot reads never hold the lock across fan-out

package registry

import (
	"context"
	"log/slog"
	"sync"
)

// Subscriber is one live real-time channel. Implementations are owned by
// the transport layer that created them; the registry only tracks
// membership. Send must be safe to call concurrently with the connection
// closing — a send to a closing connection fails, it does not panic.
type Subscriber interface {
	// ID returns the stable identity of this connection.
	ID() string
	// Send pushes one payload frame to the subscriber.
	Send(ctx context.Context, payload []byte) error
	// Close tears down the underlying connection.
	Close() error
}

// Registry tracks the set of currently connected subscribers. Membership
// is mutated by the real-time transport's connect/close events, which run
// independently of any broadcast request; all operations are safe for
// concurrent use. The lock covers only add/remove/snapshot, never a send.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]Subscriber
	logger *slog.Logger
}

// New creates an empty registry. Pass nil logger for default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		subs:   make(map[string]Subscriber),
		logger: logger.With("component", "registry"),
	}
}

// Add registers a subscriber.
func (r *Registry) Add(s Subscriber) {
	r.mu.Lock()
	r.subs[s.ID()] = s
	n := len(r.subs)
	r.mu.Unlock()

	r.logger.Debug("subscriber added", "conn_id", s.ID(), "subscribers", n)
}

// Remove drops a subscriber from the set. Removing an unknown ID is a
// no-op, so transport close paths may call it unconditionally.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, existed := r.subs[id]
	delete(r.subs, id)
	n := len(r.subs)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("subscriber removed", "conn_id", id, "subscribers", n)
	}
}

// Snapshot returns the subscribers open at the instant of the call.
// A connection that closes after the snapshot is taken simply fails its
// send; it is not the registry's job to chase membership during dispatch.
func (r *Registry) Snapshot() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// Len reports the current number of subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Close tears down every remaining subscriber connection and empties the
// registry. Used during graceful shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.subs {
		_ = s.Close()
		delete(r.subs, id)
	}

	r.logger.Debug("registry closed")
}
