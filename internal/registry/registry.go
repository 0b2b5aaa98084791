// Package registry implements the concurrent directory of live agents
// described in spec.md §4.5: registration, heartbeat-based liveness,
// capability-based discovery, and periodic garbage collection of stale
// entries.
package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shaharia-lab/acp-runtime/internal/logging"
)

// DefaultStaleAfter is T_stale from spec.md §4.5.
const DefaultStaleAfter = 60 * time.Second

type record struct {
	card         Card
	lastSeen     time.Time
	registeredAt time.Time
}

// Registry is a single map of Agent Cards protected by a read-biased lock.
// No I/O happens while the lock is held, per spec.md §4.5's concurrency
// note; logging calls are always made after Unlock.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*record
	order      []string // registration order, for list()/discover() ordering
	staleAfter time.Duration
	log        *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStaleAfter overrides T_stale.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Registry) { r.staleAfter = d }
}

// New builds an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:    make(map[string]*record),
		staleAfter: DefaultStaleAfter,
		log:        logging.Default().Component("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) isStale(rec *record, now time.Time) bool {
	return now.Sub(rec.lastSeen) > r.staleAfter
}

// Register publishes card, returning its effective id. Registering an id
// that already holds a live card republishes it (editing a card requires
// republishing it in full, per spec.md §3's Skill ownership note); the
// protocol-version tag is immutable once first published under that id.
func (r *Registry) Register(card Card) (string, error) {
	id := card.effectiveID()
	card.ID = id

	now := time.Now()

	r.mu.Lock()
	existing, ok := r.entries[id]
	if ok && existing.card.ProtocolVersion != card.ProtocolVersion {
		r.mu.Unlock()
		return "", ErrProtocolVersionImmutable
	}
	if !ok {
		r.order = append(r.order, id)
	}
	r.entries[id] = &record{card: card, lastSeen: now, registeredAt: now}
	r.mu.Unlock()

	r.log.Info("agent registered", zap.String("agent_id", id), zap.String("name", card.Name))
	return id, nil
}

// Unregister removes id immediately, regardless of staleness.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	_, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		r.order = removeString(r.order, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	r.log.Info("agent unregistered", zap.String("agent_id", id))
	return nil
}

// Get returns id's card if it is registered and not stale.
func (r *Registry) Get(id string) (Card, error) {
	now := time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.entries[id]
	if !ok || r.isStale(rec, now) {
		return Card{}, ErrNotFound
	}
	return rec.card, nil
}

// List returns every live (non-stale) card, in registration order.
func (r *Registry) List() []Card {
	now := time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Card, 0, len(r.order))
	for _, id := range r.order {
		rec, ok := r.entries[id]
		if !ok || r.isStale(rec, now) {
			continue
		}
		out = append(out, rec.card)
	}
	return out
}

// Discover returns every live card matching q, in registration order. The
// algorithm is conjunctive across Query fields and disjunctive within the
// Tags field, per spec.md §4.5.
func (r *Registry) Discover(q Query) []Card {
	now := time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Card, 0)
	for _, id := range r.order {
		rec, ok := r.entries[id]
		if !ok || r.isStale(rec, now) {
			continue
		}
		if matches(rec.card, q) {
			out = append(out, rec.card)
		}
	}
	return out
}

func matches(card Card, q Query) bool {
	if q.Transport != "" && string(card.PreferredTransport) != q.Transport {
		return false
	}
	if q.Streaming != nil && card.Capabilities.Streaming != *q.Streaming {
		return false
	}
	if q.PushNotifications != nil && card.Capabilities.PushNotifications != *q.PushNotifications {
		return false
	}
	if len(q.Capabilities) > 0 {
		skillIDs := make(map[string]struct{}, len(card.Skills))
		for _, s := range card.Skills {
			skillIDs[s.ID] = struct{}{}
		}
		for _, want := range q.Capabilities {
			if _, ok := skillIDs[want]; !ok {
				return false
			}
		}
	}
	if len(q.Tags) > 0 {
		tagSet := make(map[string]struct{})
		for _, s := range card.Skills {
			for _, t := range s.Tags {
				tagSet[t] = struct{}{}
			}
		}
		found := false
		for _, want := range q.Tags {
			if _, ok := tagSet[want]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Heartbeat refreshes id's last-seen timestamp, keeping it live.
func (r *Registry) Heartbeat(id string) error {
	now := time.Now()

	r.mu.Lock()
	rec, ok := r.entries[id]
	if ok {
		rec.lastSeen = now
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return nil
}

// ServeAgentCard marshals id's card to the `.well-known/agent.json` wire
// form (spec.md §6). The stored object is served verbatim.
func (r *Registry) ServeAgentCard(id string) ([]byte, error) {
	card, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(card)
}

// RunGC blocks, sweeping stale entries out of the map every interval,
// until ctx is cancelled. Intended to be launched as its own goroutine
// (spec.md §5: "Registry GC" is one of the runtime's permanent tasks).
func (r *Registry) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	now := time.Now()
	var removed []string

	r.mu.Lock()
	for id, rec := range r.entries {
		if r.isStale(rec, now) {
			delete(r.entries, id)
			r.order = removeString(r.order, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	for _, id := range removed {
		r.log.Info("agent garbage-collected as stale", zap.String("agent_id", id))
	}
}

func removeString(s []string, v string) []string {
	for i, e := range s {
		if e == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
