// Package registry tracks which live connections belong to which broadcast
// destination and fans messages out to them.
package registry

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Mark-hil/chat-app/pkg/chat"
)

// Sender is the delivery surface of a registered connection. Send must be
// safe for concurrent use and must fail silently once the connection is
// gone; the transport connection satisfies both.
type Sender interface {
	ID() uuid.UUID
	Send(payload []byte)
}

const shardCount = 32

type shard struct {
	mu     sync.RWMutex
	groups map[string]map[uuid.UUID]Sender
}

// Registry is the in-memory membership map. Groups are keyed by destination
// and sharded so that join/leave/broadcast on one destination never contends
// with traffic on unrelated destinations. No lock is ever held while a
// payload is being delivered.
type Registry struct {
	shards [shardCount]*shard
	logger *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	r := &Registry{
		logger: logger.With(slog.String("component", "registry")),
	}
	for i := range r.shards {
		r.shards[i] = &shard{groups: make(map[string]map[uuid.UUID]Sender)}
	}
	return r
}

func (r *Registry) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return r.shards[h.Sum32()%shardCount]
}

// Join adds a connection to the destination's member set, creating the set
// if needed. Rejoining is a no-op.
func (r *Registry) Join(dest chat.Destination, conn Sender) {
	key := dest.Key()
	s := r.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[key]
	if !ok {
		group = make(map[uuid.UUID]Sender)
		s.groups[key] = group
	}
	if _, member := group[conn.ID()]; member {
		return
	}
	group[conn.ID()] = conn
	r.logger.Debug("connection joined group",
		slog.String("destination", key),
		slog.String("connID", conn.ID().String()),
	)
}

// Leave removes a connection from the destination's member set. Leaving a
// destination the connection never joined is a no-op, which makes disconnect
// handling idempotent even after a partially failed connect. Empty member
// sets are removed.
func (r *Registry) Leave(dest chat.Destination, connID uuid.UUID) {
	key := dest.Key()
	s := r.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[key]
	if !ok {
		return
	}
	if _, member := group[connID]; !member {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(s.groups, key)
	}
	r.logger.Debug("connection left group",
		slog.String("destination", key),
		slog.String("connID", connID.String()),
	)
}

// Broadcast delivers payload to every connection currently registered under
// the destination, including the sender's own connection if it is a member.
// The member list is snapshotted under the shard's read lock and delivery
// happens outside it, so a join or leave racing the broadcast simply lands
// before or after the snapshot. Each registered connection is delivered to
// at most once; a stale connection drops its copy without affecting the
// rest. Returns the number of connections the payload was handed to.
func (r *Registry) Broadcast(dest chat.Destination, payload []byte) int {
	key := dest.Key()
	s := r.shardFor(key)

	s.mu.RLock()
	group := s.groups[key]
	members := make([]Sender, 0, len(group))
	for _, conn := range group {
		members = append(members, conn)
	}
	s.mu.RUnlock()

	for _, conn := range members {
		conn.Send(payload)
	}
	return len(members)
}

// MemberCount reports the current size of a destination's member set.
func (r *Registry) MemberCount(dest chat.Destination) int {
	key := dest.Key()
	s := r.shardFor(key)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups[key])
}

// Connections returns a snapshot of every registered connection across all
// destinations, deduplicated by handle. Used for shutdown.
func (r *Registry) Connections() []Sender {
	seen := make(map[uuid.UUID]Sender)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, group := range s.groups {
			for id, conn := range group {
				seen[id] = conn
			}
		}
		s.mu.RUnlock()
	}
	conns := make([]Sender, 0, len(seen))
	for _, conn := range seen {
		conns = append(conns, conn)
	}
	return conns
}
