// Package store is the persistence gateway: an append-only record of chat
// messages plus the per-user presence flags, backed by the same Postgres
// database the account/CRUD service owns.
package store

import (
	"context"
	"time"
)

// SavedMessage carries the two values the store assigns at persistence time.
// They are never client-supplied; the timestamp embedded in a broadcast
// envelope is always the one returned here.
type SavedMessage struct {
	ID        int64
	Timestamp time.Time
}

// MessageStore appends chat messages. Unknown sender, room, or recipient
// surfaces as chat.ErrNotFound; I/O failures as chat.ErrTransientStore.
type MessageStore interface {
	SaveRoomMessage(ctx context.Context, userID, roomID int64, content string) (SavedMessage, error)
	SaveDirectMessage(ctx context.Context, userID, recipientID int64, content string) (SavedMessage, error)
}

// PresenceStore upserts the single online flag per user, bumping last_seen
// on every write. Last write wins; writes for different users are
// independent rows and never contend.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID int64, online bool) error
}
