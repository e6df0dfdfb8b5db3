// Package presence mirrors connection lifecycle events into the durable
// per-user online flag.
package presence

import (
	"context"
	"log/slog"

	"github.com/Mark-hil/chat-app/internal/store"
	"github.com/Mark-hil/chat-app/pkg/chat"
)

// Tracker is a stateless service over the presence store. The flag is a
// single boolean per user, not a connection count: a user with two open
// sessions who closes one is reported offline even though the other session
// is still up. That matches the product's documented behavior.
type Tracker struct {
	store  store.PresenceStore
	logger *slog.Logger
}

func NewTracker(s store.PresenceStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  s,
		logger: logger.With(slog.String("component", "presence")),
	}
}

// SetOnline records the latest lifecycle event for an identity. Anonymous
// identities are excluded from presence tracking entirely. Store failures
// are logged and swallowed; presence must never break a session's lifecycle.
func (t *Tracker) SetOnline(ctx context.Context, identity chat.Identity, online bool) {
	if !identity.Authenticated {
		return
	}
	if err := t.store.SetPresence(ctx, identity.UserID, online); err != nil {
		t.logger.Warn("failed to update presence",
			slog.Int64("userID", identity.UserID),
			slog.Bool("online", online),
			slog.Any("error", err),
		)
		return
	}
	t.logger.Debug("presence updated",
		slog.Int64("userID", identity.UserID),
		slog.Bool("online", online),
	)
}
