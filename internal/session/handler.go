// Package session implements the per-connection state machine: it derives
// the connection's broadcast destination from its route, persists inbound
// messages, and fans them out to the destination group.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Mark-hil/chat-app/internal/registry"
	"github.com/Mark-hil/chat-app/internal/store"
	"github.com/Mark-hil/chat-app/pkg/chat"
)

// State of a session. Transitions are Connecting -> Open -> Closed; Closed
// is terminal.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// Sender is the handler's view of its own connection.
type Sender = registry.Sender

// Broadcaster is the handler's view of the connection registry.
type Broadcaster interface {
	Join(dest chat.Destination, conn Sender)
	Leave(dest chat.Destination, connID uuid.UUID)
	Broadcast(dest chat.Destination, payload []byte) int
}

// Presence is the handler's view of the presence tracker.
type Presence interface {
	SetOnline(ctx context.Context, identity chat.Identity, online bool)
}

// Route carries the identifiers extracted from the connection's initiation
// path: a room id, or the id of the direct-conversation peer.
type Route struct {
	RoomID *int64
	PeerID *int64
}

// Handler owns one connection for its lifetime.
type Handler struct {
	conn     Sender
	identity chat.Identity

	registry Broadcaster
	messages store.MessageStore
	presence Presence
	logger   *slog.Logger

	dest    chat.Destination
	hasDest bool

	state          atomic.Int32
	disconnectOnce sync.Once
}

// disconnectTimeout bounds the store work done while tearing a session down.
const disconnectTimeout = 10 * time.Second

func NewHandler(conn Sender, identity chat.Identity, reg Broadcaster, messages store.MessageStore, presence Presence, logger *slog.Logger) *Handler {
	return &Handler{
		conn:     conn,
		identity: identity,
		registry: reg,
		messages: messages,
		presence: presence,
		logger: logger.With(
			slog.String("component", "session"),
			slog.String("connID", conn.ID().String()),
		),
	}
}

// State reports the session's current lifecycle state.
func (h *Handler) State() State { return State(h.state.Load()) }

// Destination reports the session's broadcast target, if it has one.
func (h *Handler) Destination() (chat.Destination, bool) { return h.dest, h.hasDest }

// Connect derives the session's destination from its route and registers the
// connection under it. A route with neither a room nor a reachable peer (a
// direct route needs an authenticated identity to form the pair) leaves the
// session open but destination-less; the handshake still completes and later
// receives are answered with error envelopes instead of a teardown.
func (h *Handler) Connect(ctx context.Context, route Route) {
	switch {
	case route.RoomID != nil:
		h.dest = chat.RoomDestination(*route.RoomID)
		h.hasDest = true
	case route.PeerID != nil && h.identity.Authenticated:
		h.dest = chat.DirectDestination(h.identity.UserID, *route.PeerID)
		h.hasDest = true
	default:
		h.logger.Warn("session has no destination", slog.Bool("authenticated", h.identity.Authenticated))
	}

	if h.hasDest {
		h.registry.Join(h.dest, h.conn)
	}
	h.presence.SetOnline(ctx, h.identity, true)
	h.state.Store(int32(StateOpen))
	h.logger.Info("session open",
		slog.String("destination", h.destKey()),
		slog.Int64("userID", h.identity.UserID),
	)
}

// Receive handles one inbound payload: validate, persist, then broadcast.
// Persistence happens before the broadcast so every recipient sees the
// store-assigned timestamp. All failures are reported to the originating
// connection only and never close the session.
func (h *Handler) Receive(ctx context.Context, raw []byte) {
	in, err := chat.ParseInbound(raw)
	if err != nil {
		h.sendError(err)
		return
	}
	if !h.hasDest {
		h.sendError(fmt.Errorf("%w: session has no destination", chat.ErrMalformedInput))
		return
	}

	var envelope chat.BroadcastEnvelope
	if in.Type == chat.TypeDirectMessage {
		envelope, err = h.persistDirect(ctx, in)
	} else {
		envelope, err = h.persistRoom(ctx, in)
	}
	if err != nil {
		h.sendError(err)
		return
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		h.sendError(err)
		return
	}
	delivered := h.registry.Broadcast(h.dest, payload)
	h.logger.Debug("message broadcast",
		slog.String("destination", h.dest.Key()),
		slog.Bool("direct", envelope.IsDirectMessage),
		slog.Int("recipients", delivered),
	)
}

func (h *Handler) persistDirect(ctx context.Context, in chat.Inbound) (chat.BroadcastEnvelope, error) {
	if !h.identity.Authenticated {
		return chat.BroadcastEnvelope{}, fmt.Errorf("%w: sender does not exist", chat.ErrNotFound)
	}
	saved, err := h.messages.SaveDirectMessage(ctx, h.identity.UserID, in.RecipientID, in.Message)
	if err != nil {
		return chat.BroadcastEnvelope{}, err
	}
	recipientID := in.RecipientID
	return chat.BroadcastEnvelope{
		Type:            chat.EnvelopeChatMessage,
		Message:         in.Message,
		UserID:          h.identity.UserID,
		Username:        h.identity.Username,
		Timestamp:       chat.FormatTimestamp(saved.Timestamp),
		IsDirectMessage: true,
		RecipientID:     &recipientID,
	}, nil
}

func (h *Handler) persistRoom(ctx context.Context, in chat.Inbound) (chat.BroadcastEnvelope, error) {
	if h.dest.Kind != chat.DestinationRoom {
		// A direct session sending a room message has no room to attach
		// the record to.
		return chat.BroadcastEnvelope{}, fmt.Errorf("%w: room does not exist", chat.ErrNotFound)
	}
	saved, err := h.messages.SaveRoomMessage(ctx, h.identity.UserID, h.dest.RoomID, in.Message)
	if err != nil {
		return chat.BroadcastEnvelope{}, err
	}
	return chat.BroadcastEnvelope{
		Type:            chat.EnvelopeChatMessage,
		Message:         in.Message,
		UserID:          h.identity.UserID,
		Username:        h.identity.Username,
		Timestamp:       chat.FormatTimestamp(saved.Timestamp),
		IsDirectMessage: false,
	}, nil
}

// Disconnect deregisters the connection and records the user offline. It
// runs exactly once no matter how the connection died, and deregistering a
// connection that never completed its join is a no-op by registry contract.
// The connection's own context is already cancelled by the time this runs,
// so the teardown store calls get a fresh bounded context.
func (h *Handler) Disconnect() {
	h.disconnectOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()

		if h.hasDest {
			h.registry.Leave(h.dest, h.conn.ID())
		}
		h.presence.SetOnline(ctx, h.identity, false)
		h.state.Store(int32(StateClosed))
		h.logger.Info("session closed", slog.String("destination", h.destKey()))
	})
}

func (h *Handler) sendError(err error) {
	h.logger.Warn("receive failed", slog.Any("error", err))
	payload, marshalErr := json.Marshal(chat.ErrorEnvelope{Error: err.Error()})
	if marshalErr != nil {
		return
	}
	h.conn.Send(payload)
}

func (h *Handler) destKey() string {
	if !h.hasDest {
		return "none"
	}
	return h.dest.Key()
}
