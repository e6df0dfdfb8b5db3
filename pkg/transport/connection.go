// Package transport wraps a single WebSocket connection behind read/write
// pumps so the rest of the system only ever sees byte payloads and lifecycle
// callbacks.
package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MessageHandler is invoked for every inbound text or binary frame. The
// context is connection-scoped and is cancelled when the connection closes.
type MessageHandler func(ctx context.Context, connID uuid.UUID, payload []byte)

// CloseHandler is invoked exactly once when the connection terminates, with
// the error that caused the closure (nil for a clean shutdown).
type CloseHandler func(connID uuid.UUID, err error)

// Config carries the per-connection transport knobs.
type Config struct {
	ReadTimeout time.Duration
	SendBuffer  int
}

// Connection is a thread-safe wrapper around one open WebSocket. Writes go
// through a buffered channel drained by the write pump; reads are dispatched
// to the message handler from the read pump.
type Connection struct {
	id   uuid.UUID
	conn *websocket.Conn
	cfg  Config
	send chan []byte

	onMessage MessageHandler
	onClose   CloseHandler

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	started   bool
	wg        *sync.WaitGroup

	logger *slog.Logger
}

// NewConnection wraps an accepted WebSocket. The handlers may be attached
// after construction, but before Run is called.
func NewConnection(parent context.Context, wg *sync.WaitGroup, conn *websocket.Conn, cfg Config, logger *slog.Logger) *Connection {
	id := uuid.New()
	ctx, cancel := context.WithCancel(parent)
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Connection{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		wg:     wg,
		logger: logger.With(slog.String("connID", id.String())),
	}
}

// Run starts both pumps. It returns immediately; use Done to wait for
// termination.
func (c *Connection) Run() {
	c.started = true
	c.wg.Add(1)
	go c.readPump()
	go c.writePump()
	c.logger.Debug("connection established")
}

func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		payload, err := c.readFrame()
		if err != nil {
			readErr = err
			return
		}
		if payload == nil {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, payload)
		}
	}
}

// readFrame reads one frame, returning a nil payload for frame types that
// carry no application data.
func (c *Connection) readFrame() ([]byte, error) {
	readCtx := c.ctx
	if c.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(c.ctx, c.cfg.ReadTimeout)
		defer cancel()
	}

	typ, r, err := c.conn.Reader(readCtx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText && typ != websocket.MessageBinary {
		return nil, nil
	}
	return io.ReadAll(r)
}

func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, payload); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues a payload for delivery. It is safe for concurrent use and is a
// silent no-op once the connection has closed, so a stale recipient never
// aborts a broadcast to the rest of its group.
func (c *Connection) Send(payload []byte) {
	select {
	case c.send <- payload:
	case <-c.ctx.Done():
	}
}

// Close tears down the connection. It is idempotent: the context is
// cancelled (unblocking any pending read or write), the socket is closed,
// and the close handler fires exactly once.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("connection closing", slog.Any("reason", err))
		c.cancel()
		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, "")
		}
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		if c.started {
			c.wg.Done()
		}
		close(c.done)
	})
}

// Done is closed when the connection has fully terminated.
func (c *Connection) Done() <-chan struct{} { return c.done }

// ID returns the opaque per-session connection handle.
func (c *Connection) ID() uuid.UUID { return c.id }

// OnMessage attaches the inbound frame handler. Must be called before Run.
func (c *Connection) OnMessage(h MessageHandler) { c.onMessage = h }

// OnClose attaches the termination handler. Must be called before Run.
func (c *Connection) OnClose(h CloseHandler) { c.onClose = h }
