// Package server wires the transport, registry, session, and store layers
// into an HTTP application exposing the WebSocket chat endpoints.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Mark-hil/chat-app/internal/presence"
	"github.com/Mark-hil/chat-app/internal/registry"
	"github.com/Mark-hil/chat-app/internal/server/middleware"
	"github.com/Mark-hil/chat-app/internal/session"
	"github.com/Mark-hil/chat-app/internal/store"
	"github.com/Mark-hil/chat-app/pkg/config"
	"github.com/Mark-hil/chat-app/pkg/transport"
)

type App struct {
	logger   *slog.Logger
	registry *registry.Registry
	presence *presence.Tracker
	messages store.MessageStore
	config   *config.Config

	http *http.Server
	wg   sync.WaitGroup
	ctx  context.Context
}

func NewApp(rootCtx context.Context, logger *slog.Logger, cfg *config.Config, messages store.MessageStore, presenceStore store.PresenceStore) *App {
	app := &App{
		logger:   logger,
		registry: registry.New(logger),
		presence: presence.NewTracker(presenceStore, logger),
		messages: messages,
		config:   cfg,
		ctx:      rootCtx,
	}

	// Identity resolves before the request logger so the log line carries
	// the authenticated user.
	upgrade := middleware.Chain(
		http.HandlerFunc(app.upgradeHandler),
		middleware.RequestMetadataMiddleware(),
		middleware.NewIdentityMiddleware(logger, cfg.Server.Auth.TokenSecret),
		middleware.NewRequestLogger(logger),
	)

	r := mux.NewRouter()
	r.Handle("/ws/chat/room/{roomID:[0-9]+}", upgrade).Methods(http.MethodGet)
	r.Handle("/ws/chat/direct/{userID:[0-9]+}", upgrade).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
		BaseContext: func(net.Listener) context.Context {
			return rootCtx
		},
	}
	return app
}

// Run serves until the root context is cancelled, then shuts down.
func (a *App) Run() error {
	go func() {
		a.logger.Info("server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	route := routeFromVars(mux.Vars(r))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.config.Server.AllowedOrigins,
	})
	if err != nil {
		a.logger.Error("failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(a.ctx, &a.wg, wsConn, transport.Config{
		ReadTimeout: a.config.Transport.ReadTimeout,
		SendBuffer:  a.config.Transport.SendBuffer,
	}, a.logger)

	sess := session.NewHandler(conn, reqMeta.Identity, a.registry, a.messages, a.presence, a.logger)
	conn.OnMessage(func(ctx context.Context, _ uuid.UUID, payload []byte) {
		sess.Receive(ctx, payload)
	})
	conn.OnClose(func(uuid.UUID, error) {
		sess.Disconnect()
	})

	// Join the group before the pumps start so the session cannot miss a
	// broadcast issued between handshake and first read.
	sess.Connect(r.Context(), route)
	conn.Run()
	<-conn.Done()
}

// routeFromVars extracts the destination identifiers from the initiation
// route. The route patterns guarantee the values are numeric.
func routeFromVars(vars map[string]string) session.Route {
	var route session.Route
	if raw, ok := vars["roomID"]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			route.RoomID = &id
		}
	}
	if raw, ok := vars["userID"]; ok {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			route.PeerID = &id
		}
	}
	return route
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "UP",
		"timestamp": time.Now().UTC(),
	})
}

// Shutdown stops accepting upgrades and waits for live connections to drain.
// The root context is already cancelled when this runs, which unblocks every
// connection's pumps and fires each session's disconnect.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if live := len(a.registry.Connections()); live > 0 {
		a.logger.Info("waiting for connections to drain", slog.Int("connections", live))
	}
	a.wg.Wait()
	a.logger.Info("server shut down gracefully")
	return nil
}
