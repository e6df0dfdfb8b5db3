package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Mark-hil/chat-app/pkg/chat"
	"github.com/Mark-hil/chat-app/pkg/config"
	"github.com/Mark-hil/chat-app/pkg/workpool"
)

const pgForeignKeyViolation = "23503"

// Postgres implements MessageStore and PresenceStore over database/sql with
// the pgx driver. Every query runs on the shared I/O pool so callers suspend
// at the pool boundary instead of inside their own goroutine's locks.
type Postgres struct {
	db     *sql.DB
	pool   *workpool.Pool
	logger *slog.Logger
}

var (
	_ MessageStore  = (*Postgres)(nil)
	_ PresenceStore = (*Postgres)(nil)
)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, pool *workpool.Pool, logger *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connected")
	return &Postgres{
		db:     db,
		pool:   pool,
		logger: logger.With(slog.String("component", "store")),
	}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) SaveRoomMessage(ctx context.Context, userID, roomID int64, content string) (SavedMessage, error) {
	query := `
		INSERT INTO chat_message (user_id, room_id, content, is_direct_message, timestamp)
		VALUES ($1, $2, $3, FALSE, now())
		RETURNING id, timestamp
	`
	var saved SavedMessage
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		return p.db.QueryRowContext(ctx, query, userID, roomID, content).
			Scan(&saved.ID, &saved.Timestamp)
	})
	if err != nil {
		return SavedMessage{}, classify(err)
	}
	return saved, nil
}

func (p *Postgres) SaveDirectMessage(ctx context.Context, userID, recipientID int64, content string) (SavedMessage, error) {
	query := `
		INSERT INTO chat_message (user_id, recipient_id, content, is_direct_message, timestamp)
		VALUES ($1, $2, $3, TRUE, now())
		RETURNING id, timestamp
	`
	var saved SavedMessage
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		return p.db.QueryRowContext(ctx, query, userID, recipientID, content).
			Scan(&saved.ID, &saved.Timestamp)
	})
	if err != nil {
		return SavedMessage{}, classify(err)
	}
	return saved, nil
}

func (p *Postgres) SetPresence(ctx context.Context, userID int64, online bool) error {
	query := `
		INSERT INTO chat_userprofile (user_id, is_online, last_seen)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET is_online = EXCLUDED.is_online, last_seen = now()
	`
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		_, execErr := p.db.ExecContext(ctx, query, userID, online)
		return execErr
	})
	return classify(err)
}

// classify maps driver errors onto the error taxonomy. A foreign key
// violation means the referenced user, recipient, or room does not exist.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", chat.ErrNotFound, pgErr.ConstraintName)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: no matching row", chat.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", chat.ErrTransientStore, err)
}
