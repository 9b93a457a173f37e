// Package messagelog persists inbound WhatsApp messages in Postgres so the
// assistant can answer "what did people send me?" later.
package messagelog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const maxRecentLimit = 100

// Config is read from MESSAGE_LOG_* variables. The log is optional: without
// a DSN the inbound-message features stay switched off.
type Config struct {
	DSN string `split_words:"true"`
}

// IsConfigured reports whether a database was pointed at.
func (c Config) IsConfigured() bool {
	return strings.TrimSpace(c.DSN) != ""
}

// Message is one inbound WhatsApp message.
type Message struct {
	bun.BaseModel `bun:"table:whatsapp_messages,alias:m"`

	ID         int64     `bun:"id,pk,autoincrement"`
	MessageID  string    `bun:"message_id,unique,notnull"`
	From       string    `bun:"from_number,notnull"`
	Body       string    `bun:"body"`
	ReceivedAt time.Time `bun:"received_at,notnull"`
}

// Store wraps the bun handle.
type Store struct {
	db *bun.DB
}

// Open connects to Postgres. It does not ping; the first query surfaces
// connectivity problems.
func Open(cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("message log dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithApplicationName("attache")))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func MustOpen(cfg Config) *Store {
	store, err := Open(cfg)
	if err != nil {
		panic(err)
	}
	return store
}

// EnsureSchema creates the messages table when it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*Message)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Insert records one inbound message. Replays of the same Graph message id
// are dropped silently.
func (s *Store) Insert(ctx context.Context, msg *Message) error {
	if msg == nil || strings.TrimSpace(msg.MessageID) == "" {
		return errors.New("message id is required")
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.NewInsert().
		Model(msg).
		On("CONFLICT (message_id) DO NOTHING").
		Exec(ctx)
	return err
}

// Recent returns up to limit messages, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	messages := make([]Message, 0, limit)
	err := s.db.NewSelect().
		Model(&messages).
		Order("received_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
