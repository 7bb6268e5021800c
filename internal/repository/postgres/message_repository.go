package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pairchat/internal/domain"
	"pairchat/internal/observability"
)

const roomsPrimaryKey = "rooms_pkey"

// MessageRepository implements domain.MessageRepository for PostgreSQL
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// EnsureRoom creates the room's log if it does not exist yet. A concurrent
// creation of the same room surfaces as a unique violation and counts as success.
func (r *MessageRepository) EnsureRoom(ctx context.Context, roomKey domain.RoomKey) error {
	defer observability.ObserveQuery("ensure_room", "rooms", time.Now())

	query := `INSERT INTO rooms (room_key) VALUES ($1)`
	if _, err := r.db.ExecContext(ctx, query, roomKey); err != nil {
		if IsUniqueViolation(err, roomsPrimaryKey) {
			return nil
		}
		return persistenceError("ensure room", err)
	}
	return nil
}

// Append adds message to the tail of its room's log and assigns its Seq
func (r *MessageRepository) Append(ctx context.Context, message *domain.Message) error {
	defer observability.ObserveQuery("append", "messages", time.Now())

	err := withNextSeq(ctx, r.db, message.RoomKey, func(tx *sql.Tx, seq int64) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO messages (room_key, seq, content, sent_at, sender_id, sender_username)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`,
			message.RoomKey,
			seq,
			message.Content,
			message.Timestamp,
			message.SenderID,
			message.SenderUsername,
		).Scan(&message.ID, &message.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		message.Seq = seq
		return nil
	})

	if errors.Is(err, domain.ErrRoomNotFound) {
		return err
	}
	if err != nil {
		return persistenceError("append message", err)
	}
	return nil
}

// ReadAll returns the room's full log in append order
func (r *MessageRepository) ReadAll(ctx context.Context, roomKey domain.RoomKey) ([]*domain.Message, error) {
	defer observability.ObserveQuery("read_all", "messages", time.Now())

	if err := r.requireRoom(ctx, roomKey); err != nil {
		return nil, err
	}

	query := `
		SELECT id, room_key, seq, content, sent_at, sender_id, sender_username, created_at
		FROM messages
		WHERE room_key = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, roomKey)
	if err != nil {
		return nil, persistenceError("read messages", fmt.Errorf("failed to query messages: %w", err))
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, persistenceError("read messages", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("read messages", fmt.Errorf("error iterating messages: %w", err))
	}

	return messages, nil
}

// Last returns the newest message of the room, or nil when the log is empty
func (r *MessageRepository) Last(ctx context.Context, roomKey domain.RoomKey) (*domain.Message, error) {
	defer observability.ObserveQuery("last", "messages", time.Now())

	query := `
		SELECT id, room_key, seq, content, sent_at, sender_id, sender_username, created_at
		FROM messages
		WHERE room_key = $1
		ORDER BY seq DESC
		LIMIT 1
	`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, roomKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("read last message", err)
	}
	return msg, nil
}

func (r *MessageRepository) requireRoom(ctx context.Context, roomKey domain.RoomKey) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rooms WHERE room_key = $1)`, roomKey,
	).Scan(&exists)
	if err != nil {
		return persistenceError("lookup room", err)
	}
	if !exists {
		return domain.ErrRoomNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	msg := &domain.Message{}
	err := row.Scan(
		&msg.ID,
		&msg.RoomKey,
		&msg.Seq,
		&msg.Content,
		&msg.Timestamp,
		&msg.SenderID,
		&msg.SenderUsername,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return msg, nil
}
