package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/domain"
)

var messageColumns = []string{"id", "room_key", "seq", "content", "sent_at", "sender_id", "sender_username", "created_at"}

func TestMessageRepository_EnsureRoom(t *testing.T) {
	t.Run("creates_room", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO rooms (room_key) VALUES ($1)`)).
			WithArgs("3_7").
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewMessageRepository(db)
		require.NoError(t, repo.EnsureRoom(context.Background(), "3_7"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate_creation_is_success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO rooms (room_key) VALUES ($1)`)).
			WithArgs("3_7").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "rooms_pkey"})

		repo := NewMessageRepository(db)
		require.NoError(t, repo.EnsureRoom(context.Background(), "3_7"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store_failure_is_persistence_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO rooms (room_key) VALUES ($1)`)).
			WithArgs("3_7").
			WillReturnError(&pq.Error{Code: "08006"})

		repo := NewMessageRepository(db)
		err = repo.EnsureRoom(context.Background(), "3_7")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.True(t, domain.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMessageRepository_Append(t *testing.T) {
	t.Run("assigns_sequence_and_id", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		createdAt := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE rooms SET last_seq = last_seq + 1`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows([]string{"last_seq"}).AddRow(4))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages (room_key, seq, content, sent_at, sender_id, sender_username)`)).
			WithArgs("3_7", 4, "hi", 1000, 3, "alice").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("msg-1", createdAt))
		mock.ExpectCommit()

		msg := &domain.Message{
			RoomKey:        "3_7",
			Content:        "hi",
			Timestamp:      1000,
			SenderID:       3,
			SenderUsername: "alice",
		}

		repo := NewMessageRepository(db)
		require.NoError(t, repo.Append(context.Background(), msg))
		assert.Equal(t, "msg-1", msg.ID)
		assert.Equal(t, int64(4), msg.Seq)
		assert.Equal(t, createdAt, msg.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown_room", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE rooms SET last_seq = last_seq + 1`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows([]string{"last_seq"}))
		mock.ExpectRollback()

		repo := NewMessageRepository(db)
		err = repo.Append(context.Background(), &domain.Message{RoomKey: "3_7", Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert_failure_rolls_back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE rooms SET last_seq = last_seq + 1`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows([]string{"last_seq"}).AddRow(1))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages`)).
			WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()

		msg := &domain.Message{RoomKey: "3_7", Content: "hi", Timestamp: 1, SenderID: 3, SenderUsername: "alice"}

		repo := NewMessageRepository(db)
		err = repo.Append(context.Background(), msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.True(t, domain.IsRetryable(err))
		assert.Zero(t, msg.Seq)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMessageRepository_ReadAll(t *testing.T) {
	t.Run("returns_append_order", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM rooms WHERE room_key = $1)`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY seq ASC`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow("m1", "3_7", 1, "hi", 1000, 3, "alice", now).
				AddRow("m2", "3_7", 2, "hey", 999, 7, "bob", now))

		repo := NewMessageRepository(db)
		messages, err := repo.ReadAll(context.Background(), "3_7")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "hi", messages[0].Content)
		assert.Equal(t, domain.UserID(3), messages[0].SenderID)
		assert.Equal(t, int64(2), messages[1].Seq)
		assert.Equal(t, int64(999), messages[1].Timestamp)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_room_returns_empty_slice", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY seq ASC`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows(messageColumns))

		repo := NewMessageRepository(db)
		messages, err := repo.ReadAll(context.Background(), "3_7")
		require.NoError(t, err)
		assert.NotNil(t, messages)
		assert.Empty(t, messages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown_room", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
			WithArgs("9_11").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		repo := NewMessageRepository(db)
		_, err = repo.ReadAll(context.Background(), "9_11")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
			WillReturnError(errors.New("connection refused"))

		repo := NewMessageRepository(db)
		_, err = repo.ReadAll(context.Background(), "3_7")
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMessageRepository_Last(t *testing.T) {
	t.Run("returns_tail", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY seq DESC`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow("m2", "3_7", 2, "hey", 1001, 7, "bob", time.Now()))

		repo := NewMessageRepository(db)
		msg, err := repo.Last(context.Background(), "3_7")
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, "hey", msg.Content)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty_room_returns_nil", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY seq DESC`)).
			WithArgs("3_7").
			WillReturnRows(sqlmock.NewRows(messageColumns))

		repo := NewMessageRepository(db)
		msg, err := repo.Last(context.Background(), "3_7")
		require.NoError(t, err)
		assert.Nil(t, msg)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
