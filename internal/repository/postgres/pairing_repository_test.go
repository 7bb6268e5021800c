package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/domain"
)

func TestPairingRepository_AddPairing(t *testing.T) {
	t.Run("inserts_pairing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO pairings (owner_id, peer_id, room_key)`)).
			WithArgs(3, 7, "3_7").
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewPairingRepository(db)
		require.NoError(t, repo.AddPairing(context.Background(), 3, 7, "3_7"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing_pairing_is_noop", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO pairings`)).
			WithArgs(7, 3, "3_7").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "pairings_pkey"})

		repo := NewPairingRepository(db)
		require.NoError(t, repo.AddPairing(context.Background(), 7, 3, "3_7"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transient_failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO pairings`)).
			WillReturnError(&pq.Error{Code: "40P01"})

		repo := NewPairingRepository(db)
		err = repo.AddPairing(context.Background(), 3, 7, "3_7")
		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPairingRepository_ListPairings(t *testing.T) {
	t.Run("insertion_order", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY position ASC`)).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"owner_id", "peer_id", "room_key", "created_at"}).
				AddRow(3, 7, "3_7", now).
				AddRow(3, 1, "1_3", now))

		repo := NewPairingRepository(db)
		pairings, err := repo.ListPairings(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, pairings, 2)
		assert.Equal(t, domain.UserID(7), pairings[0].PeerID)
		assert.Equal(t, domain.RoomKey("1_3"), pairings[1].RoomKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown_user_returns_empty", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`FROM pairings`)).
			WithArgs(42).
			WillReturnRows(sqlmock.NewRows([]string{"owner_id", "peer_id", "room_key", "created_at"}))

		repo := NewPairingRepository(db)
		pairings, err := repo.ListPairings(context.Background(), 42)
		require.NoError(t, err)
		assert.NotNil(t, pairings)
		assert.Empty(t, pairings)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
