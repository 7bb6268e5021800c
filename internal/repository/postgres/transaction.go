package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pairchat/internal/domain"
)

const claimSeqQuery = `
	UPDATE rooms SET last_seq = last_seq + 1
	WHERE room_key = $1
	RETURNING last_seq
`

// withNextSeq begins a transaction, claims the next sequence number of the
// room and passes it to fn. The counter update holds the room row lock until
// commit or rollback, so concurrent appends to one room queue behind each other.
// fn errors and domain.ErrRoomNotFound are returned unwrapped.
func withNextSeq(ctx context.Context, db *sql.DB, roomKey domain.RoomKey, fn func(tx *sql.Tx, seq int64) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("failed to roll back transaction: %w", rbErr))
		}
	}()

	var seq int64
	err = tx.QueryRowContext(ctx, claimSeqQuery, roomKey).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to advance room sequence: %w", err)
	}

	if err := fn(tx, seq); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		committed = true // a failed commit leaves nothing to roll back
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
