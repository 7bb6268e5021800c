package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pairchat/internal/domain"
	"pairchat/internal/observability"
)

const pairingsPrimaryKey = "pairings_pkey"

// PairingRepository implements domain.PairingRepository for PostgreSQL
type PairingRepository struct {
	db *sql.DB
}

// NewPairingRepository creates a new PostgreSQL pairing repository
func NewPairingRepository(db *sql.DB) *PairingRepository {
	return &PairingRepository{db: db}
}

// AddPairing appends peer to owner's contact list. The (owner, peer) primary
// key makes a repeated or concurrent insert a no-op.
func (r *PairingRepository) AddPairing(ctx context.Context, owner, peer domain.UserID, roomKey domain.RoomKey) error {
	defer observability.ObserveQuery("add_pairing", "pairings", time.Now())

	query := `
		INSERT INTO pairings (owner_id, peer_id, room_key)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, owner, peer, roomKey); err != nil {
		if IsUniqueViolation(err, pairingsPrimaryKey) {
			return nil
		}
		return persistenceError("add pairing", err)
	}
	return nil
}

// ListPairings returns owner's contacts in insertion order
func (r *PairingRepository) ListPairings(ctx context.Context, owner domain.UserID) ([]*domain.Pairing, error) {
	defer observability.ObserveQuery("list_pairings", "pairings", time.Now())

	query := `
		SELECT owner_id, peer_id, room_key, created_at
		FROM pairings
		WHERE owner_id = $1
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, persistenceError("list pairings", fmt.Errorf("failed to query pairings: %w", err))
	}
	defer rows.Close()

	pairings := make([]*domain.Pairing, 0)
	for rows.Next() {
		p := &domain.Pairing{}
		if err := rows.Scan(&p.OwnerID, &p.PeerID, &p.RoomKey, &p.CreatedAt); err != nil {
			return nil, persistenceError("list pairings", fmt.Errorf("failed to scan pairing: %w", err))
		}
		pairings = append(pairings, p)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("list pairings", fmt.Errorf("error iterating pairings: %w", err))
	}

	return pairings, nil
}
