// Package postgres persists the queue document as a single jsonb row,
// keeping the whole-collection atomic-set contract: every Save is one
// upsert of one row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Register the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/uplink/store"
)

// documentID is the primary key of the only row this store ever touches.
const documentID = 1

// Store is a store.Blob backed by the uplink_state table.
type Store struct {
	db store.DBTX
}

// New creates a postgres-backed Blob over the given connection or
// transaction. The uplink_state table must exist; see Migrate.
func New(db store.DBTX) *Store {
	return &Store{db: db}
}

// Load reads the current document. A missing row means no document has
// been written yet and returns nil data with a nil error.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	query := `
		SELECT document
		FROM uplink_state
		WHERE id = $1
	`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue document: %w", err)
	}
	return data, nil
}

// Save atomically replaces the document.
func (s *Store) Save(ctx context.Context, data []byte) error {
	query := `
		INSERT INTO uplink_state (id, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, documentID, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save queue document: %w", err)
	}
	return nil
}
