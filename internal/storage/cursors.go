package storage

import (
	"context"
	"database/sql"

	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// GetCursor returns the stored high-water mark for (originatorID, topic),
// or zero if conversation sync has never advanced past it.
func (s *Store) GetCursor(ctx context.Context, originatorID uint32, topic string) (models.Cursor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT originator_id, topic, sequence_id FROM cursors WHERE originator_id = ? AND topic = ?`, originatorID, topic)
	var c models.Cursor
	if err := row.Scan(&c.OriginatorID, &c.Topic, &c.SequenceID); err != nil {
		if err == sql.ErrNoRows {
			return models.Cursor{OriginatorID: originatorID, Topic: topic}, nil
		}
		return models.Cursor{}, err
	}
	return c, nil
}

// AdvanceCursor persists the new high-water mark for (originatorID, topic).
// It runs in its own transaction, separate from the state updates the
// envelopes produced (SyncConversation calls it once after applying a whole
// batch), so a crash between the two leaves those envelopes applied with
// the cursor not yet past them.
func (s *Store) AdvanceCursor(ctx context.Context, c models.Cursor) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cursors (originator_id, topic, sequence_id) VALUES (?, ?, ?)
			ON CONFLICT(originator_id, topic) DO UPDATE SET sequence_id = excluded.sequence_id`,
			c.OriginatorID, c.Topic, c.SequenceID)
		return err
	})
}
