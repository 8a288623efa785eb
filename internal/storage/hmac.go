package storage

import (
	"context"
	"database/sql"

	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// UpsertHmacKey stores key's rotated key for (groupID, epochDay), replacing
// any key already recorded for that day.
func (s *Store) UpsertHmacKey(ctx context.Context, key models.HmacKey) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO hmac_keys (group_id, epoch_day, key) VALUES (?, ?, ?)
			ON CONFLICT(group_id, epoch_day) DO UPDATE SET key = excluded.key`,
			key.GroupID, key.EpochDay, key.Key)
		return err
	})
}

// GetHmacKey returns the key rotated for groupID on epochDay, or
// (HmacKey{}, false) if none has been generated yet.
func (s *Store) GetHmacKey(ctx context.Context, groupID []byte, epochDay int64) (models.HmacKey, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT group_id, epoch_day, key FROM hmac_keys WHERE group_id = ? AND epoch_day = ?`, groupID, epochDay)
	var key models.HmacKey
	if err := row.Scan(&key.GroupID, &key.EpochDay, &key.Key); err != nil {
		if err == sql.ErrNoRows {
			return models.HmacKey{}, false, nil
		}
		return models.HmacKey{}, false, err
	}
	return key, true, nil
}

// ListHmacKeysForGroup returns every epoch key stored for groupID, newest
// epoch first — used to hand a push-notification decryptor the small
// window of recent keys it needs.
func (s *Store) ListHmacKeysForGroup(ctx context.Context, groupID []byte) ([]models.HmacKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, epoch_day, key FROM hmac_keys WHERE group_id = ? ORDER BY epoch_day DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.HmacKey
	for rows.Next() {
		var key models.HmacKey
		if err := rows.Scan(&key.GroupID, &key.EpochDay, &key.Key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// DeleteHmacKeysBefore prunes every key older than epochDay, bounding the
// table to the configured rotation window.
func (s *Store) DeleteHmacKeysBefore(ctx context.Context, groupID []byte, epochDay int64) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM hmac_keys WHERE group_id = ? AND epoch_day < ?`, groupID, epochDay)
		return err
	})
}
