package storage

import (
	"context"
	"database/sql"

	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// UpsertConsent records the authoritative consent state for entity (a
// conversation id or an inbox id), mirroring the groups table's cached
// consent_state column when entityType is ConsentEntityConversationID.
func (s *Store) UpsertConsent(ctx context.Context, rec models.ConsentRecord) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO consent_records (entity_type, entity, state, consented_at_ns)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(entity_type, entity) DO UPDATE SET state = excluded.state, consented_at_ns = excluded.consented_at_ns`,
			string(rec.EntityType), rec.Entity, string(rec.State), rec.ConsentedAtNs)
		if err != nil {
			return err
		}
		if rec.EntityType == models.ConsentEntityConversationID {
			_, err = tx.ExecContext(ctx, `UPDATE groups SET consent_state = ? WHERE group_id = ?`, string(rec.State), []byte(rec.Entity))
		}
		return err
	})
}

// GetConsent returns entity's consent record, or ConsentStateUnknown if
// none has ever been recorded.
func (s *Store) GetConsent(ctx context.Context, entityType models.ConsentEntityType, entity string) (models.ConsentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT entity_type, entity, state, consented_at_ns FROM consent_records
		WHERE entity_type = ? AND entity = ?`, string(entityType), entity)
	var rec models.ConsentRecord
	var et, state string
	if err := row.Scan(&et, &rec.Entity, &state, &rec.ConsentedAtNs); err != nil {
		if err == sql.ErrNoRows {
			return models.ConsentRecord{EntityType: entityType, Entity: entity, State: models.ConsentStateUnknown}, nil
		}
		return models.ConsentRecord{}, err
	}
	rec.EntityType = models.ConsentEntityType(et)
	rec.State = models.ConsentState(state)
	return rec, nil
}

// ListConsentRecords returns every recorded consent of entityType, for
// device-sync-group propagation of the whole consent set.
func (s *Store) ListConsentRecords(ctx context.Context, entityType models.ConsentEntityType) ([]models.ConsentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_type, entity, state, consented_at_ns FROM consent_records
		WHERE entity_type = ? ORDER BY consented_at_ns ASC`, string(entityType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ConsentRecord
	for rows.Next() {
		var rec models.ConsentRecord
		var et, state string
		if err := rows.Scan(&et, &rec.Entity, &state, &rec.ConsentedAtNs); err != nil {
			return nil, err
		}
		rec.EntityType = models.ConsentEntityType(et)
		rec.State = models.ConsentState(state)
		out = append(out, rec)
	}
	return out, rows.Err()
}
