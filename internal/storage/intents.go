package storage

import (
	"context"
	"database/sql"

	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

// InsertIntent stages a new intent row in state ToPublish.
func (s *Store) InsertIntent(ctx context.Context, in models.Intent) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_intents (id, group_id, kind, data, state, published_in_epoch, post_commit_data,
				publish_attempts, epoch_conflict_count, error_reason, created_at_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.GroupID, string(in.Kind), in.Data, string(in.State), nullableEpoch(in.PublishedInEpoch),
			in.PostCommitData, in.PublishAttempts, in.EpochConflictCount, nullableString(in.ErrorReason), in.CreatedAtNs)
		return err
	})
}

func nullableEpoch(e *uint64) any {
	if e == nil {
		return nil
	}
	return *e
}

// GetIntent fetches one intent by id.
func (s *Store) GetIntent(ctx context.Context, id string) (models.Intent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, group_id, kind, data, state, published_in_epoch, post_commit_data,
		publish_attempts, epoch_conflict_count, error_reason, created_at_ns FROM group_intents WHERE id = ?`, id)
	in, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return models.Intent{}, xmtperr.New(xmtperr.CategoryIntent, xmtperr.ScopeNone, false, xmtperr.ErrNotFound)
	}
	return in, err
}

func scanIntent(row *sql.Row) (models.Intent, error) {
	var in models.Intent
	var kind, state string
	var publishedEpoch sql.NullInt64
	var errorReason sql.NullString
	if err := row.Scan(&in.ID, &in.GroupID, &kind, &in.Data, &state, &publishedEpoch, &in.PostCommitData,
		&in.PublishAttempts, &in.EpochConflictCount, &errorReason, &in.CreatedAtNs); err != nil {
		return models.Intent{}, err
	}
	in.Kind = models.IntentKind(kind)
	in.State = models.IntentState(state)
	in.ErrorReason = errorReason.String
	if publishedEpoch.Valid {
		v := uint64(publishedEpoch.Int64)
		in.PublishedInEpoch = &v
	}
	return in, nil
}

// ListIntentsByState returns every intent for groupID in the given state,
// oldest first, to preserve the pipeline's per-client FIFO ordering
// guarantee.
func (s *Store) ListIntentsByState(ctx context.Context, groupID []byte, state models.IntentState) ([]models.Intent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, group_id, kind, data, state, published_in_epoch, post_commit_data,
		publish_attempts, epoch_conflict_count, error_reason, created_at_ns FROM group_intents
		WHERE group_id = ? AND state = ? ORDER BY created_at_ns ASC, id ASC`, groupID, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Intent
	for rows.Next() {
		var in models.Intent
		var kind, st string
		var publishedEpoch sql.NullInt64
		var errorReason sql.NullString
		if err := rows.Scan(&in.ID, &in.GroupID, &kind, &in.Data, &st, &publishedEpoch, &in.PostCommitData,
			&in.PublishAttempts, &in.EpochConflictCount, &errorReason, &in.CreatedAtNs); err != nil {
			return nil, err
		}
		in.Kind = models.IntentKind(kind)
		in.State = models.IntentState(st)
		in.ErrorReason = errorReason.String
		if publishedEpoch.Valid {
			v := uint64(publishedEpoch.Int64)
			in.PublishedInEpoch = &v
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// UpdateIntent persists a full intent row, the pipeline's single write path
// for every state transition (ToPublish/Published/Committed/Error).
func (s *Store) UpdateIntent(ctx context.Context, in models.Intent) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE group_intents SET kind = ?, data = ?, state = ?, published_in_epoch = ?, post_commit_data = ?,
				publish_attempts = ?, epoch_conflict_count = ?, error_reason = ? WHERE id = ?`,
			string(in.Kind), in.Data, string(in.State), nullableEpoch(in.PublishedInEpoch), in.PostCommitData,
			in.PublishAttempts, in.EpochConflictCount, nullableString(in.ErrorReason), in.ID)
		return err
	})
}
