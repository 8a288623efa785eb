package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"

	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

// InsertGroup creates a new group row. Grounded in message_store.go's
// SaveMessage conflict-detection discipline: callers get a clear error on
// a duplicate group_id rather than a silent overwrite.
func (s *Store) InsertGroup(ctx context.Context, g models.Conversation) error {
	mutable, err := json.Marshal(g.Mutable)
	if err != nil {
		return err
	}
	immutable, err := json.Marshal(g.Immutable)
	if err != nil {
		return err
	}
	policy, err := json.Marshal(g.Policy)
	if err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO groups (group_id, conversation_type, dm_id, membership_state, created_at_ns,
				last_message_ns, added_by_inbox_id, epoch, maybe_forked, mutable_metadata, immutable_metadata, policy_set, last_commit_digest)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.GroupID, string(g.ConversationType), nullableString(g.DMID), string(g.MembershipState),
			g.CreatedAtNs, g.LastMessageNs, g.AddedByInboxID, g.Epoch, boolToInt(g.MaybeForked),
			mutable, immutable, policy, g.LastCommitDigest)
		return err
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GroupListFilter narrows a group listing by activity window, consent, and
// conversation type.
type GroupListFilter struct {
	CreatedBeforeNs      *int64
	CreatedAfterNs       *int64
	LastActivityBeforeNs *int64
	LastActivityAfterNs  *int64
	ConsentStates        []models.ConsentState // nil = no filter, non-nil-empty = match nothing
	ConversationType     *models.ConversationType
	Limit                int
	OrderBy              models.GroupOrderBy
	IncludeDuplicateDMs  bool
}

// ListGroups implements the group-listing query, including the DM-stitching
// dedup rule: for groups sharing a dm_id, only the one with the most recent
// last_message_ns surfaces when IncludeDuplicateDMs is false (ties broken by
// created_at_ns descending, then group_id ascending).
func (s *Store) ListGroups(ctx context.Context, filter GroupListFilter) ([]models.Conversation, error) {
	if filter.ConsentStates != nil && len(filter.ConsentStates) == 0 {
		return nil, nil // Some([]) means "match nothing"
	}

	query := `SELECT group_id, conversation_type, dm_id, membership_state, created_at_ns, last_message_ns,
		added_by_inbox_id, epoch, maybe_forked, mutable_metadata, immutable_metadata, policy_set, consent_state, last_commit_digest
		FROM groups WHERE 1=1`
	var args []any
	if filter.CreatedBeforeNs != nil {
		query += " AND created_at_ns < ?"
		args = append(args, *filter.CreatedBeforeNs)
	}
	if filter.CreatedAfterNs != nil {
		query += " AND created_at_ns > ?"
		args = append(args, *filter.CreatedAfterNs)
	}
	if filter.LastActivityBeforeNs != nil {
		query += " AND last_message_ns < ?"
		args = append(args, *filter.LastActivityBeforeNs)
	}
	if filter.LastActivityAfterNs != nil {
		query += " AND last_message_ns > ?"
		args = append(args, *filter.LastActivityAfterNs)
	}
	if filter.ConversationType != nil {
		query += " AND conversation_type = ?"
		args = append(args, string(*filter.ConversationType))
	}
	if filter.ConsentStates != nil {
		query += " AND consent_state IN (" + placeholders(len(filter.ConsentStates)) + ")"
		for _, cs := range filter.ConsentStates {
			args = append(args, string(cs))
		}
	}

	switch filter.OrderBy {
	case models.GroupOrderByLastActivity:
		query += " ORDER BY last_message_ns DESC"
	default:
		query += " ORDER BY created_at_ns DESC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		g, consentState, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		_ = consentState
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !filter.IncludeDuplicateDMs {
		out = dedupeDMs(out)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func scanGroup(rows *sql.Rows) (models.Conversation, string, error) {
	var g models.Conversation
	var convType, membershipState, consentState string
	var dmID sql.NullString
	var addedBy sql.NullString
	var maybeForked int
	var mutableRaw, immutableRaw, policyRaw []byte
	if err := rows.Scan(&g.GroupID, &convType, &dmID, &membershipState, &g.CreatedAtNs, &g.LastMessageNs,
		&addedBy, &g.Epoch, &maybeForked, &mutableRaw, &immutableRaw, &policyRaw, &consentState, &g.LastCommitDigest); err != nil {
		return models.Conversation{}, "", err
	}
	g.ConversationType = models.ConversationType(convType)
	g.MembershipState = models.MembershipState(membershipState)
	g.DMID = dmID.String
	g.AddedByInboxID = addedBy.String
	g.MaybeForked = maybeForked != 0
	if err := json.Unmarshal(mutableRaw, &g.Mutable); err != nil {
		return models.Conversation{}, "", err
	}
	if err := json.Unmarshal(immutableRaw, &g.Immutable); err != nil {
		return models.Conversation{}, "", err
	}
	if err := json.Unmarshal(policyRaw, &g.Policy); err != nil {
		return models.Conversation{}, "", err
	}
	return g, consentState, nil
}

// dedupeDMs collapses each set of DM groups sharing a dm_id down to one,
// keeping the listing's existing order.
func dedupeDMs(groups []models.Conversation) []models.Conversation {
	byDMID := make(map[string][]models.Conversation)
	for _, g := range groups {
		if g.ConversationType == models.ConversationTypeDM && g.DMID != "" {
			byDMID[g.DMID] = append(byDMID[g.DMID], g)
		}
	}
	winners := make(map[string]bool, len(byDMID))
	for _, set := range byDMID {
		sort.Slice(set, func(i, j int) bool {
			if set[i].LastMessageNs != set[j].LastMessageNs {
				return set[i].LastMessageNs > set[j].LastMessageNs
			}
			if set[i].CreatedAtNs != set[j].CreatedAtNs {
				return set[i].CreatedAtNs > set[j].CreatedAtNs
			}
			return string(set[i].GroupID) < string(set[j].GroupID)
		})
		winners[string(set[0].GroupID)] = true
	}
	var out []models.Conversation
	for _, g := range groups {
		if g.ConversationType != models.ConversationTypeDM || g.DMID == "" || winners[string(g.GroupID)] {
			out = append(out, g)
		}
	}
	return out
}

// GetGroup fetches a single group by id.
func (s *Store) GetGroup(ctx context.Context, groupID []byte) (models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT group_id, conversation_type, dm_id, membership_state, created_at_ns,
		last_message_ns, added_by_inbox_id, epoch, maybe_forked, mutable_metadata, immutable_metadata, policy_set, consent_state, last_commit_digest
		FROM groups WHERE group_id = ?`, groupID)
	g, _, err := scanGroupRow(row)
	if err == sql.ErrNoRows {
		return models.Conversation{}, xmtperr.New(xmtperr.CategoryStorage, xmtperr.ScopeNone, false, xmtperr.ErrNotFound)
	}
	return g, err
}

func scanGroupRow(row *sql.Row) (models.Conversation, string, error) {
	var g models.Conversation
	var convType, membershipState, consentState string
	var dmID sql.NullString
	var addedBy sql.NullString
	var maybeForked int
	var mutableRaw, immutableRaw, policyRaw []byte
	if err := row.Scan(&g.GroupID, &convType, &dmID, &membershipState, &g.CreatedAtNs, &g.LastMessageNs,
		&addedBy, &g.Epoch, &maybeForked, &mutableRaw, &immutableRaw, &policyRaw, &consentState, &g.LastCommitDigest); err != nil {
		return models.Conversation{}, "", err
	}
	g.ConversationType = models.ConversationType(convType)
	g.MembershipState = models.MembershipState(membershipState)
	g.DMID = dmID.String
	g.AddedByInboxID = addedBy.String
	g.MaybeForked = maybeForked != 0
	_ = json.Unmarshal(mutableRaw, &g.Mutable)
	_ = json.Unmarshal(immutableRaw, &g.Immutable)
	_ = json.Unmarshal(policyRaw, &g.Policy)
	return g, consentState, nil
}

// UpdateGroupEpoch advances the stored epoch/forked flag and last-merged-commit
// digest after a commit merges (or fails to, staying at the prior digest).
func (s *Store) UpdateGroupEpoch(ctx context.Context, groupID []byte, epoch uint64, maybeForked bool, commitDigest string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE groups SET epoch = ?, maybe_forked = ?, last_commit_digest = ? WHERE group_id = ?`,
			epoch, boolToInt(maybeForked), commitDigest, groupID)
		return err
	})
}

// UpdateGroupMutableMetadata persists a metadata/admin-list change.
func (s *Store) UpdateGroupMutableMetadata(ctx context.Context, groupID []byte, mutable models.MutableMetadata) error {
	raw, err := json.Marshal(mutable)
	if err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE groups SET mutable_metadata = ? WHERE group_id = ?`, raw, groupID)
		return err
	})
}

// UpdateLastMessageNs bumps last_message_ns after a new message is stored.
func (s *Store) UpdateLastMessageNs(ctx context.Context, groupID []byte, sentAtNs int64) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE groups SET last_message_ns = MAX(last_message_ns, ?) WHERE group_id = ?`,
			sentAtNs, groupID)
		return err
	})
}

// SetConsentStateForGroup mirrors the group's cached consent column used by
// ListGroups' consent filter (the authoritative record lives in ConsentRecord).
func (s *Store) SetConsentStateForGroup(ctx context.Context, groupID []byte, state models.ConsentState) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE groups SET consent_state = ? WHERE group_id = ?`, string(state), groupID)
		return err
	})
}
