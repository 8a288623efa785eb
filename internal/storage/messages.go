package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/xmtp/libxmtp-sub002/pkg/contenttypes"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

// Clock is overridable for tests; production always uses wall time.
// InsertMessage sets inserted_at_ns from Clock at insert time, ignoring
// the value on the message passed in.
var Clock = func() int64 { return time.Now().UnixNano() }

// ErrMessageIDConflict mirrors message_store.go's conflict-detection
// discipline, generalized from an in-memory map's duplicate key check to a
// SQL unique-constraint violation.
var ErrMessageIDConflict = xmtperr.New(xmtperr.CategoryStorage, xmtperr.ScopeIntent, false, xmtperr.ErrAlreadyExists)

// InsertMessage stores one message row. Fails with a foreign-key violation
// if group_id does not reference an existing group, enforced by SQLite
// itself since PRAGMA foreign_keys=ON.
func (s *Store) InsertMessage(ctx context.Context, m models.StoredMessage) error {
	insertedAt := Clock()
	return s.tx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM group_messages WHERE id = ?`, m.ID).Scan(&exists); err == nil {
			return ErrMessageIDConflict
		} else if err != sql.ErrNoRows {
			return err
		}
		var expire any
		if m.ExpireAtNs != nil {
			expire = *m.ExpireAtNs
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_messages (id, group_id, sender_inbox_id, sender_installation_id, sent_at_ns,
				inserted_at_ns, kind, authority_id, type_id, version_major, version_minor, decrypted_bytes,
				delivery_status, sequence_id, originator_id, reference_id, expire_at_ns, should_push)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.GroupID, m.SenderInboxID, m.SenderInstallationID, m.SentAtNs, insertedAt,
			string(m.Kind), m.ContentType.AuthorityID, m.ContentType.TypeID, m.ContentType.VersionMajor,
			m.ContentType.VersionMinor, m.DecryptedBytes, string(m.DeliveryStatus), m.SequenceID,
			m.OriginatorID, nullableString(m.ReferenceID), expire, boolToInt(m.ShouldPush))
		if sqliteErr, ok := asForeignKeyViolation(err); ok {
			return xmtperr.New(xmtperr.CategoryStorage, xmtperr.ScopeIntent, false, sqliteErr)
		}
		return err
	})
}

// asForeignKeyViolation recognizes SQLite's FK constraint error text; kept
// as a narrow helper rather than a generic error-code table since this is
// the only constraint class storage needs to special-case.
func asForeignKeyViolation(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	return err, containsFKError(err.Error())
}

func containsFKError(msg string) bool {
	return contains(msg, "FOREIGN KEY constraint failed")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// UpdateMessageDeliveryStatus transitions Unpublished -> Published/Failed,
// and records the server-assigned sequence/originator id on confirmation.
func (s *Store) UpdateMessageDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus, sequenceID uint64, originatorID uint32) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE group_messages SET delivery_status = ?, sequence_id = ?, originator_id = ? WHERE id = ?`,
			string(status), sequenceID, originatorID, id)
		return err
	})
}

// MsgQueryArgs is the public contract of the message listing query.
type MsgQueryArgs struct {
	GroupID               []byte
	SentBeforeNs          *int64
	SentAfterNs           *int64
	InsertedBeforeNs      *int64
	InsertedAfterNs       *int64
	Kind                  *models.MessageKind
	ContentTypes          []string // include list; nil = no filter
	ExcludeContentTypes   []string
	ExcludeSenderInboxIDs []string
	DeliveryStatus        *models.DeliveryStatus
	Limit                 int
	SortBy                models.MsgSortBy
	Direction             models.SortDirection
}

// ListMessages lists messages with expired-message exclusion, DM
// GroupUpdated dedup, and sort/filter/pagination all applied.
func (s *Store) ListMessages(ctx context.Context, args MsgQueryArgs) ([]models.StoredMessage, error) {
	now := Clock()
	query := `SELECT id, group_id, sender_inbox_id, sender_installation_id, sent_at_ns, inserted_at_ns, kind,
		authority_id, type_id, version_major, version_minor, decrypted_bytes, delivery_status, sequence_id,
		originator_id, reference_id, expire_at_ns, should_push
		FROM group_messages WHERE group_id = ? AND (expire_at_ns IS NULL OR expire_at_ns > ?)`
	sqlArgs := []any{args.GroupID, now}

	if args.SentBeforeNs != nil {
		query += " AND sent_at_ns < ?"
		sqlArgs = append(sqlArgs, *args.SentBeforeNs)
	}
	if args.SentAfterNs != nil {
		query += " AND sent_at_ns > ?"
		sqlArgs = append(sqlArgs, *args.SentAfterNs)
	}
	if args.InsertedBeforeNs != nil {
		query += " AND inserted_at_ns < ?"
		sqlArgs = append(sqlArgs, *args.InsertedBeforeNs)
	}
	if args.InsertedAfterNs != nil {
		query += " AND inserted_at_ns > ?"
		sqlArgs = append(sqlArgs, *args.InsertedAfterNs)
	}
	if args.Kind != nil {
		query += " AND kind = ?"
		sqlArgs = append(sqlArgs, string(*args.Kind))
	}
	if args.DeliveryStatus != nil {
		query += " AND delivery_status = ?"
		sqlArgs = append(sqlArgs, string(*args.DeliveryStatus))
	}
	if len(args.ContentTypes) > 0 {
		query += " AND type_id IN (" + placeholders(len(args.ContentTypes)) + ")"
		for _, ct := range args.ContentTypes {
			sqlArgs = append(sqlArgs, ct)
		}
	} else if len(args.ExcludeContentTypes) > 0 {
		query += " AND type_id NOT IN (" + placeholders(len(args.ExcludeContentTypes)) + ")"
		for _, ct := range args.ExcludeContentTypes {
			sqlArgs = append(sqlArgs, ct)
		}
	}
	for _, sender := range args.ExcludeSenderInboxIDs {
		query += " AND sender_inbox_id != ?"
		sqlArgs = append(sqlArgs, sender)
	}

	sortCol := "sent_at_ns"
	if args.SortBy == models.MsgSortByInsertedAt {
		sortCol = "inserted_at_ns"
	}
	dir := "ASC"
	if args.Direction == models.SortDescending {
		dir = "DESC"
	}
	query += " ORDER BY " + sortCol + " " + dir + ", id " + dir

	rows, err := s.db.QueryContext(ctx, query, sqlArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StoredMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dedupeExplicit := len(args.ContentTypes) > 0
	conv, gerr := s.GetGroup(ctx, args.GroupID)
	if gerr == nil && conv.ConversationType == models.ConversationTypeDM && !dedupeExplicit {
		out = dedupeGroupUpdated(out)
	}

	if args.Limit > 0 && len(out) > args.Limit {
		out = out[:args.Limit]
	}
	return out, nil
}

// dedupeGroupUpdated keeps only the first GroupUpdated message in the
// listing's sort order (the oldest under the default ascending sort) per DM
// conversation when no explicit content-type filter asked for it.
func dedupeGroupUpdated(in []models.StoredMessage) []models.StoredMessage {
	var out []models.StoredMessage
	seenGroupUpdated := false
	for _, m := range in {
		if m.ContentType.TypeID == contenttypes.TypeGroupUpdated {
			if seenGroupUpdated {
				continue
			}
			seenGroupUpdated = true
		}
		out = append(out, m)
	}
	return out
}

func scanMessage(rows *sql.Rows) (models.StoredMessage, error) {
	var m models.StoredMessage
	var kind, deliveryStatus string
	var refID sql.NullString
	var expireAt sql.NullInt64
	var shouldPush int
	if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderInboxID, &m.SenderInstallationID, &m.SentAtNs, &m.InsertedAtNs,
		&kind, &m.ContentType.AuthorityID, &m.ContentType.TypeID, &m.ContentType.VersionMajor, &m.ContentType.VersionMinor,
		&m.DecryptedBytes, &deliveryStatus, &m.SequenceID, &m.OriginatorID, &refID, &expireAt, &shouldPush); err != nil {
		return models.StoredMessage{}, err
	}
	m.Kind = models.MessageKind(kind)
	m.DeliveryStatus = models.DeliveryStatus(deliveryStatus)
	m.ReferenceID = refID.String
	if expireAt.Valid {
		v := expireAt.Int64
		m.ExpireAtNs = &v
	}
	m.ShouldPush = shouldPush != 0
	m.AuthorityID = m.ContentType.AuthorityID
	m.VersionMajor = m.ContentType.VersionMajor
	m.VersionMinor = m.ContentType.VersionMinor
	return m, nil
}

// CountMessages mirrors ListMessages' filters without LIMIT.
func (s *Store) CountMessages(ctx context.Context, args MsgQueryArgs) (int, error) {
	args.Limit = 0
	msgs, err := s.ListMessages(ctx, args)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// LatestPerSender returns sender_inbox_id -> max(sent_at_ns) for a group (or,
// for DM groups, every group sharing its dm_id), restricted to contentTypes.
func (s *Store) LatestPerSender(ctx context.Context, groupID []byte, contentTypes []string) (map[string]int64, error) {
	groupIDs := [][]byte{groupID}
	conv, err := s.GetGroup(ctx, groupID)
	if err == nil && conv.ConversationType == models.ConversationTypeDM && conv.DMID != "" {
		siblings, err := s.ListGroups(ctx, GroupListFilter{IncludeDuplicateDMs: true})
		if err == nil {
			groupIDs = groupIDs[:0]
			for _, g := range siblings {
				if g.DMID == conv.DMID {
					groupIDs = append(groupIDs, g.GroupID)
				}
			}
		}
	}

	query := `SELECT sender_inbox_id, MAX(sent_at_ns) FROM group_messages WHERE group_id IN (` + placeholders(len(groupIDs)) + `)`
	args := make([]any, 0, len(groupIDs)+len(contentTypes))
	for _, g := range groupIDs {
		args = append(args, g)
	}
	if len(contentTypes) > 0 {
		query += " AND type_id IN (" + placeholders(len(contentTypes)) + ")"
		for _, ct := range contentTypes {
			args = append(args, ct)
		}
	}
	query += " GROUP BY sender_inbox_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var sender string
		var maxSent int64
		if err := rows.Scan(&sender, &maxSent); err != nil {
			return nil, err
		}
		out[sender] = maxSent
	}
	return out, rows.Err()
}

// RelationQuery bounds an inbound-relation lookup.
type RelationQuery struct {
	ContentTypes []string
	Limit        int // per-parent limit, 0 = unlimited
}

// InboundRelations returns, for each id in parentIDs, the ordered list of
// messages whose reference_id equals that parent. Only
// parents with at least one match appear in the result map.
func (s *Store) InboundRelations(ctx context.Context, groupID []byte, parentIDs []string, q RelationQuery) (map[string][]models.StoredMessage, error) {
	if len(parentIDs) == 0 {
		return map[string][]models.StoredMessage{}, nil
	}
	query := `SELECT id, group_id, sender_inbox_id, sender_installation_id, sent_at_ns, inserted_at_ns, kind,
		authority_id, type_id, version_major, version_minor, decrypted_bytes, delivery_status, sequence_id,
		originator_id, reference_id, expire_at_ns, should_push
		FROM group_messages WHERE group_id = ? AND reference_id IN (` + placeholders(len(parentIDs)) + `)`
	args := []any{groupID}
	for _, id := range parentIDs {
		args = append(args, id)
	}
	if len(q.ContentTypes) > 0 {
		query += " AND type_id IN (" + placeholders(len(q.ContentTypes)) + ")"
		for _, ct := range q.ContentTypes {
			args = append(args, ct)
		}
	}
	query += " ORDER BY sent_at_ns ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]models.StoredMessage)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		if q.Limit > 0 && len(out[m.ReferenceID]) >= q.Limit {
			continue
		}
		out[m.ReferenceID] = append(out[m.ReferenceID], m)
	}
	return out, rows.Err()
}

// InboundRelationCounts is InboundRelations without materializing rows.
func (s *Store) InboundRelationCounts(ctx context.Context, groupID []byte, parentIDs []string, q RelationQuery) (map[string]int, error) {
	relations, err := s.InboundRelations(ctx, groupID, parentIDs, RelationQuery{ContentTypes: q.ContentTypes})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(relations))
	for parent, msgs := range relations {
		out[parent] = len(msgs)
	}
	return out, nil
}

// OutboundRelations returns, for each reference id in refIDs that exists, the
// target message.
func (s *Store) OutboundRelations(ctx context.Context, groupID []byte, refIDs []string) (map[string]models.StoredMessage, error) {
	if len(refIDs) == 0 {
		return map[string]models.StoredMessage{}, nil
	}
	query := `SELECT id, group_id, sender_inbox_id, sender_installation_id, sent_at_ns, inserted_at_ns, kind,
		authority_id, type_id, version_major, version_minor, decrypted_bytes, delivery_status, sequence_id,
		originator_id, reference_id, expire_at_ns, should_push
		FROM group_messages WHERE group_id = ? AND id IN (` + placeholders(len(refIDs)) + `)`
	args := []any{groupID}
	for _, id := range refIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]models.StoredMessage)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

// DeleteExpiredMessages implements the expiration sweep: restricted to
// user content types, never reactions/receipts/system rows.
func (s *Store) DeleteExpiredMessages(ctx context.Context) ([]models.StoredMessage, error) {
	now := Clock()
	userTypes := contenttypes.UserContentTypes()
	query := `SELECT id, group_id, sender_inbox_id, sender_installation_id, sent_at_ns, inserted_at_ns, kind,
		authority_id, type_id, version_major, version_minor, decrypted_bytes, delivery_status, sequence_id,
		originator_id, reference_id, expire_at_ns, should_push
		FROM group_messages WHERE expire_at_ns IS NOT NULL AND expire_at_ns <= ? AND type_id IN (` + placeholders(len(userTypes)) + `)`
	args := []any{now}
	for _, t := range userTypes {
		args = append(args, t)
	}

	var deleted []models.StoredMessage
	err := s.tx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		ids := make([]string, 0)
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return err
			}
			deleted = append(deleted, m)
			ids = append(ids, m.ID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM group_messages WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

// DeleteMessageByID removes exactly one row if it is deletable; idempotent,
// returns false for absent or non-deletable ids.
func (s *Store) DeleteMessageByID(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var typeID string
		err := tx.QueryRowContext(ctx, `SELECT type_id FROM group_messages WHERE id = ?`, id).Scan(&typeID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if !contenttypes.IsDeletable(typeID) {
			return nil
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM group_messages WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}
