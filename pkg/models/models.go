// Package models holds the data shapes shared across the conversation
// state machine: inboxes, installations, groups, stored messages,
// intents, consent records, cursors and HMAC keys.
package models

import "time"

// Inbox is a logical identity owning one or more installations.
type Inbox struct {
	ID                 string    `json:"id"`
	RecoveryIdentifier string    `json:"recovery_identifier"`
	SequenceID         uint64    `json:"sequence_id"`
	CreatedAt          time.Time `json:"created_at"`
}

// Installation is a device/keypair attached to exactly one inbox.
type Installation struct {
	ID                string     `json:"id"`
	InboxID           string     `json:"inbox_id"`
	SigningPublicKey  []byte     `json:"signing_public_key"`
	ClientTimestampNs int64      `json:"client_timestamp_ns"`
	KeyPackage        KeyPackage `json:"key_package"`
}

// KeyPackage is pre-published MLS encryption material with a validity window.
type KeyPackage struct {
	InstallationID string `json:"installation_id"`
	Payload        []byte `json:"payload"`
	NotBeforeNs    int64  `json:"not_before_ns"`
	NotAfterNs     int64  `json:"not_after_ns"`
}

// ValidAt reports whether now falls inside [NotBeforeNs, NotAfterNs].
func (k KeyPackage) ValidAt(nowNs int64) bool {
	return nowNs >= k.NotBeforeNs && nowNs <= k.NotAfterNs
}

// ConversationType distinguishes the four MLS group flavors this system manages.
type ConversationType string

const (
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeDM      ConversationType = "dm"
	ConversationTypeSync    ConversationType = "sync"
	ConversationTypeOneshot ConversationType = "oneshot"
)

// MembershipState tracks a conversation's local acceptance state.
type MembershipState string

const (
	MembershipStateAllowed       MembershipState = "allowed"
	MembershipStateRejected      MembershipState = "rejected"
	MembershipStatePending       MembershipState = "pending"
	MembershipStateRestored      MembershipState = "restored"
	MembershipStatePendingRemove MembershipState = "pending_remove"
)

// MemberRole is derived, never stored directly: SuperAdmin > Admin > Member.
type MemberRole int

const (
	MemberRoleMember MemberRole = iota
	MemberRoleAdmin
	MemberRoleSuperAdmin
)

func (r MemberRole) String() string {
	switch r {
	case MemberRoleSuperAdmin:
		return "super_admin"
	case MemberRoleAdmin:
		return "admin"
	default:
		return "member"
	}
}

// GroupMetadataOptions is the payload of group-creation and metadata-update
// intents, named explicitly after xmtp_mls's GroupMetadataOptions.
type GroupMetadataOptions struct {
	Name            string `json:"name,omitempty"`
	ImageURLSquare  string `json:"image_url_square,omitempty"`
	Description     string `json:"description,omitempty"`
	PinnedFrameURL  string `json:"pinned_frame_url,omitempty"`
}

// MutableMetadata is the portion of group state that can change after
// creation, mirrored from the MLS group's extensions into the relational
// store for query.
type MutableMetadata struct {
	GroupMetadataOptions
	AppData                map[string]string `json:"app_data,omitempty"`
	AdminInboxIDs           []string          `json:"admin_inbox_ids"`
	SuperAdminInboxIDs      []string          `json:"super_admin_inbox_ids"`
	MessageDisappearFromNs  *int64            `json:"message_disappear_from_ns,omitempty"`
	MessageDisappearInNs    *int64            `json:"message_disappear_in_ns,omitempty"`
}

// ImmutableMetadata never changes after creation.
type ImmutableMetadata struct {
	CreatorInboxID   string           `json:"creator_inbox_id"`
	ConversationType ConversationType `json:"conversation_type"`
}

// Conversation is an MLS group plus the bookkeeping this system layers on it.
type Conversation struct {
	GroupID          []byte           `json:"group_id"`
	ConversationType ConversationType `json:"conversation_type"`
	DMID             string           `json:"dm_id,omitempty"`
	MembershipState  MembershipState  `json:"membership_state"`
	CreatedAtNs      int64            `json:"created_at_ns"`
	LastMessageNs    int64            `json:"last_message_ns"`
	AddedByInboxID   string           `json:"added_by_inbox_id"`
	Epoch            uint64           `json:"epoch"`
	MaybeForked      bool             `json:"maybe_forked"`
	Mutable          MutableMetadata  `json:"mutable_metadata"`
	Immutable        ImmutableMetadata `json:"immutable_metadata"`
	Policy           PolicySet        `json:"policy_set"`
	LastCommitDigest string           `json:"last_commit_digest,omitempty"`
}

// MessageKind distinguishes application content from system bookkeeping.
type MessageKind string

const (
	MessageKindApplication      MessageKind = "application"
	MessageKindMembershipChange MessageKind = "membership_change"
)

// DeliveryStatus tracks a stored message's publish progress.
type DeliveryStatus string

const (
	DeliveryStatusUnpublished DeliveryStatus = "unpublished"
	DeliveryStatusPublished   DeliveryStatus = "published"
	DeliveryStatusFailed      DeliveryStatus = "failed"
)

// ContentTypeID is the structured content-type identifier carried on the wire.
type ContentTypeID struct {
	AuthorityID  string            `json:"authority_id"`
	TypeID       string            `json:"type_id"`
	VersionMajor uint32            `json:"version_major"`
	VersionMinor uint32            `json:"version_minor"`
	Parameters   map[string]string `json:"parameters,omitempty"`
}

// StoredMessage is a single row of the encrypted message store.
type StoredMessage struct {
	ID                    string         `json:"id"`
	GroupID               []byte         `json:"group_id"`
	SenderInboxID         string         `json:"sender_inbox_id"`
	SenderInstallationID  string         `json:"sender_installation_id"`
	SentAtNs              int64          `json:"sent_at_ns"`
	InsertedAtNs          int64          `json:"inserted_at_ns"`
	Kind                  MessageKind    `json:"kind"`
	ContentType           ContentTypeID  `json:"content_type"`
	DecryptedBytes        []byte         `json:"decrypted_bytes"`
	DeliveryStatus        DeliveryStatus `json:"delivery_status"`
	SequenceID            uint64         `json:"sequence_id"`
	OriginatorID          uint32         `json:"originator_id"`
	ReferenceID           string         `json:"reference_id,omitempty"`
	ExpireAtNs            *int64         `json:"expire_at_ns,omitempty"`
	AuthorityID           string         `json:"authority_id"`
	VersionMajor          uint32         `json:"version_major"`
	VersionMinor          uint32         `json:"version_minor"`
	ShouldPush            bool           `json:"should_push"`
}

// IntentKind enumerates every local action the intent pipeline can stage.
type IntentKind string

const (
	IntentKindSendMessage               IntentKind = "send_message"
	IntentKindAddMembers                IntentKind = "add_members"
	IntentKindRemoveMembers             IntentKind = "remove_members"
	IntentKindUpdateGroupMembership     IntentKind = "update_group_membership"
	IntentKindKeyUpdate                 IntentKind = "key_update"
	IntentKindMetadataUpdate            IntentKind = "metadata_update"
	IntentKindAdminListUpdate           IntentKind = "admin_list_update"
	IntentKindPermissionUpdate          IntentKind = "permission_update"
	IntentKindCommitPendingProposals    IntentKind = "commit_pending_proposals"
	IntentKindReaddInstallations        IntentKind = "readd_installations"
	IntentKindSendSyncArchive           IntentKind = "send_sync_archive"
	IntentKindProcessWelcomePointer     IntentKind = "process_welcome_pointer"
	IntentKindProposeMemberUpdate       IntentKind = "propose_member_update"
	IntentKindProposeGroupContextExtension IntentKind = "propose_group_context_extension"
)

// IntentState is the four-state machine an outbound intent moves through.
type IntentState string

const (
	IntentStateToPublish IntentState = "to_publish"
	IntentStatePublished IntentState = "published"
	IntentStateCommitted IntentState = "committed"
	IntentStateError     IntentState = "error"
)

// UpdateAdminListType enumerates the four admin-list mutation operations,
// named after xmtp_mls's UpdateAdminListType.
type UpdateAdminListType string

const (
	UpdateAdminListAdd        UpdateAdminListType = "add"
	UpdateAdminListRemove     UpdateAdminListType = "remove"
	UpdateAdminListAddSuper   UpdateAdminListType = "add_super"
	UpdateAdminListRemoveSuper UpdateAdminListType = "remove_super"
)

// Intent is a queued local action waiting to be realized on the wire.
type Intent struct {
	ID                string      `json:"id"`
	GroupID           []byte      `json:"group_id"`
	Kind              IntentKind  `json:"kind"`
	Data              []byte      `json:"data"`
	State             IntentState `json:"state"`
	PublishedInEpoch  *uint64     `json:"published_in_epoch,omitempty"`
	PostCommitData    []byte      `json:"post_commit_data,omitempty"`
	PublishAttempts   int         `json:"publish_attempts"`
	EpochConflictCount int        `json:"epoch_conflict_count"`
	ErrorReason       string      `json:"error_reason,omitempty"`
	CreatedAtNs       int64       `json:"created_at_ns"`
}

// ConsentEntityType distinguishes the two kinds of entity consent applies to.
type ConsentEntityType string

const (
	ConsentEntityConversationID ConsentEntityType = "conversation_id"
	ConsentEntityInboxID        ConsentEntityType = "inbox_id"
)

// ConsentState is the tri-state allow/deny/unknown value of a consent record.
type ConsentState string

const (
	ConsentStateUnknown ConsentState = "unknown"
	ConsentStateAllowed ConsentState = "allowed"
	ConsentStateDenied  ConsentState = "denied"
)

// ConsentRecord is primary-keyed by (EntityType, Entity).
type ConsentRecord struct {
	EntityType    ConsentEntityType `json:"entity_type"`
	Entity        string            `json:"entity"`
	State         ConsentState      `json:"state"`
	ConsentedAtNs int64             `json:"consented_at_ns"`
}

// Cursor is a per-(OriginatorID, Topic) high-water mark for idempotent
// envelope processing.
type Cursor struct {
	OriginatorID uint32 `json:"originator_id"`
	Topic        string `json:"topic"`
	SequenceID   uint64 `json:"sequence_id"`
}

// HmacKey is a per-group, per-epoch push-notification dedup key.
type HmacKey struct {
	GroupID   []byte `json:"group_id"`
	EpochDay  int64  `json:"epoch_day"`
	Key       []byte `json:"key"`
}

// MsgSortBy selects the timestamp field message listing sorts on.
type MsgSortBy string

const (
	MsgSortBySentAt     MsgSortBy = "sent_at"
	MsgSortByInsertedAt MsgSortBy = "inserted_at"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAscending  SortDirection = "ascending"
	SortDescending SortDirection = "descending"
)

// GroupOrderBy selects the field group listing sorts on.
type GroupOrderBy string

const (
	GroupOrderByCreatedAt    GroupOrderBy = "created_at"
	GroupOrderByLastActivity GroupOrderBy = "last_activity"
)
