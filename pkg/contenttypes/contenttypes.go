// Package contenttypes is the single source of truth for the built-in
// content-type identifiers, shared by internal/codec (which
// encodes/decodes them) and internal/storage (which needs the
// deletable/non-deletable table to enforce deletion
// invariants without importing the whole codec registry).
package contenttypes

const AuthorityXMTP = "xmtp.org"

// TypeID values for every built-in codec kind.
const (
	TypeText                   = "text"
	TypeMarkdown               = "markdown"
	TypeReply                  = "reply"
	TypeAttachment             = "attachment"
	TypeRemoteAttachment       = "remote_attachment"
	TypeMultiRemoteAttachment  = "multi_remote_attachment"
	TypeTransactionReference   = "transaction_reference"
	TypeWalletSendCalls        = "wallet_send_calls"
	TypeReaction               = "reaction"
	TypeReadReceipt            = "read_receipt"
	TypeGroupUpdated           = "group_updated"
	TypeGroupMembershipChange  = "group_membership_change"
	TypeLeaveRequest           = "leave_request"
	TypeIntent                 = "intent"
	TypeDeleteMessage          = "delete_message"
	TypeUnknown                = "unknown"
)

// Deletable is the table of content kinds: true for ordinary user content,
// false for reactions/receipts/system messages (they are metadata about
// other messages or about the group itself, not content a user authored).
var Deletable = map[string]bool{
	TypeText:                  true,
	TypeMarkdown:              true,
	TypeReply:                 true,
	TypeAttachment:            true,
	TypeRemoteAttachment:      true,
	TypeMultiRemoteAttachment: true,
	TypeTransactionReference:  true,
	TypeWalletSendCalls:       true,
	TypeReaction:              false,
	TypeReadReceipt:           false,
	TypeGroupUpdated:          false,
	TypeGroupMembershipChange: false,
	TypeLeaveRequest:          false,
	TypeIntent:                true,
	TypeDeleteMessage:         false,
	TypeUnknown:               false,
}

// IsDeletable looks up typeID, defaulting unknown types to non-deletable:
// decoding an unrecognized type yields Unknown, which is never deletable.
func IsDeletable(typeID string) bool {
	deletable, ok := Deletable[typeID]
	if !ok {
		return false
	}
	return deletable
}

// UserContentTypes are the kinds the expiration sweep is
// allowed to delete: the deletable user-authored kinds. Intent is marked
// deletable in Deletable but is not included here; non-deletable kinds
// (reactions, receipts, system kinds, DeleteMessage) never are.
func UserContentTypes() []string {
	return []string{
		TypeText, TypeMarkdown, TypeReply, TypeAttachment, TypeRemoteAttachment,
		TypeMultiRemoteAttachment, TypeTransactionReference, TypeWalletSendCalls,
	}
}
