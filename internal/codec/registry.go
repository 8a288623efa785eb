package codec

import (
	"encoding/json"

	"github.com/xmtp/libxmtp-sub002/pkg/contenttypes"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// jsonCodec is a generic Codec backed by encoding/json; every built-in
// kind uses one, parameterized on its Go payload type.
type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonCodec[T]) Decode(payload []byte) (any, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type registryKey struct {
	authorityID  string
	typeID       string
	versionMajor uint32
	versionMinor uint32
}

func keyOf(ct models.ContentTypeID) registryKey {
	return registryKey{ct.AuthorityID, ct.TypeID, ct.VersionMajor, ct.VersionMinor}
}

// Registry dispatches Encode/Decode by content-type identifier.
type Registry struct {
	codecs map[registryKey]Codec
}

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[registryKey]Codec)}
}

// Register installs codec for contentType, overwriting any prior
// registration for the same (authority_id, type_id, version) tuple.
func (r *Registry) Register(contentType models.ContentTypeID, c Codec) {
	r.codecs[keyOf(contentType)] = c
}

// Encode looks up the codec for contentType and wraps the result in the
// binary envelope.
func (r *Registry) Encode(contentType models.ContentTypeID, value any) (EncodedContent, error) {
	c, ok := r.codecs[keyOf(contentType)]
	if !ok {
		return EncodedContent{}, errUnregisteredContentType(contentType)
	}
	payload, err := c.Encode(value)
	if err != nil {
		return EncodedContent{}, err
	}
	return EncodedContent{ContentType: contentType, Payload: payload}, nil
}

// Decode dispatches on the envelope's content type, falling back to
// Unknown (not deletable, for safety) when nothing is registered for it.
func (r *Registry) Decode(encoded EncodedContent) (any, models.ContentTypeID, error) {
	c, ok := r.codecs[keyOf(encoded.ContentType)]
	if !ok {
		return nil, unknownContentType, nil
	}
	value, err := c.Decode(encoded.Payload)
	if err != nil {
		return nil, unknownContentType, err
	}
	return value, encoded.ContentType, nil
}

// IsDeletable reports whether contentType's type_id is deletable per
// pkg/contenttypes' table, regardless of whether a codec is registered
// for it.
func (r *Registry) IsDeletable(contentType models.ContentTypeID) bool {
	return contenttypes.IsDeletable(contentType.TypeID)
}

type unregisteredContentTypeError struct{ ct models.ContentTypeID }

func (e unregisteredContentTypeError) Error() string {
	return "codec: no codec registered for " + e.ct.AuthorityID + "/" + e.ct.TypeID
}

func errUnregisteredContentType(ct models.ContentTypeID) error {
	return unregisteredContentTypeError{ct: ct}
}

// NewDefaultRegistry builds the registry with every built-in content
// kind registered at version 1.0.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	register := func(typeID string, c Codec) {
		r.Register(models.ContentTypeID{
			AuthorityID:  contenttypes.AuthorityXMTP,
			TypeID:       typeID,
			VersionMajor: 1,
			VersionMinor: 0,
		}, c)
	}
	register(contenttypes.TypeText, jsonCodec[TextContent]{})
	register(contenttypes.TypeMarkdown, jsonCodec[MarkdownContent]{})
	register(contenttypes.TypeReply, jsonCodec[ReplyContent]{})
	register(contenttypes.TypeAttachment, jsonCodec[AttachmentContent]{})
	register(contenttypes.TypeRemoteAttachment, jsonCodec[RemoteAttachmentContent]{})
	register(contenttypes.TypeMultiRemoteAttachment, jsonCodec[MultiRemoteAttachmentContent]{})
	register(contenttypes.TypeTransactionReference, jsonCodec[TransactionReferenceContent]{})
	register(contenttypes.TypeWalletSendCalls, jsonCodec[WalletSendCallsContent]{})
	register(contenttypes.TypeReaction, jsonCodec[ReactionContent]{})
	register(contenttypes.TypeReadReceipt, jsonCodec[ReadReceiptContent]{})
	register(contenttypes.TypeGroupUpdated, jsonCodec[GroupUpdatedContent]{})
	register(contenttypes.TypeGroupMembershipChange, jsonCodec[GroupMembershipChangeContent]{})
	register(contenttypes.TypeLeaveRequest, jsonCodec[LeaveRequestContent]{})
	register(contenttypes.TypeIntent, jsonCodec[IntentContent]{})
	register(contenttypes.TypeDeleteMessage, jsonCodec[DeleteMessageContent]{})
	return r
}
