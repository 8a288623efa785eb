package codec

import (
	"reflect"
	"testing"

	"github.com/xmtp/libxmtp-sub002/pkg/contenttypes"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

func textContentType() models.ContentTypeID {
	return models.ContentTypeID{
		AuthorityID:  contenttypes.AuthorityXMTP,
		TypeID:       contenttypes.TypeText,
		VersionMajor: 1,
		VersionMinor: 0,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := NewDefaultRegistry()
	ct := textContentType()
	encoded, err := r.Encode(ct, TextContent{Text: "hello"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	value, gotCT, err := r.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(gotCT, ct) {
		t.Fatalf("content type mismatch: got %+v want %+v", gotCT, ct)
	}
	text, ok := value.(TextContent)
	if !ok || text.Text != "hello" {
		t.Fatalf("unexpected decoded value: %#v", value)
	}
}

func TestEnvelopeMarshalUnmarshalRoundTrip(t *testing.T) {
	r := NewDefaultRegistry()
	encoded, err := r.Encode(textContentType(), TextContent{Text: "wire round trip"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := encoded.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(parsed.ContentType, encoded.ContentType) {
		t.Fatalf("content type mismatch after wire round trip")
	}
	value, _, err := r.Decode(parsed)
	if err != nil {
		t.Fatalf("decode after wire round trip: %v", err)
	}
	if value.(TextContent).Text != "wire round trip" {
		t.Fatalf("payload mismatch after wire round trip: %#v", value)
	}
}

func TestDecodeUnknownContentTypeFallsBackSafely(t *testing.T) {
	r := NewDefaultRegistry()
	unknown := models.ContentTypeID{AuthorityID: "example.com", TypeID: "not_a_real_kind", VersionMajor: 9}
	value, gotCT, err := r.Decode(EncodedContent{ContentType: unknown, Payload: []byte("irrelevant")})
	if err != nil {
		t.Fatalf("unexpected error decoding unknown type: %v", err)
	}
	if value != nil {
		t.Fatalf("expected nil value for unknown content type, got %#v", value)
	}
	if gotCT.TypeID != contenttypes.TypeUnknown {
		t.Fatalf("expected Unknown type id, got %q", gotCT.TypeID)
	}
	if r.IsDeletable(gotCT) {
		t.Fatalf("Unknown must never be deletable")
	}
}

func TestReactionAndReceiptAreNotDeletable(t *testing.T) {
	r := NewDefaultRegistry()
	reaction := models.ContentTypeID{AuthorityID: contenttypes.AuthorityXMTP, TypeID: contenttypes.TypeReaction, VersionMajor: 1}
	receipt := models.ContentTypeID{AuthorityID: contenttypes.AuthorityXMTP, TypeID: contenttypes.TypeReadReceipt, VersionMajor: 1}
	if r.IsDeletable(reaction) || r.IsDeletable(receipt) {
		t.Fatalf("reactions and read receipts must not be deletable")
	}
}

func TestTextAndAttachmentAreDeletable(t *testing.T) {
	r := NewDefaultRegistry()
	text := models.ContentTypeID{AuthorityID: contenttypes.AuthorityXMTP, TypeID: contenttypes.TypeText, VersionMajor: 1}
	attachment := models.ContentTypeID{AuthorityID: contenttypes.AuthorityXMTP, TypeID: contenttypes.TypeAttachment, VersionMajor: 1}
	if !r.IsDeletable(text) || !r.IsDeletable(attachment) {
		t.Fatalf("ordinary user content must be deletable")
	}
}
