// Package codec is the message content-type registry: built-in
// encoders/decoders keyed by (authority_id, type_id, version_major,
// version_minor), framed as a length-prefixed binary envelope. No example
// repo ships a generic content-type registry of this shape, so the
// tagged-variant dispatch is built directly; the length-prefix framing
// itself is stdlib encoding/binary, justified stdlib use (see DESIGN.md).
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/xmtp/libxmtp-sub002/pkg/contenttypes"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// Codec encodes/decodes one content kind's Go value to/from its payload bytes.
type Codec interface {
	Encode(value any) ([]byte, error)
	Decode(payload []byte) (any, error)
}

// EncodedContent is the wire envelope: the structured type identifier plus
// the codec-specific payload bytes.
type EncodedContent struct {
	ContentType models.ContentTypeID
	Payload     []byte
}

// Marshal writes the binary envelope: the authority and type id as
// length-prefixed strings, the major and minor versions as big-endian
// uint32s, then the length-prefixed payload. ContentType.Parameters is not
// written, so Unmarshal always returns it nil.
func (e EncodedContent) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeString(&buf, e.ContentType.AuthorityID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, e.ContentType.TypeID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.ContentType.VersionMajor); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.ContentType.VersionMinor); err != nil {
		return nil, err
	}
	if err := writeBytes(&buf, e.Payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses the envelope written by Marshal.
func Unmarshal(raw []byte) (EncodedContent, error) {
	buf := bytes.NewReader(raw)
	authority, err := readString(buf)
	if err != nil {
		return EncodedContent{}, err
	}
	typeID, err := readString(buf)
	if err != nil {
		return EncodedContent{}, err
	}
	var major, minor uint32
	if err := binary.Read(buf, binary.BigEndian, &major); err != nil {
		return EncodedContent{}, err
	}
	if err := binary.Read(buf, binary.BigEndian, &minor); err != nil {
		return EncodedContent{}, err
	}
	payload, err := readBytes(buf)
	if err != nil {
		return EncodedContent{}, err
	}
	return EncodedContent{
		ContentType: models.ContentTypeID{
			AuthorityID:  authority,
			TypeID:       typeID,
			VersionMajor: major,
			VersionMinor: minor,
		},
		Payload: payload,
	}, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	const maxEnvelopeFieldBytes = 64 << 20
	if n > maxEnvelopeFieldBytes {
		return nil, fmt.Errorf("codec: envelope field too large (%d bytes)", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// unknownContentType is substituted when Decode doesn't recognize a type.
var unknownContentType = models.ContentTypeID{
	AuthorityID: contenttypes.AuthorityXMTP,
	TypeID:      contenttypes.TypeUnknown,
}
