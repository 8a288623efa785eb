// Package ids derives content-addressed message identifiers and
// human-readable base58 display encodings, generalizing an earlier
// "aim1..." identifier convention (internal/identity) to the base58
// alphabet used throughout the rest of the _examples pack.
package ids

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// MessageID computes the content-addressed id over group_id‖payload‖timestamp,
// used by both send_message_optimistic and the StoredMessage.ID invariant.
func MessageID(groupID []byte, payload []byte, sentAtNs int64) string {
	h := sha256.New()
	h.Write(groupID)
	h.Write(payload)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(sentAtNs))
	h.Write(ts[:])
	return base58.Encode(h.Sum(nil))
}

// Display renders raw bytes (group ids, inbox ids, installation keys) as a
// base58 string suitable for logs and debug info views.
func Display(raw []byte) string {
	return base58.Encode(raw)
}

// ParseDisplay reverses Display; returns an error for malformed input.
func ParseDisplay(s string) ([]byte, error) {
	return base58.Decode(s)
}
