package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/pkg/ids"
)

// DebugInfo is a snapshot of one group's sync state, grounded the same way
// internal/waku/node.go's Status() snapshots a running node's state under
// its lock rather than exposing the live struct.
type DebugInfo struct {
	GroupID           string
	Epoch             uint64
	MaybeForked       bool
	ForkDetails       string
	LocalCommitDigest string
	Cursor            uint64
}

// DebugInfo loads groupID's current epoch/fork state plus its conversation
// cursor. LocalCommitDigest is the hash of the last commit this client
// actually merged — an app-layer caller comparing it against another
// installation's digest for the same epoch (exchanged out of band) is how a
// fork not yet flagged by a stale-commit merge gets surfaced.
func (o *Orchestrator) DebugInfo(ctx context.Context, groupID []byte) (DebugInfo, error) {
	conv, err := o.store.GetGroup(ctx, groupID)
	if err != nil {
		return DebugInfo{}, err
	}
	cursor, err := o.store.GetCursor(ctx, conversationOriginatorID, string(groupID))
	if err != nil {
		return DebugInfo{}, err
	}

	info := DebugInfo{
		GroupID:           ids.Display(groupID),
		Epoch:             conv.Epoch,
		MaybeForked:       conv.MaybeForked,
		LocalCommitDigest: conv.LastCommitDigest,
		Cursor:            cursor.SequenceID,
	}
	if info.MaybeForked {
		info.ForkDetails = "inbound commit rejected as stale: local epoch had already advanced past the sender's view"
	}
	return info, nil
}

// commitDigest hashes a staged or merged commit's serialized bytes, for
// comparing two installations' views of the same epoch without shipping
// the whole commit payload.
func commitDigest(staged mlsprovider.StagedCommit) string {
	sum := sha256.Sum256(staged.SerializedCommit)
	return hex.EncodeToString(sum[:])
}
