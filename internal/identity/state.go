// Package identity maintains the Association State resolver: for every
// inbox referenced by a group, a cached reconstruction of which
// installations are currently active, rebuilt by replaying that inbox's
// identity-update log. Grounded in the locking and revocation-replay
// discipline of internal/identity/device.go, generalized from a single
// local identity's device set to many remote inboxes' logs.
package identity

import (
	"sort"

	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
)

// AssociationState is one inbox's reconstructed installation set as of a
// specific sequence id.
type AssociationState struct {
	InboxID      string
	SequenceID   uint64
	Installations map[string]bool // installation_id -> active
}

// ActiveInstallationIDs returns the active set, sorted for determinism.
func (a AssociationState) ActiveInstallationIDs() []string {
	out := make([]string, 0, len(a.Installations))
	for id, active := range a.Installations {
		if active {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// replayAssociationState folds an ordered identity-update log into a state.
// Updates past asOfSequenceID are never applied: resolution is always as
// of a sequence_id, never ahead of it.
func replayAssociationState(inboxID string, updates []wireapi.IdentityUpdate, asOfSequenceID uint64) AssociationState {
	state := AssociationState{InboxID: inboxID, Installations: make(map[string]bool)}
	for _, u := range updates {
		if u.SequenceID > asOfSequenceID {
			continue
		}
		if u.AddInstallationID != "" {
			state.Installations[u.AddInstallationID] = true
		}
		if u.RemoveInstallationID != "" {
			state.Installations[u.RemoveInstallationID] = false
		}
		if u.SequenceID > state.SequenceID {
			state.SequenceID = u.SequenceID
		}
	}
	return state
}

// GroupMembership is the group's membership extension: inbox_id -> the
// sequence_id its association state must be resolved as of.
type GroupMembership map[string]uint64
