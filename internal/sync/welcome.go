package sync

import (
	"context"
	"encoding/json"

	"github.com/xmtp/libxmtp-sub002/internal/identity"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

// SyncWelcomes polls for welcomes addressed to installationKey, validates
// each one's initial membership against the Association State resolver
// (rejecting forked welcomes), and stores every valid one as a new
// conversation in Pending state (Allowed for Sync groups).
func (o *Orchestrator) SyncWelcomes(ctx context.Context, installationKey []byte) (int, error) {
	cursor, err := o.store.GetCursor(ctx, welcomeOriginatorID, string(installationKey))
	if err != nil {
		return 0, err
	}

	welcomes, err := o.wire.QueryWelcomes(ctx, installationKey, wireapi.Cursor{OriginatorID: welcomeOriginatorID, SequenceID: cursor.SequenceID})
	if err != nil {
		return 0, xmtperr.New(xmtperr.CategoryWire, xmtperr.ScopeProcess, true, err)
	}

	accepted := 0
	for _, w := range welcomes {
		if err := o.processWelcome(ctx, w); err != nil {
			o.log.Warn("sync_welcomes", "rejected welcome", "err", err)
			continue
		}
		accepted++
		if w.SequenceID > cursor.SequenceID {
			cursor.SequenceID = w.SequenceID
		}
	}
	cursor.OriginatorID = welcomeOriginatorID
	cursor.Topic = string(installationKey)
	if err := o.store.AdvanceCursor(ctx, cursor); err != nil {
		return accepted, err
	}
	return accepted, nil
}

const welcomeOriginatorID = 0

func (o *Orchestrator) processWelcome(ctx context.Context, w wireapi.WelcomeEnvelope) error {
	var payload models.WelcomePayload
	if err := json.Unmarshal(w.EncryptedWelcome, &payload); err != nil {
		return xmtperr.New(xmtperr.CategoryWire, xmtperr.ScopeIntent, false, err)
	}

	// A welcome that carries association-state membership gets the full
	// scenario-S3 fork check; one that doesn't (the sender never resolved
	// it, e.g. a Sync-type welcome to one's own other installations) skips
	// straight to materializing the group.
	if len(payload.GroupMembership) > 0 {
		actual := make(map[string]bool, len(payload.ActualInstallIDs))
		for _, id := range payload.ActualInstallIDs {
			actual[id] = true
		}
		if err := o.resolver.ValidateInitialGroupMembership(ctx, identity.GroupMembership(payload.GroupMembership), actual); err != nil {
			return err
		}
	}

	if _, err := o.provider.JoinGroup(ctx, payload.GroupID, w.EncryptedWelcome); err != nil {
		return err
	}

	membershipState := models.MembershipStatePending
	if payload.ConversationType == models.ConversationTypeSync {
		membershipState = models.MembershipStateAllowed
	}
	return o.store.InsertGroup(ctx, models.Conversation{
		GroupID:          payload.GroupID,
		ConversationType: payload.ConversationType,
		MembershipState:  membershipState,
		CreatedAtNs:      payload.CreatedAtNs,
		AddedByInboxID:   payload.AddedByInboxID,
		Policy:           payload.Policy,
	})
}
