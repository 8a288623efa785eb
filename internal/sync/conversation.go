package sync

import (
	"context"

	"github.com/xmtp/libxmtp-sub002/internal/codec"
	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
	"github.com/xmtp/libxmtp-sub002/pkg/ids"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// SyncConversation fetches every envelope newer than groupID's stored
// cursor, applies each in arrival order, and advances the cursor. Commits
// merge through the provider; application messages decode and persist.
// Emitted values land on out (nil is fine for a one-shot sync with no
// live subscriber).
func (o *Orchestrator) SyncConversation(ctx context.Context, handle *mlsprovider.GroupHandle, out chan<- models.StoredMessage) error {
	topic := string(handle.GroupID)
	cursor, err := o.store.GetCursor(ctx, conversationOriginatorID, topic)
	if err != nil {
		return err
	}

	envelopes, err := o.wire.QueryMessages(ctx, handle.GroupID, wireapi.Cursor{OriginatorID: conversationOriginatorID, SequenceID: cursor.SequenceID})
	if err != nil {
		return err
	}
	if o.metrics != nil && len(envelopes) > 0 {
		o.metrics.CursorLag.WithLabelValues(topic).Set(float64(envelopes[len(envelopes)-1].SequenceID - cursor.SequenceID))
	}

	for _, env := range envelopes {
		if err := o.applyEnvelope(ctx, handle, env, out); err != nil {
			return err
		}
		if env.SequenceID > cursor.SequenceID {
			cursor.SequenceID = env.SequenceID
		}
	}
	cursor.OriginatorID = conversationOriginatorID
	cursor.Topic = topic
	if err := o.store.AdvanceCursor(ctx, cursor); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.CursorLag.WithLabelValues(topic).Set(0)
	}
	return nil
}

const conversationOriginatorID = 1

func (o *Orchestrator) applyEnvelope(ctx context.Context, handle *mlsprovider.GroupHandle, env wireapi.Envelope, out chan<- models.StoredMessage) error {
	processed, err := o.provider.ProcessMessage(ctx, handle, env.Payload)
	if err != nil {
		return err
	}

	switch processed.Kind {
	case mlsprovider.ProcessedKindCommit:
		return o.applyCommit(ctx, handle, env, processed)
	default:
		return o.applyApplicationMessage(ctx, handle, env, processed, out)
	}
}

// applyCommit merges an inbound commit. A commit matching one of this
// installation's own Published intents is recognized as a self-published
// commit landing back on its own timeline and is confirmed through
// intent.Pipeline.ConfirmIntent instead of merged independently, so the
// intent actually reaches Committed rather than staying Published forever.
// A stale-epoch merge (someone else's commit already advanced this group
// past what the sender built against) marks the group maybe_forked rather
// than failing the whole sync — a genuine fork is something a caller
// inspects via the debug info view, not something conversation sync can
// resolve unilaterally.
func (o *Orchestrator) applyCommit(ctx context.Context, handle *mlsprovider.GroupHandle, env wireapi.Envelope, processed mlsprovider.ProcessedMessage) error {
	matched, found, err := o.pipeline.MatchPublishedIntent(ctx, handle.GroupID, processed.Commit)
	if err != nil {
		return err
	}

	var merged bool
	if found {
		beforeEpoch := o.provider.Epoch(handle)
		if _, err := o.pipeline.ConfirmIntent(ctx, handle, matched.ID, nil); err != nil {
			return err
		}
		merged = o.provider.Epoch(handle) != beforeEpoch
	} else {
		mergeErr := o.provider.MergeCommit(ctx, handle, processed.Commit)
		if mergeErr != nil {
			if mergeErr != mlsprovider.ErrStaleCommit {
				return mergeErr
			}
		} else {
			merged = true
		}
	}

	if !merged {
		// The rejected commit was never applied locally, so the stored
		// digest must stay whatever the last successful merge left it at.
		conv, err := o.store.GetGroup(ctx, handle.GroupID)
		if err != nil {
			return err
		}
		return o.store.UpdateGroupEpoch(ctx, handle.GroupID, o.provider.Epoch(handle), true, conv.LastCommitDigest)
	}

	digest := commitDigest(processed.Commit)
	if err := o.store.UpdateGroupEpoch(ctx, handle.GroupID, o.provider.Epoch(handle), false, digest); err != nil {
		return err
	}

	contentType := models.ContentTypeID{AuthorityID: "xmtp.org", TypeID: "group_updated", VersionMajor: 1}
	encoded, err := o.registry.Encode(contentType, codec.GroupUpdatedContent{
		InitiatedByInboxID: processed.SenderInboxID,
	})
	if err != nil {
		return err
	}
	payload, err := encoded.Marshal()
	if err != nil {
		return err
	}
	return o.store.InsertMessage(ctx, models.StoredMessage{
		ID:            ids.MessageID(handle.GroupID, payload, env.CreatedNs),
		GroupID:       handle.GroupID,
		SenderInboxID: processed.SenderInboxID,
		SentAtNs:      env.CreatedNs,
		InsertedAtNs:  env.CreatedNs,
		Kind:          models.MessageKindMembershipChange,
		ContentType:   contentType,
		DecryptedBytes: payload,
		DeliveryStatus: models.DeliveryStatusPublished,
		SequenceID:     env.SequenceID,
		OriginatorID:   env.OriginatorID,
		AuthorityID:    contentType.AuthorityID,
		VersionMajor:   contentType.VersionMajor,
	})
}

func (o *Orchestrator) applyApplicationMessage(ctx context.Context, handle *mlsprovider.GroupHandle, env wireapi.Envelope, processed mlsprovider.ProcessedMessage, out chan<- models.StoredMessage) error {
	encoded, err := codec.Unmarshal(processed.ApplicationPayload)
	if err != nil {
		return err
	}

	msg := models.StoredMessage{
		ID:                   ids.MessageID(handle.GroupID, processed.ApplicationPayload, env.CreatedNs),
		GroupID:              handle.GroupID,
		SenderInboxID:        processed.SenderInboxID,
		SenderInstallationID: processed.SenderInstallation,
		SentAtNs:             env.CreatedNs,
		InsertedAtNs:         env.CreatedNs,
		Kind:                 models.MessageKindApplication,
		ContentType:          encoded.ContentType,
		DecryptedBytes:       encoded.Payload,
		DeliveryStatus:       models.DeliveryStatusPublished,
		SequenceID:           env.SequenceID,
		OriginatorID:         env.OriginatorID,
		AuthorityID:          encoded.ContentType.AuthorityID,
		VersionMajor:         encoded.ContentType.VersionMajor,
		VersionMinor:         encoded.ContentType.VersionMinor,
	}
	if err := o.store.InsertMessage(ctx, msg); err != nil {
		return err
	}
	if out != nil {
		select {
		case out <- msg:
		case <-ctx.Done():
		}
	}
	return nil
}
