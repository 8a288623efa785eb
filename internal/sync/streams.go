package sync

import (
	"context"
	"time"

	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// StreamFilter narrows a subscription by conversation type and/or consent
// state; a nil field on either means "no filter".
type StreamFilter struct {
	ConversationType *models.ConversationType
	ConsentStates    []models.ConsentState
}

func groupFilterForStream(f StreamFilter) storage.GroupListFilter {
	return storage.GroupListFilter{
		ConversationType:    f.ConversationType,
		ConsentStates:       f.ConsentStates,
		IncludeDuplicateDMs: true,
	}
}

// StreamMessages delivers every newly-synced application message (GroupUpdated
// system messages are stored by the sync but not delivered) across all of the caller's groups matching filter, polling at
// pollInterval until End/EndAndWait is called.
func (o *Orchestrator) StreamMessages(ctx context.Context, filter StreamFilter, pollInterval time.Duration) *Stream[models.StoredMessage] {
	return newStream(ctx, 64, func(ctx context.Context, out chan<- models.StoredMessage) {
		o.pollLoop(ctx, pollInterval, func(ctx context.Context) {
			groups, err := o.eligibleGroups(ctx, filter)
			if err != nil {
				o.log.Warn("stream_messages", "list groups failed", "err", err)
				return
			}
			for _, conv := range groups {
				handle, err := o.provider.LoadGroup(ctx, conv.GroupID)
				if err != nil {
					continue
				}
				if err := o.SyncConversation(ctx, handle, out); err != nil {
					o.log.Warn("stream_messages", "sync failed", "group_id", string(conv.GroupID), "err", err)
				}
			}
		})
	})
}

// StreamConversations delivers each conversation the first time a poll sees
// it, and again whenever its last_message_ns has changed since the last
// poll; a change to membership state or metadata alone is not delivered.
func (o *Orchestrator) StreamConversations(ctx context.Context, conversationType *models.ConversationType, pollInterval time.Duration) *Stream[models.Conversation] {
	seen := make(map[string]int64)
	return newStream(ctx, 64, func(ctx context.Context, out chan<- models.Conversation) {
		o.pollLoop(ctx, pollInterval, func(ctx context.Context) {
			groups, err := o.store.ListGroups(ctx, groupFilterForStream(StreamFilter{ConversationType: conversationType}))
			if err != nil {
				o.log.Warn("stream_conversations", "list groups failed", "err", err)
				return
			}
			for _, conv := range groups {
				key := string(conv.GroupID)
				if last, ok := seen[key]; ok && last == conv.LastMessageNs {
					continue
				}
				seen[key] = conv.LastMessageNs
				select {
				case out <- conv:
				case <-ctx.Done():
					return
				}
			}
		})
	})
}

// StreamConsent delivers every consent record change since the last poll.
func (o *Orchestrator) StreamConsent(ctx context.Context, pollInterval time.Duration) *Stream[models.ConsentRecord] {
	seen := make(map[string]models.ConsentState)
	return newStream(ctx, 32, func(ctx context.Context, out chan<- models.ConsentRecord) {
		o.pollLoop(ctx, pollInterval, func(ctx context.Context) {
			var records []models.ConsentRecord
			for _, et := range []models.ConsentEntityType{models.ConsentEntityConversationID, models.ConsentEntityInboxID} {
				recs, err := o.store.ListConsentRecords(ctx, et)
				if err != nil {
					o.log.Warn("stream_consent", "list failed", "err", err)
					return
				}
				records = append(records, recs...)
			}
			for _, rec := range records {
				key := string(rec.EntityType) + ":" + rec.Entity
				if seen[key] == rec.State {
					continue
				}
				seen[key] = rec.State
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		})
	})
}

// StreamPreferences delivers every rotated HMAC key for groupID since the
// last poll — the device-sync-propagated preference this client cares
// about streaming live.
func (o *Orchestrator) StreamPreferences(ctx context.Context, groupID []byte, pollInterval time.Duration) *Stream[models.HmacKey] {
	var lastDay int64 = -1
	return newStream(ctx, 8, func(ctx context.Context, out chan<- models.HmacKey) {
		o.pollLoop(ctx, pollInterval, func(ctx context.Context) {
			keys, err := o.store.ListHmacKeysForGroup(ctx, groupID)
			if err != nil || len(keys) == 0 {
				return
			}
			latest := keys[0] // ListHmacKeysForGroup orders newest epoch_day first
			if latest.EpochDay == lastDay {
				return
			}
			lastDay = latest.EpochDay
			select {
			case out <- latest:
			case <-ctx.Done():
			}
		})
	})
}

// pollLoop runs tick on every pollInterval tick until ctx is cancelled,
// mirroring internal/waku/node.go's ticker-driven runtime-monitor loop
// generalized from one hardcoded refresh to any polling body.
func (o *Orchestrator) pollLoop(ctx context.Context, pollInterval time.Duration, tick func(ctx context.Context)) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (o *Orchestrator) eligibleGroups(ctx context.Context, filter StreamFilter) ([]models.Conversation, error) {
	return o.store.ListGroups(ctx, groupFilterForStream(filter))
}
