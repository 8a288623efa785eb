package sync

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// GroupSyncSummary reports how many of a global sync sweep's eligible
// groups actually advanced.
type GroupSyncSummary struct {
	NumEligible int
	NumSynced   int
}

// syncGroup collapses concurrent resyncs of the same group into one
// in-flight call; a second caller waits on the first's result rather than
// racing it for the provider's per-group lock.
var syncGroup singleflight.Group

// SyncAllWelcomesAndGroups polls for new welcomes, then syncs every group
// whose consent state matches consentFilter (nil matches every state).
// Per-group syncs run concurrently up to the errgroup's default
// unbounded fan-out, each collapsed through singleflight so a group
// already mid-sync is never re-entered.
func (o *Orchestrator) SyncAllWelcomesAndGroups(ctx context.Context, consentFilter []models.ConsentState) (GroupSyncSummary, error) {
	if _, err := o.SyncWelcomes(ctx, o.installationKey); err != nil {
		return GroupSyncSummary{}, err
	}

	expired, err := o.store.DeleteExpiredMessages(ctx)
	if err != nil {
		return GroupSyncSummary{}, err
	}
	if o.metrics != nil && len(expired) > 0 {
		o.metrics.MessagesExpired.Add(float64(len(expired)))
	}

	groups, err := o.store.ListGroups(ctx, storage.GroupListFilter{
		ConsentStates:       consentFilter,
		IncludeDuplicateDMs: true,
	})
	if err != nil {
		return GroupSyncSummary{}, err
	}

	summary := GroupSyncSummary{NumEligible: len(groups)}
	g, gctx := errgroup.WithContext(ctx)
	synced := make([]bool, len(groups))
	for i, conv := range groups {
		i, conv := i, conv
		g.Go(func() error {
			key := string(conv.GroupID)
			_, err, _ := syncGroup.Do(key, func() (any, error) {
				handle, err := o.provider.LoadGroup(gctx, conv.GroupID)
				if err != nil {
					return nil, err
				}
				return nil, o.SyncConversation(gctx, handle, nil)
			})
			if err != nil {
				o.log.Warn("sync_all", "group sync failed", "group_id", string(conv.GroupID), "err", err)
				return nil
			}
			synced[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	for _, ok := range synced {
		if ok {
			summary.NumSynced++
		}
	}
	return summary, nil
}
