package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// PostCommitAction runs after a commit-kind intent transitions to
// Committed, e.g. sending welcomes is handled by PublishIntent already;
// callers hook additional side effects (announcing in a device-sync group,
// refreshing cached membership) here.
type PostCommitAction func(ctx context.Context, in models.Intent) error

// ConfirmIntent merges a Published commit-kind intent's staged commit when
// an inbound envelope at the matching epoch has arrived, transitioning the
// intent to Committed. A stale-epoch commit is handed to reconcile
// instead of surfacing as a hard failure.
func (p *Pipeline) ConfirmIntent(ctx context.Context, handle *mlsprovider.GroupHandle, id string, postCommit PostCommitAction) (models.Intent, error) {
	lock := p.groupLock(handle.GroupID)
	lock.Lock()
	defer lock.Unlock()

	in, err := p.store.GetIntent(ctx, id)
	if err != nil {
		return models.Intent{}, err
	}
	if in.State != models.IntentStatePublished {
		return in, nil
	}
	if classifyKind(in.Kind) == kindClassMessage {
		in.State = models.IntentStateCommitted
		if err := p.store.UpdateIntent(ctx, in); err != nil {
			return models.Intent{}, err
		}
		if p.metrics != nil {
			p.metrics.IntentsCommitted.Inc()
		}
		return in, nil
	}

	var staged stagedPayload
	if err := json.Unmarshal(in.Data, &staged); err != nil {
		return models.Intent{}, err
	}

	mergeErr := p.provider.MergeCommit(ctx, handle, mlsprovider.StagedCommit{
		GroupID:          handle.GroupID,
		FromEpoch:        staged.FromEpoch,
		ToEpoch:          staged.ToEpoch,
		SerializedCommit: staged.SerializedCommit,
		Proposals:        staged.Proposals,
	})
	if mergeErr != nil {
		if errors.Is(mergeErr, mlsprovider.ErrStaleCommit) {
			return p.reconcile(ctx, handle, in)
		}
		return models.Intent{}, mergeErr
	}

	in.State = models.IntentStateCommitted
	if err := p.store.UpdateIntent(ctx, in); err != nil {
		return models.Intent{}, err
	}
	if p.metrics != nil {
		p.metrics.IntentsCommitted.Inc()
	}
	if postCommit != nil {
		if err := postCommit(ctx, in); err != nil {
			return in, err
		}
	}
	return in, nil
}

// MatchPublishedIntent finds this installation's own Published commit-kind
// intent for groupID whose staged commit bytes equal commit's. Inbound sync
// uses this to recognize a self-published commit landing back on its own
// timeline so it can drive ConfirmIntent instead of merging it as though it
// came from a stranger.
func (p *Pipeline) MatchPublishedIntent(ctx context.Context, groupID []byte, commit mlsprovider.StagedCommit) (models.Intent, bool, error) {
	published, err := p.store.ListIntentsByState(ctx, groupID, models.IntentStatePublished)
	if err != nil {
		return models.Intent{}, false, err
	}
	for _, in := range published {
		if classifyKind(in.Kind) == kindClassMessage {
			continue
		}
		var staged stagedPayload
		if err := json.Unmarshal(in.Data, &staged); err != nil {
			return models.Intent{}, false, err
		}
		if bytes.Equal(staged.SerializedCommit, commit.SerializedCommit) {
			return in, true, nil
		}
	}
	return models.Intent{}, false, nil
}
