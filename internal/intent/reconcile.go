package intent

import (
	"context"
	"encoding/json"

	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

// reconcile implements the epoch-mismatch path: another commit landed at
// this group first, so the provider rejected our staged commit as stale.
// Re-stage against current group state; if every proposal is already
// satisfied (the member we wanted to add is already present, the one we
// wanted to remove already gone) the intent is cleanly consumed with no
// further action. Otherwise it regresses to ToPublish for another publish
// attempt, up to cfg.EpochConflictRetryMax conflicts before giving up.
func (p *Pipeline) reconcile(ctx context.Context, handle *mlsprovider.GroupHandle, in models.Intent) (models.Intent, error) {
	var prior stagedPayload
	if err := json.Unmarshal(in.Data, &prior); err != nil {
		return models.Intent{}, err
	}

	current := p.provider.Members(handle)
	currentSet := make(map[string]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}

	if proposalsAlreadySatisfied(prior.Proposals, currentSet) {
		in.State = models.IntentStateCommitted
		in.PostCommitData = nil
		if err := p.store.UpdateIntent(ctx, in); err != nil {
			return models.Intent{}, err
		}
		if p.metrics != nil {
			p.metrics.IntentsCommitted.Inc()
		}
		return in, nil
	}

	in.EpochConflictCount++
	if in.EpochConflictCount > p.cfg.EpochConflictRetryMax {
		in.State = models.IntentStateError
		in.ErrorReason = ErrEpochConflictExceeded.Error()
		if err := p.store.UpdateIntent(ctx, in); err != nil {
			return models.Intent{}, err
		}
		if p.metrics != nil {
			p.metrics.IntentsErrored.WithLabelValues("epoch_conflict_exceeded").Inc()
		}
		return in, ErrEpochConflictExceeded
	}

	restaged, err := p.provider.StageCommit(ctx, handle, prior.Proposals)
	if err != nil {
		return models.Intent{}, xmtperr.New(xmtperr.CategoryIntent, xmtperr.ScopeIntent, true, err)
	}
	data, err := json.Marshal(stagedPayload{
		SerializedCommit: restaged.SerializedCommit,
		FromEpoch:        restaged.FromEpoch,
		ToEpoch:          restaged.ToEpoch,
		Proposals:        restaged.Proposals,
	})
	if err != nil {
		return models.Intent{}, err
	}

	in.Data = data
	in.State = models.IntentStateToPublish
	in.PublishedInEpoch = nil
	if err := p.store.UpdateIntent(ctx, in); err != nil {
		return models.Intent{}, err
	}
	return in, nil
}

func proposalsAlreadySatisfied(proposals []mlsprovider.Proposal, members map[string]bool) bool {
	for _, prop := range proposals {
		for _, id := range prop.AddInstallationIDs {
			if !members[id] {
				return false
			}
		}
		for _, id := range prop.RemoveInstallationIDs {
			if members[id] {
				return false
			}
		}
	}
	return true
}
