package intent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// stagedPayload is the JSON shape persisted in Intent.Data for every
// commit-kind intent: everything ConfirmIntent/reconcile need to
// re-drive StageCommit without re-deriving proposals from scratch.
type stagedPayload struct {
	SerializedCommit []byte                `json:"serialized_commit"`
	FromEpoch        uint64                `json:"from_epoch"`
	ToEpoch          uint64                `json:"to_epoch"`
	Proposals        []mlsprovider.Proposal `json:"proposals"`
}

// StageCommitIntent builds an MLS commit for proposals via the provider
// (not yet merged) and persists a new ToPublish intent row. actorInboxID is
// recorded as added_by_inbox_id on every welcome this commit produces.
func (p *Pipeline) StageCommitIntent(ctx context.Context, handle *mlsprovider.GroupHandle, kind models.IntentKind, proposals []mlsprovider.Proposal, actorInboxID string) (models.Intent, error) {
	lock := p.groupLock(handle.GroupID)
	lock.Lock()
	defer lock.Unlock()

	staged, err := p.provider.StageCommit(ctx, handle, proposals)
	if err != nil {
		return models.Intent{}, err
	}

	data, err := json.Marshal(stagedPayload{
		SerializedCommit: staged.SerializedCommit,
		FromEpoch:        staged.FromEpoch,
		ToEpoch:          staged.ToEpoch,
		Proposals:        staged.Proposals,
	})
	if err != nil {
		return models.Intent{}, err
	}
	var postCommit []byte
	if len(staged.Welcomes) > 0 {
		postCommit, err = p.buildWelcomePayloads(ctx, handle, staged, actorInboxID)
		if err != nil {
			return models.Intent{}, err
		}
	}

	in := models.Intent{
		ID:             uuid.NewString(),
		GroupID:        append([]byte(nil), handle.GroupID...),
		Kind:           kind,
		Data:           data,
		State:          models.IntentStateToPublish,
		PostCommitData: postCommit,
		CreatedAtNs:    clock(),
	}
	if err := p.store.InsertIntent(ctx, in); err != nil {
		return models.Intent{}, err
	}
	if p.metrics != nil {
		p.metrics.IntentsStaged.Inc()
	}
	return in, nil
}

// buildWelcomePayloads builds one models.WelcomePayload for each installation
// StageCommit produced a welcome for, so the recipient's sync orchestrator
// can materialize the conversation without a second round trip: group id,
// its policy and conversation type, and who added them. The welcome secret
// itself is not placed in the payload.
func (p *Pipeline) buildWelcomePayloads(ctx context.Context, handle *mlsprovider.GroupHandle, staged mlsprovider.StagedCommit, actorInboxID string) ([]byte, error) {
	conv, err := p.store.GetGroup(ctx, handle.GroupID)
	if err != nil {
		return nil, err
	}
	members := p.provider.Members(handle)

	out := make(map[string][]byte, len(staged.Welcomes))
	for installationID := range staged.Welcomes {
		payload, err := json.Marshal(models.WelcomePayload{
			GroupID:          handle.GroupID,
			ActualInstallIDs: members,
			AddedByInboxID:   actorInboxID,
			ConversationType: conv.ConversationType,
			Policy:           conv.Policy,
			CreatedAtNs:      clock(),
		})
		if err != nil {
			return nil, err
		}
		out[installationID] = payload
	}
	return json.Marshal(out)
}

// clock is overridable so tests can control CreatedAtNs ordering, mirroring
// storage.Clock for the storage package.
var clock = func() int64 { return time.Now().UnixNano() }
