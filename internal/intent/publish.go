package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"

	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

// PublishIntent drives one ToPublish intent to Published, retrying
// transient wire failures with exponential backoff up to
// cfg.PublishRetryMax attempts. Context cancellation and recovered panics
// both leave the stored row untouched in ToPublish — neither corrupts
// persistent state. handle must reference the same group as id's intent;
// it supplies the current local epoch recorded as published_in_epoch.
func (p *Pipeline) PublishIntent(ctx context.Context, handle *mlsprovider.GroupHandle, id string) (in models.Intent, err error) {
	defer func() {
		if r := recover(); r != nil {
			in = models.Intent{}
			err = &PublishPanicError{Recovered: r}
		}
	}()

	current, err := p.store.GetIntent(ctx, id)
	if err != nil {
		return models.Intent{}, err
	}
	if current.State != models.IntentStateToPublish {
		return current, nil
	}

	var ack wireapi.PublishAck
	publishErr := retry.Do(
		func() error {
			a, pubErr := p.publishOnce(ctx, current)
			if pubErr != nil {
				return pubErr
			}
			ack = a
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxInt(p.cfg.PublishRetryMax, 1))),
		retry.LastErrorOnly(true),
	)

	if publishErr != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return models.Intent{}, ErrPublishCancelled
		}
		current.State = models.IntentStateError
		current.ErrorReason = fmt.Sprintf("%s: %v", ErrPublishExhausted, publishErr)
		if updateErr := p.store.UpdateIntent(ctx, current); updateErr != nil {
			return models.Intent{}, updateErr
		}
		if p.metrics != nil {
			p.metrics.IntentsErrored.WithLabelValues("publish_exhausted").Inc()
		}
		return current, nil
	}

	if err := p.publishStagedWelcomes(ctx, current); err != nil {
		return models.Intent{}, err
	}

	current.State = models.IntentStatePublished
	epoch := p.provider.Epoch(handle)
	current.PublishedInEpoch = &epoch
	if err := p.store.UpdateIntent(ctx, current); err != nil {
		return models.Intent{}, err
	}
	if p.metrics != nil {
		p.metrics.IntentsPublished.Inc()
	}
	return current, nil
}

func (p *Pipeline) publishOnce(ctx context.Context, in models.Intent) (wireapi.PublishAck, error) {
	if classifyKind(in.Kind) == kindClassMessage {
		return p.wire.PublishMessage(ctx, in.GroupID, in.Data)
	}
	var staged stagedPayload
	if err := json.Unmarshal(in.Data, &staged); err != nil {
		return wireapi.PublishAck{}, err
	}
	return p.wire.PublishCommit(ctx, in.GroupID, staged.SerializedCommit)
}

// publishStagedWelcomes ships every pending welcome recorded at staging
// time, the post-commit action for add-member commits.
// installationKey/hpkePublicKey are both the target installation id here
// — the fake wire transport (and this pipeline) don't separate the two
// the way a real HPKE-sealed welcome would.
func (p *Pipeline) publishStagedWelcomes(ctx context.Context, in models.Intent) error {
	if len(in.PostCommitData) == 0 {
		return nil
	}
	var welcomes map[string][]byte
	if err := json.Unmarshal(in.PostCommitData, &welcomes); err != nil {
		return xmtperr.New(xmtperr.CategoryIntent, xmtperr.ScopeIntent, false, err)
	}
	for installationID, encrypted := range welcomes {
		key := []byte(installationID)
		if err := p.wire.PublishWelcome(ctx, key, key, encrypted, "mls-10"); err != nil {
			return xmtperr.New(xmtperr.CategoryWire, xmtperr.ScopeIntent, true, err)
		}
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
