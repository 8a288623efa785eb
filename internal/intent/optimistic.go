package intent

import (
	"context"

	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/pkg/ids"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// SendMessageOptimisticParams is the input to SendMessageOptimistic.
type SendMessageOptimisticParams struct {
	GroupID              []byte
	SenderInboxID        string
	SenderInstallationID string
	ContentType          models.ContentTypeID
	DecryptedBytes       []byte
	ShouldPush           bool
}

// SendMessageOptimistic writes a locally-visible Unpublished message with
// a content-addressed id before any network round trip.
// PublishMessages later drives it to Published or Failed.
func (p *Pipeline) SendMessageOptimistic(ctx context.Context, params SendMessageOptimisticParams) (models.StoredMessage, error) {
	now := clock()
	msg := models.StoredMessage{
		ID:                   ids.MessageID(params.GroupID, params.DecryptedBytes, now),
		GroupID:              params.GroupID,
		SenderInboxID:        params.SenderInboxID,
		SenderInstallationID: params.SenderInstallationID,
		SentAtNs:             now,
		InsertedAtNs:         now,
		Kind:                 models.MessageKindApplication,
		ContentType:          params.ContentType,
		DecryptedBytes:       params.DecryptedBytes,
		DeliveryStatus:       models.DeliveryStatusUnpublished,
		AuthorityID:          params.ContentType.AuthorityID,
		VersionMajor:         params.ContentType.VersionMajor,
		VersionMinor:         params.ContentType.VersionMinor,
		ShouldPush:           params.ShouldPush,
	}
	if err := p.store.InsertMessage(ctx, msg); err != nil {
		return models.StoredMessage{}, err
	}
	return msg, nil
}

// PublishMessages drives every Unpublished message in groupID through the
// wire, marking each Published (with the backend's sequence id) or Failed.
func (p *Pipeline) PublishMessages(ctx context.Context, groupID []byte) error {
	unpublished := models.DeliveryStatusUnpublished
	msgs, err := p.store.ListMessages(ctx, storage.MsgQueryArgs{
		GroupID:        groupID,
		DeliveryStatus: &unpublished,
		SortBy:         models.MsgSortByInsertedAt,
		Direction:      models.SortAscending,
	})
	if err != nil {
		return err
	}
	for _, m := range msgs {
		ack, pubErr := p.wire.PublishMessage(ctx, groupID, m.DecryptedBytes)
		if pubErr != nil {
			if err := p.store.UpdateMessageDeliveryStatus(ctx, m.ID, models.DeliveryStatusFailed, 0, 0); err != nil {
				return err
			}
			continue
		}
		if err := p.store.UpdateMessageDeliveryStatus(ctx, m.ID, models.DeliveryStatusPublished, ack.SequenceID, ack.OriginatorID); err != nil {
			return err
		}
	}
	return nil
}
