// Package consent implements consent-record CRUD and its propagation to
// a device-sync group, plus per-group HMAC push-notification key rotation.
package consent

import (
	"context"
	"strconv"
	"time"

	"github.com/xmtp/libxmtp-sub002/internal/codec"
	"github.com/xmtp/libxmtp-sub002/internal/intent"
	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/pkg/contenttypes"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// consentUpdateActionID tags the IntentContent payload broadcast into the
// device-sync group whenever local consent state changes, so every other
// installation of the same inbox can replay the same decision.
const consentUpdateActionID = "consent_update"

// Manager owns the authoritative local consent table and mirrors every
// change into the account's device-sync group so other installations of
// the same inbox converge on the same allow/deny decisions.
type Manager struct {
	store            *storage.Store
	pipeline         *intent.Pipeline
	registry         *codec.Registry
	selfInboxID      string
	selfInstallation string
	deviceSyncGroup  []byte
	log              logging.Component
}

func NewManager(store *storage.Store, pipeline *intent.Pipeline, registry *codec.Registry, selfInboxID, selfInstallation string, deviceSyncGroup []byte, log logging.Component) *Manager {
	return &Manager{
		store:            store,
		pipeline:         pipeline,
		registry:         registry,
		selfInboxID:      selfInboxID,
		selfInstallation: selfInstallation,
		deviceSyncGroup:  deviceSyncGroup,
		log:              log,
	}
}

// SetConsent records state for entity locally and broadcasts the change
// to the device-sync group (best-effort: a broadcast failure is logged
// but never unwinds the local write, since the local decision is already
// authoritative for this installation).
func (m *Manager) SetConsent(ctx context.Context, entityType models.ConsentEntityType, entity string, state models.ConsentState) error {
	rec := models.ConsentRecord{
		EntityType:    entityType,
		Entity:        entity,
		State:         state,
		ConsentedAtNs: time.Now().UnixNano(),
	}
	if err := m.store.UpsertConsent(ctx, rec); err != nil {
		return err
	}
	if m.deviceSyncGroup == nil || m.pipeline == nil {
		return nil
	}
	if err := m.broadcast(ctx, rec); err != nil {
		m.log.Warn("set_consent", "device-sync broadcast failed", "entity", entity, "err", err)
	}
	return nil
}

// GetConsent returns entity's consent state, ConsentStateUnknown if none
// has ever been recorded.
func (m *Manager) GetConsent(ctx context.Context, entityType models.ConsentEntityType, entity string) (models.ConsentState, error) {
	rec, err := m.store.GetConsent(ctx, entityType, entity)
	if err != nil {
		return models.ConsentStateUnknown, err
	}
	return rec.State, nil
}

func (m *Manager) broadcast(ctx context.Context, rec models.ConsentRecord) error {
	contentType := models.ContentTypeID{
		AuthorityID:  contenttypes.AuthorityXMTP,
		TypeID:       contenttypes.TypeIntent,
		VersionMajor: 1,
	}
	encoded, err := m.registry.Encode(contentType, codec.IntentContent{
		ActionID: consentUpdateActionID,
		Data: map[string]string{
			"entity_type":     string(rec.EntityType),
			"entity":          rec.Entity,
			"state":           string(rec.State),
			"consented_at_ns": strconv.FormatInt(rec.ConsentedAtNs, 10),
		},
	})
	if err != nil {
		return err
	}
	payload, err := encoded.Marshal()
	if err != nil {
		return err
	}
	_, err = m.pipeline.SendMessageOptimistic(ctx, intent.SendMessageOptimisticParams{
		GroupID:              m.deviceSyncGroup,
		SenderInboxID:        m.selfInboxID,
		SenderInstallationID: m.selfInstallation,
		ContentType:          contentType,
		DecryptedBytes:       payload,
	})
	if err != nil {
		return err
	}
	return m.pipeline.PublishMessages(ctx, m.deviceSyncGroup)
}

// ApplyRemoteConsentUpdate replays a consent_update IntentContent received
// from another installation of the same inbox via the device-sync group.
// It never re-broadcasts, so devices don't echo the update forever.
func (m *Manager) ApplyRemoteConsentUpdate(ctx context.Context, content codec.IntentContent) error {
	if content.ActionID != consentUpdateActionID {
		return nil
	}
	rec := models.ConsentRecord{
		EntityType: models.ConsentEntityType(content.Data["entity_type"]),
		Entity:     content.Data["entity"],
		State:      models.ConsentState(content.Data["state"]),
	}
	rec.ConsentedAtNs, _ = strconv.ParseInt(content.Data["consented_at_ns"], 10, 64)
	return m.store.UpsertConsent(ctx, rec)
}
