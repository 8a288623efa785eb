package consent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

const nsPerDay = int64(24 * 60 * 60 * 1_000_000_000)

// hmacExportLabel is the ExportSecret label HMAC keys are derived under,
// keeping them cryptographically separate from any other secret the same
// epoch's exporter tree could produce.
const hmacExportLabel = "push-notification-hmac"

// KeyRotator generates and serves per-group, per-epoch-day HMAC keys used
// to authenticate push-notification topic subscriptions without exposing
// plaintext group membership to the push provider. Each key is derived from
// the group's own MLS exporter secret (RFC 9420 §8.5) rather than random
// bytes, so any installation in the group can independently recompute it for
// the same epoch day. Keys are generated once per (group, day) and cached in
// memory on top of the durable store.
type KeyRotator struct {
	store        *storage.Store
	provider     mlsprovider.Provider
	cache        *ttlcache.Cache[string, models.HmacKey]
	rotationDays int
}

func NewKeyRotator(store *storage.Store, provider mlsprovider.Provider, rotationDays int) *KeyRotator {
	if rotationDays <= 0 {
		rotationDays = 30
	}
	cache := ttlcache.New[string, models.HmacKey](
		ttlcache.WithTTL[string, models.HmacKey](24 * time.Hour),
	)
	go cache.Start()
	return &KeyRotator{store: store, provider: provider, cache: cache, rotationDays: rotationDays}
}

func cacheKey(groupID []byte, epochDay int64) string {
	return fmt.Sprintf("%x:%d", groupID, epochDay)
}

// EpochDayFor buckets nowNs into the rotator's fixed-width rotation window.
func (r *KeyRotator) EpochDayFor(nowNs int64) int64 {
	return nowNs / (nsPerDay * int64(r.rotationDays))
}

// CurrentKey returns handle's HMAC key for nowNs's epoch, deriving and
// persisting it via the provider's exporter secret on first use for that
// window. Every installation in the group derives the same key
// independently from the same (group, epoch day) pair — nothing is
// transmitted.
func (r *KeyRotator) CurrentKey(ctx context.Context, handle *mlsprovider.GroupHandle, nowNs int64) (models.HmacKey, error) {
	groupID := handle.GroupID
	epochDay := r.EpochDayFor(nowNs)
	ck := cacheKey(groupID, epochDay)
	if item := r.cache.Get(ck); item != nil {
		return item.Value(), nil
	}

	existing, ok, err := r.store.GetHmacKey(ctx, groupID, epochDay)
	if err != nil {
		return models.HmacKey{}, err
	}
	if ok {
		r.cache.Set(ck, existing, ttlcache.DefaultTTL)
		return existing, nil
	}

	raw, err := r.provider.ExportSecret(ctx, handle, hmacExportLabel, []byte(strconv.FormatInt(epochDay, 10)), 32)
	if err != nil {
		return models.HmacKey{}, err
	}
	key := models.HmacKey{GroupID: append([]byte(nil), groupID...), EpochDay: epochDay, Key: raw}
	if err := r.store.UpsertHmacKey(ctx, key); err != nil {
		return models.HmacKey{}, err
	}
	r.cache.Set(ck, key, ttlcache.DefaultTTL)

	if err := r.store.DeleteHmacKeysBefore(ctx, groupID, epochDay-2); err != nil {
		return models.HmacKey{}, err
	}
	return key, nil
}

// Close stops the background TTL-eviction goroutine.
func (r *KeyRotator) Close() {
	r.cache.Stop()
}
