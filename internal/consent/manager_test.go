package consent

import (
	"context"
	"testing"

	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	key := make([]byte, 32)
	store, err := storage.Open(storage.ModeEphemeral, "", key, logging.New(nil, "storage"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetConsentWithoutDeviceSyncGroupStaysLocal(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(store, nil, nil, "alice", "alice-device-1", nil, logging.New(nil, "consent"))

	if err := m.SetConsent(context.Background(), models.ConsentEntityInboxID, "bob", models.ConsentStateAllowed); err != nil {
		t.Fatalf("set consent: %v", err)
	}
	state, err := m.GetConsent(context.Background(), models.ConsentEntityInboxID, "bob")
	if err != nil {
		t.Fatalf("get consent: %v", err)
	}
	if state != models.ConsentStateAllowed {
		t.Fatalf("expected allowed, got %s", state)
	}
}

func TestGetConsentDefaultsUnknown(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(store, nil, nil, "alice", "alice-device-1", nil, logging.New(nil, "consent"))

	state, err := m.GetConsent(context.Background(), models.ConsentEntityInboxID, "nobody")
	if err != nil {
		t.Fatalf("get consent: %v", err)
	}
	if state != models.ConsentStateUnknown {
		t.Fatalf("expected unknown, got %s", state)
	}
}

func TestKeyRotatorStableWithinEpochAndPersisted(t *testing.T) {
	store := newTestStore(t)
	provider := mlsprovider.NewFakeProvider()
	r := NewKeyRotator(store, provider, 30)
	defer r.Close()

	groupID := []byte("group-1")
	handle, err := provider.CreateGroup(context.Background(), groupID, "alice-installation")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	now := int64(1_700_000_000) * 1_000_000_000

	first, err := r.CurrentKey(context.Background(), handle, now)
	if err != nil {
		t.Fatalf("current key: %v", err)
	}
	second, err := r.CurrentKey(context.Background(), handle, now+1_000_000)
	if err != nil {
		t.Fatalf("current key again: %v", err)
	}
	if string(first.Key) != string(second.Key) {
		t.Fatalf("expected stable key within the same epoch day")
	}

	stored, ok, err := store.GetHmacKey(context.Background(), groupID, r.EpochDayFor(now))
	if err != nil {
		t.Fatalf("get hmac key: %v", err)
	}
	if !ok || string(stored.Key) != string(first.Key) {
		t.Fatalf("expected key to be durably persisted")
	}
}
