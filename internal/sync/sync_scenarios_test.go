package sync

import (
	"context"
	"testing"

	"golang.org/x/time/rate"

	"github.com/xmtp/libxmtp-sub002/internal/codec"
	"github.com/xmtp/libxmtp-sub002/internal/config"
	"github.com/xmtp/libxmtp-sub002/internal/identity"
	"github.com/xmtp/libxmtp-sub002/internal/intent"
	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
	"github.com/xmtp/libxmtp-sub002/pkg/contenttypes"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// installation bundles one party's local state: its own store and
// orchestrator, sharing the provider and wire with every other party the
// way two real installations share only the backend, not each other's disk.
type installation struct {
	store *storage.Store
	orch  *Orchestrator
	pipe  *intent.Pipeline
}

func newInstallation(t *testing.T, provider mlsprovider.Provider, wire wireapi.Client, name string) installation {
	t.Helper()
	key := make([]byte, 32)
	store, err := storage.Open(storage.ModeEphemeral, "", key, logging.New(nil, "storage"))
	if err != nil {
		t.Fatalf("%s: open store: %v", name, err)
	}
	t.Cleanup(func() { _ = store.Close() })

	resolver := identity.NewResolver(wire, logging.New(nil, "identity"))
	pipe := intent.NewPipeline(store, provider, wire, config.Default(), logging.New(nil, "intent"), nil)
	orch := NewOrchestrator(store, provider, wire, resolver, pipe, codec.NewDefaultRegistry(), []byte(name), logging.New(nil, "sync"), nil)
	return installation{store: store, orch: orch, pipe: pipe}
}

// TestTwoPartyDMRoundTrip covers scenario S1: Alice creates a group,
// invites Bob, Bob syncs the welcome and joins, Alice sends a message, and
// Bob's conversation sync delivers it.
func TestTwoPartyDMRoundTrip(t *testing.T) {
	ctx := context.Background()
	provider := mlsprovider.NewFakeProvider()
	wire := wireapi.NewFakeClient(rate.Inf, 0)

	alice := newInstallation(t, provider, wire, "alice-installation")
	bob := newInstallation(t, provider, wire, "bob-installation")

	groupID := []byte("dm-alice-bob")
	handle, err := provider.CreateGroup(ctx, groupID, "alice-installation")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := alice.store.InsertGroup(ctx, models.Conversation{
		GroupID:          groupID,
		ConversationType: models.ConversationTypeDM,
		MembershipState:  models.MembershipStateAllowed,
		CreatedAtNs:      1,
		Policy:           models.DefaultPolicySet(),
	}); err != nil {
		t.Fatalf("alice insert group: %v", err)
	}

	addBob, err := alice.pipe.StageCommitIntent(ctx, handle, models.IntentKindAddMembers, []mlsprovider.Proposal{
		{AddInstallationIDs: []string{"bob-installation"}},
	}, "alice-inbox")
	if err != nil {
		t.Fatalf("stage add bob: %v", err)
	}
	if _, err := alice.pipe.PublishIntent(ctx, handle, addBob.ID); err != nil {
		t.Fatalf("publish add bob: %v", err)
	}
	confirmed, err := alice.pipe.ConfirmIntent(ctx, handle, addBob.ID, nil)
	if err != nil {
		t.Fatalf("confirm add bob: %v", err)
	}
	if confirmed.State != models.IntentStateCommitted {
		t.Fatalf("expected add-bob committed, got %s", confirmed.State)
	}

	accepted, err := bob.orch.SyncWelcomes(ctx, []byte("bob-installation"))
	if err != nil {
		t.Fatalf("bob sync welcomes: %v", err)
	}
	if accepted != 1 {
		t.Fatalf("expected bob to accept 1 welcome, got %d", accepted)
	}
	bobGroup, err := bob.store.GetGroup(ctx, groupID)
	if err != nil {
		t.Fatalf("bob get group: %v", err)
	}
	if bobGroup.MembershipState != models.MembershipStatePending {
		t.Fatalf("expected bob's group in Pending, got %s", bobGroup.MembershipState)
	}

	registry := codec.NewDefaultRegistry()
	contentType := models.ContentTypeID{AuthorityID: contenttypes.AuthorityXMTP, TypeID: contenttypes.TypeText, VersionMajor: 1}
	encoded, err := registry.Encode(contentType, codec.TextContent{Text: "hello bob"})
	if err != nil {
		t.Fatalf("encode text: %v", err)
	}
	payload, err := encoded.Marshal()
	if err != nil {
		t.Fatalf("marshal encoded content: %v", err)
	}
	if _, err := alice.pipe.SendMessageOptimistic(ctx, intent.SendMessageOptimisticParams{
		GroupID:              groupID,
		SenderInboxID:        "alice-inbox",
		SenderInstallationID: "alice-installation",
		ContentType:          contentType,
		DecryptedBytes:       payload,
	}); err != nil {
		t.Fatalf("send optimistic: %v", err)
	}
	if err := alice.pipe.PublishMessages(ctx, groupID); err != nil {
		t.Fatalf("publish messages: %v", err)
	}

	bobHandle, err := provider.LoadGroup(ctx, groupID)
	if err != nil {
		t.Fatalf("bob load group: %v", err)
	}
	out := make(chan models.StoredMessage, 4)
	if err := bob.orch.SyncConversation(ctx, bobHandle, out); err != nil {
		t.Fatalf("bob sync conversation: %v", err)
	}
	close(out)

	var delivered []models.StoredMessage
	for m := range out {
		delivered = append(delivered, m)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected bob to receive 1 message, got %d", len(delivered))
	}
	decoded, _, err := registry.Decode(codec.EncodedContent{ContentType: delivered[0].ContentType, Payload: delivered[0].DecryptedBytes})
	if err != nil {
		t.Fatalf("decode delivered message: %v", err)
	}
	if decoded.(codec.TextContent).Text != "hello bob" {
		t.Fatalf("expected %q, got %v", "hello bob", decoded)
	}

	stored, err := bob.store.ListMessages(ctx, storage.MsgQueryArgs{GroupID: groupID})
	if err != nil {
		t.Fatalf("bob list messages: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected bob to have persisted 1 message, got %d", len(stored))
	}
}
