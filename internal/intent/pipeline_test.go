package intent

import (
	"context"
	"testing"

	"golang.org/x/time/rate"

	"github.com/xmtp/libxmtp-sub002/internal/config"
	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

func newTestPipeline(t *testing.T) (*Pipeline, mlsprovider.Provider, *mlsprovider.GroupHandle) {
	t.Helper()
	key := make([]byte, 32)
	store, err := storage.Open(storage.ModeEphemeral, "", key, logging.New(nil, "storage"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	provider := mlsprovider.NewFakeProvider()
	groupID := []byte("group-1")
	handle, err := provider.CreateGroup(context.Background(), groupID, "alice")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := store.InsertGroup(context.Background(), models.Conversation{
		GroupID:          groupID,
		ConversationType: models.ConversationTypeGroup,
		MembershipState:  models.MembershipStateAllowed,
		CreatedAtNs:      1,
		Policy:           models.DefaultPolicySet(),
	}); err != nil {
		t.Fatalf("insert group: %v", err)
	}

	wire := wireapi.NewFakeClient(rate.Inf, 0)
	cfg := config.Default()
	p := NewPipeline(store, provider, wire, cfg, logging.New(nil, "intent"), nil)
	return p, provider, handle
}

// TestReconcileClean covers scenario S2: Alice and Bob both stage "add
// Charlie" from the same epoch. Alice's commit merges first; when Bob's
// stale commit is reconciled it finds Charlie already present and is
// cleanly consumed with no further publish and no change to membership.
func TestReconcileClean(t *testing.T) {
	ctx := context.Background()
	p, provider, handle := newTestPipeline(t)

	aliceIntent, err := p.StageCommitIntent(ctx, handle, models.IntentKindAddMembers, []mlsprovider.Proposal{
		{AddInstallationIDs: []string{"charlie"}},
	}, "alice")
	if err != nil {
		t.Fatalf("alice stage: %v", err)
	}
	bobIntent, err := p.StageCommitIntent(ctx, handle, models.IntentKindAddMembers, []mlsprovider.Proposal{
		{AddInstallationIDs: []string{"charlie"}},
	}, "bob")
	if err != nil {
		t.Fatalf("bob stage: %v", err)
	}

	if _, err := p.PublishIntent(ctx, handle, aliceIntent.ID); err != nil {
		t.Fatalf("alice publish: %v", err)
	}
	if _, err := p.PublishIntent(ctx, handle, bobIntent.ID); err != nil {
		t.Fatalf("bob publish: %v", err)
	}

	confirmedAlice, err := p.ConfirmIntent(ctx, handle, aliceIntent.ID, nil)
	if err != nil {
		t.Fatalf("alice confirm: %v", err)
	}
	if confirmedAlice.State != models.IntentStateCommitted {
		t.Fatalf("expected alice committed, got %s", confirmedAlice.State)
	}

	confirmedBob, err := p.ConfirmIntent(ctx, handle, bobIntent.ID, nil)
	if err != nil {
		t.Fatalf("bob confirm: %v", err)
	}
	if confirmedBob.State != models.IntentStateCommitted {
		t.Fatalf("expected bob's stale commit to be cleanly consumed as committed, got %s", confirmedBob.State)
	}

	members := provider.Members(handle)
	if len(members) != 2 {
		t.Fatalf("expected 2 members (alice, charlie), got %v", members)
	}
}

func TestSendOptimisticThenPublishMessages(t *testing.T) {
	ctx := context.Background()
	p, _, handle := newTestPipeline(t)

	msg, err := p.SendMessageOptimistic(ctx, SendMessageOptimisticParams{
		GroupID:              handle.GroupID,
		SenderInboxID:        "alice",
		SenderInstallationID: "alice-device-1",
		ContentType:          models.ContentTypeID{AuthorityID: "xmtp.org", TypeID: "text", VersionMajor: 1},
		DecryptedBytes:       []byte("hello"),
	})
	if err != nil {
		t.Fatalf("send optimistic: %v", err)
	}
	if msg.DeliveryStatus != models.DeliveryStatusUnpublished {
		t.Fatalf("expected unpublished, got %s", msg.DeliveryStatus)
	}

	if err := p.PublishMessages(ctx, handle.GroupID); err != nil {
		t.Fatalf("publish messages: %v", err)
	}
}

func TestPublishIntentLeavesCancelledIntentUntouched(t *testing.T) {
	p, _, handle := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in, err := p.StageCommitIntent(context.Background(), handle, models.IntentKindAddMembers, []mlsprovider.Proposal{
		{AddInstallationIDs: []string{"dave"}},
	}, "alice")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	if _, err := p.PublishIntent(ctx, handle, in.ID); err == nil {
		t.Fatalf("expected publish to fail on cancelled context")
	}

	reread, err := p.store.GetIntent(context.Background(), in.ID)
	if err != nil {
		t.Fatalf("reread intent: %v", err)
	}
	if reread.State != models.IntentStateToPublish {
		t.Fatalf("expected intent to remain ToPublish after cancellation, got %s", reread.State)
	}
}
