package identity

import (
	"context"
	"encoding/json"
	"testing"

	"golang.org/x/time/rate"

	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

func newTestResolver() (*Resolver, *wireapi.FakeClient) {
	client := wireapi.NewFakeClient(rate.Inf, 0)
	return NewResolver(client, logging.New(nil, "identity")), client
}

func TestResolveExpectedInstallationsUnionsAcrossInboxes(t *testing.T) {
	resolver, client := newTestResolver()
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "alice", SequenceID: 1, AddInstallationID: "alice-1"})
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "bob", SequenceID: 1, AddInstallationID: "bob-1"})

	membership := GroupMembership{"alice": 1, "bob": 1}
	expected, err := resolver.ResolveExpectedInstallations(context.Background(), membership)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expected["alice-1"] || !expected["bob-1"] || len(expected) != 2 {
		t.Fatalf("expected {alice-1,bob-1}, got %v", expected)
	}
}

func TestResolveAssociationStateNeverReadsAheadOfSequence(t *testing.T) {
	resolver, client := newTestResolver()
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "alice", SequenceID: 1, AddInstallationID: "alice-1"})
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "alice", SequenceID: 2, AddInstallationID: "alice-2"})

	state, err := resolver.ResolveAssociationState(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := state.ActiveInstallationIDs()
	if len(ids) != 1 || ids[0] != "alice-1" {
		t.Fatalf("expected only alice-1 as of sequence 1, got %v", ids)
	}
}

func TestComputeInstallationDiffReportsFailedInstallationsWithoutAborting(t *testing.T) {
	resolver, client := newTestResolver()
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "alice", SequenceID: 1, AddInstallationID: "alice-1"})
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "alice", SequenceID: 2, AddInstallationID: "alice-2"})

	goodPayload, _ := json.Marshal(models.KeyPackage{InstallationID: "alice-1", NotBeforeNs: 0, NotAfterNs: 1000})
	client.SetKeyPackage("alice-1", wireapi.KeyPackageResult{Payload: goodPayload})
	// alice-2 deliberately left unset so GetKeyPackages reports ErrUnknownInstallation.

	membership := GroupMembership{"alice": 2}
	result, err := resolver.ComputeInstallationDiff(context.Background(), membership, map[string]bool{}, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToAdd) != 2 {
		t.Fatalf("expected both installations staged to add, got %v", result.ToAdd)
	}
	if _, ok := result.FetchedKeyPackages["alice-1"]; !ok {
		t.Fatalf("expected alice-1 to have a fetched key package")
	}
	if _, ok := result.FailedInstallations["alice-2"]; !ok {
		t.Fatalf("expected alice-2 to be reported as failed, not abort the whole add")
	}
}

func TestComputeInstallationDiffRejectsExpiredKeyPackage(t *testing.T) {
	resolver, client := newTestResolver()
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "alice", SequenceID: 1, AddInstallationID: "alice-1"})
	expired, _ := json.Marshal(models.KeyPackage{InstallationID: "alice-1", NotBeforeNs: 0, NotAfterNs: 100})
	client.SetKeyPackage("alice-1", wireapi.KeyPackageResult{Payload: expired})

	membership := GroupMembership{"alice": 1}
	result, err := resolver.ComputeInstallationDiff(context.Background(), membership, map[string]bool{}, 999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, failed := result.FailedInstallations["alice-1"]; !failed {
		t.Fatalf("expected an out-of-window key package to be reported failed")
	}
}

// TestValidateInitialGroupMembershipRejectsForkedWelcome covers scenario S3:
// a welcome claiming membership from an inbox with no real association
// state must fail validation rather than silently accept the extra leaf.
func TestValidateInitialGroupMembershipRejectsForkedWelcome(t *testing.T) {
	resolver, client := newTestResolver()
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "alice", SequenceID: 1, AddInstallationID: "alice-1"})
	// "foo" has no identity updates at all: a fictitious inbox.

	membership := GroupMembership{"alice": 1, "foo": 1}
	actual := map[string]bool{"alice-1": true, "foo-phantom-installation": true}

	err := resolver.ValidateInitialGroupMembership(context.Background(), membership, actual)
	if err == nil {
		t.Fatalf("expected forked welcome to fail validation")
	}
}

func TestValidateInitialGroupMembershipAcceptsMatchingSets(t *testing.T) {
	resolver, client := newTestResolver()
	client.AppendIdentityUpdate(wireapi.IdentityUpdate{InboxID: "alice", SequenceID: 1, AddInstallationID: "alice-1"})

	membership := GroupMembership{"alice": 1}
	actual := map[string]bool{"alice-1": true}
	if err := resolver.ValidateInitialGroupMembership(context.Background(), membership, actual); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
