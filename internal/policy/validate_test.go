package policy

import (
	"errors"
	"testing"

	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

func adminsOnlyMutable() models.MutableMetadata {
	return models.MutableMetadata{
		AdminInboxIDs:      []string{"alice"},
		SuperAdminInboxIDs: []string{"alice"},
	}
}

// TestValidateCommitRejectsNonAdminAddMember covers scenario S5: a non-admin
// issuing add_member against an AdminsOnly policy set must be rejected.
func TestValidateCommitRejectsNonAdminAddMember(t *testing.T) {
	err := ValidateCommit(CommitValidation{
		Policy:       models.AdminsOnlyPolicySet(),
		Mutable:      adminsOnlyMutable(),
		ActorInboxID: "bob",
		Proposals: []Proposal{
			{Class: ProposalClassAddMember, TargetInboxID: "carol"},
		},
	})
	if err == nil {
		t.Fatalf("expected permission denial, got nil")
	}
	if !errors.Is(err, xmtperr.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
}

func TestValidateCommitAllowsAdminAddMemberUnderAdminsOnly(t *testing.T) {
	err := ValidateCommit(CommitValidation{
		Policy:       models.AdminsOnlyPolicySet(),
		Mutable:      adminsOnlyMutable(),
		ActorInboxID: "alice",
		Proposals: []Proposal{
			{Class: ProposalClassAddMember, TargetInboxID: "carol"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCommitRejectsRemovingLastSuperAdmin(t *testing.T) {
	mutable := models.MutableMetadata{SuperAdminInboxIDs: []string{"alice"}}
	err := ValidateCommit(CommitValidation{
		Policy:       models.DefaultPolicySet(),
		Mutable:      mutable,
		ActorInboxID: "alice",
		Proposals: []Proposal{
			{Class: ProposalClassAdminChange, TargetInboxID: "alice", AdminChangeType: models.UpdateAdminListRemoveSuper},
		},
	})
	if err == nil {
		t.Fatalf("expected rejection of removing the last super-admin")
	}
}

func TestValidateCommitRejectsAdminSelfPromotion(t *testing.T) {
	mutable := models.MutableMetadata{
		AdminInboxIDs:      []string{"bob"},
		SuperAdminInboxIDs: []string{"alice"},
	}
	policy := models.DefaultPolicySet()
	policy.AddAdminPolicy = models.PolicyAllowIfAdminOrSuperAdmin
	err := ValidateCommit(CommitValidation{
		Policy:       policy,
		Mutable:      mutable,
		ActorInboxID: "bob",
		Proposals: []Proposal{
			{Class: ProposalClassAdminChange, TargetInboxID: "bob", AdminChangeType: models.UpdateAdminListAddSuper},
		},
	})
	if err == nil {
		t.Fatalf("expected rejection of admin self-promotion")
	}
}

func TestValidateCommitRejectsAdminChangeOnDM(t *testing.T) {
	mutable := models.MutableMetadata{
		AdminInboxIDs:      []string{"alice"},
		SuperAdminInboxIDs: []string{"alice"},
	}
	err := ValidateCommit(CommitValidation{
		Policy:           models.DefaultPolicySet(),
		Mutable:          mutable,
		ConversationType: models.ConversationTypeDM,
		ActorInboxID:     "alice",
		Proposals: []Proposal{
			{Class: ProposalClassAdminChange, TargetInboxID: "bob", AdminChangeType: models.UpdateAdminListAdd},
		},
	})
	if !errors.Is(err, ErrAdminChangeOnDM) {
		t.Fatalf("expected ErrAdminChangeOnDM, got %v", err)
	}
}

func TestValidateCommitRejectsImmutableMetadataEdit(t *testing.T) {
	err := ValidateCommit(CommitValidation{
		Policy:       models.DefaultPolicySet(),
		Mutable:      adminsOnlyMutable(),
		ActorInboxID: "alice",
		Proposals: []Proposal{
			{Class: ProposalClassMetadataChange, MetadataField: "conversation_type", TouchesImmutable: true},
		},
	})
	if !errors.Is(err, ErrImmutableMetadataEdit) {
		t.Fatalf("expected ErrImmutableMetadataEdit, got %v", err)
	}
}
