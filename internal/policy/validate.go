package policy

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

var (
	ErrLastSuperAdmin        = errors.New("policy: cannot remove the last super-admin")
	ErrSelfPromotion         = errors.New("policy: admin cannot promote itself to super-admin")
	ErrImmutableMetadataEdit = errors.New("policy: commit attempts to change immutable metadata")
	ErrAdminChangeOnDM       = errors.New("policy: DMs cannot change admin lists")
)

// CommitValidation is the input to the commit validation algorithm.
type CommitValidation struct {
	Policy           models.PolicySet
	Mutable          models.MutableMetadata
	ConversationType models.ConversationType
	ActorInboxID     string
	Proposals        []Proposal
}

// ValidateCommit runs the five-step algorithm: classify each proposal,
// evaluate each class against the policy and the actor's role, and reject
// the entire commit if any class or invariant fails — never a partial
// merge.
func ValidateCommit(v CommitValidation) error {
	actorRole := RoleOf(v.Mutable, v.ActorInboxID)

	var errs error
	for _, p := range v.Proposals {
		if p.TouchesImmutable {
			return xmtperr.New(xmtperr.CategoryGroup, xmtperr.ScopeGroup, false, ErrImmutableMetadataEdit)
		}
		if err := validateProposal(v, actorRole, p); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return xmtperr.New(xmtperr.CategoryGroup, xmtperr.ScopeGroup, false, multierr.Append(xmtperr.ErrPolicyViolation, errs))
	}
	return nil
}

func validateProposal(v CommitValidation, actorRole models.MemberRole, p Proposal) error {
	switch p.Class {
	case ProposalClassAddMember:
		if !evaluateMembershipPolicy(v.Policy.AddMemberPolicy, actorRole, v.ActorInboxID, p.TargetInboxID) {
			return fmt.Errorf("add_member denied for %s: %w", p.TargetInboxID, xmtperr.ErrPolicyViolation)
		}
	case ProposalClassRemoveMember:
		if !evaluateMembershipPolicy(v.Policy.RemoveMemberPolicy, actorRole, v.ActorInboxID, p.TargetInboxID) {
			return fmt.Errorf("remove_member denied for %s: %w", p.TargetInboxID, xmtperr.ErrPolicyViolation)
		}
	case ProposalClassMetadataChange:
		if !evaluateMetadataPolicy(v.Policy.UpdateMetadataPolicy, p.MetadataField, actorRole) {
			return fmt.Errorf("metadata_change denied for field %q: %w", p.MetadataField, xmtperr.ErrPolicyViolation)
		}
	case ProposalClassAdminChange:
		if v.ConversationType == models.ConversationTypeDM {
			return ErrAdminChangeOnDM
		}
		policy := v.Policy.AddAdminPolicy
		if p.AdminChangeType == models.UpdateAdminListRemove || p.AdminChangeType == models.UpdateAdminListRemoveSuper {
			policy = v.Policy.RemoveAdminPolicy
		}
		if !evaluateMembershipPolicy(policy, actorRole, v.ActorInboxID, p.TargetInboxID) {
			return fmt.Errorf("admin_change denied for %s: %w", p.TargetInboxID, xmtperr.ErrPolicyViolation)
		}
		if err := validateAdminListInvariants(v.Mutable, v.ActorInboxID, p); err != nil {
			return err
		}
	case ProposalClassPermissionChange:
		if !roleAtLeast(actorRole, models.MemberRoleSuperAdmin) {
			return fmt.Errorf("permission_change requires super-admin: %w", xmtperr.ErrPolicyViolation)
		}
	}
	return nil
}
