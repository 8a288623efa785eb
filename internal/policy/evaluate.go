package policy

import "github.com/xmtp/libxmtp-sub002/pkg/models"

// evaluateMembershipPolicy decides whether actorInboxID (at actorRole) may
// act on targetInboxID under policy.
func evaluateMembershipPolicy(p models.MembershipPolicy, actorRole models.MemberRole, actorInboxID, targetInboxID string) bool {
	switch p {
	case models.PolicyAllow:
		return true
	case models.PolicyDeny:
		return false
	case models.PolicyAllowSameMember:
		return actorInboxID == targetInboxID
	case models.PolicyAllowIfAdminOrSuperAdmin:
		return roleAtLeast(actorRole, models.MemberRoleAdmin)
	case models.PolicyAllowIfSuperAdmin:
		return roleAtLeast(actorRole, models.MemberRoleSuperAdmin)
	default:
		return false
	}
}

// evaluateMetadataPolicy implements the update_metadata_policy map lookup;
// a field with no explicit entry defaults to deny (fail closed).
func evaluateMetadataPolicy(policies map[string]models.MetadataPolicy, field string, actorRole models.MemberRole) bool {
	p, ok := policies[field]
	if !ok {
		return false
	}
	switch p {
	case models.MetadataPolicyAllow:
		return true
	case models.MetadataPolicyDeny:
		return false
	case models.MetadataPolicyAllowIfAdminOrSuperAdmin:
		return roleAtLeast(actorRole, models.MemberRoleAdmin)
	case models.MetadataPolicyAllowIfSuperAdmin:
		return roleAtLeast(actorRole, models.MemberRoleSuperAdmin)
	default:
		return false
	}
}
