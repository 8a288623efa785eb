// Package policy is the policy and metadata engine: every inbound commit
// is validated against the group's Policy Set before it is allowed to
// merge. Grounded in
// internal/domains/group/model/domain.go's role enum and
// internal/domains/group/usecase/membership_service.go's permission-check
// style (CanManageMembers/IsOwner/owner-immunity), generalized from a
// fixed three-tier owner/admin/user model to the MLS super-admin/admin/
// member hierarchy derived from a group's mutable metadata.
package policy

import "github.com/xmtp/libxmtp-sub002/pkg/models"

// RoleOf derives an inbox's current role from mutable metadata; member
// permission levels are never stored directly.
func RoleOf(mutable models.MutableMetadata, inboxID string) models.MemberRole {
	for _, id := range mutable.SuperAdminInboxIDs {
		if id == inboxID {
			return models.MemberRoleSuperAdmin
		}
	}
	for _, id := range mutable.AdminInboxIDs {
		if id == inboxID {
			return models.MemberRoleAdmin
		}
	}
	return models.MemberRoleMember
}

func roleAtLeast(role, min models.MemberRole) bool {
	return role >= min
}
