package policy

import "github.com/xmtp/libxmtp-sub002/pkg/models"

// validateAdminListInvariants enforces admin list semantics beyond plain
// policy evaluation: the super-admin set may never
// go empty, admins cannot self-promote, and a super-admin may only
// demote itself if another super-admin remains.
func validateAdminListInvariants(mutable models.MutableMetadata, actorInboxID string, p Proposal) error {
	switch p.AdminChangeType {
	case models.UpdateAdminListRemoveSuper:
		if len(mutable.SuperAdminInboxIDs) <= 1 {
			return ErrLastSuperAdmin
		}
		if p.TargetInboxID == actorInboxID && len(mutable.SuperAdminInboxIDs) < 2 {
			return ErrLastSuperAdmin
		}
	case models.UpdateAdminListAddSuper:
		actorRole := RoleOf(mutable, actorInboxID)
		if p.TargetInboxID == actorInboxID && actorRole == models.MemberRoleAdmin {
			return ErrSelfPromotion
		}
	}
	return nil
}
