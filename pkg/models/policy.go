package models

// MembershipPolicy gates who may add/remove members or admins.
type MembershipPolicy string

const (
	PolicyAllow                     MembershipPolicy = "allow"
	PolicyDeny                      MembershipPolicy = "deny"
	PolicyAllowSameMember           MembershipPolicy = "allow_same_member"
	PolicyAllowIfAdminOrSuperAdmin  MembershipPolicy = "allow_if_admin_or_super_admin"
	PolicyAllowIfSuperAdmin         MembershipPolicy = "allow_if_super_admin"
)

// MetadataPolicy gates a single mutable-metadata field.
type MetadataPolicy string

const (
	MetadataPolicyAllow                    MetadataPolicy = "allow"
	MetadataPolicyDeny                     MetadataPolicy = "deny"
	MetadataPolicyAllowIfAdminOrSuperAdmin MetadataPolicy = "allow_if_admin_or_super_admin"
	MetadataPolicyAllowIfSuperAdmin        MetadataPolicy = "allow_if_super_admin"
)

// PermissionsPolicy governs changes to the PolicySet itself; fixed at
// AllowIfSuperAdmin by construction.
type PermissionsPolicy string

const PermissionsPolicyAllowIfSuperAdmin PermissionsPolicy = "allow_if_super_admin"

// PolicySet is the full configurable validation surface for one group.
type PolicySet struct {
	Name                  string                    `json:"name"`
	AddMemberPolicy       MembershipPolicy          `json:"add_member_policy"`
	RemoveMemberPolicy    MembershipPolicy          `json:"remove_member_policy"`
	AddAdminPolicy        MembershipPolicy          `json:"add_admin_policy"`
	RemoveAdminPolicy     MembershipPolicy          `json:"remove_admin_policy"`
	UpdateMetadataPolicy  map[string]MetadataPolicy `json:"update_metadata_policy"`
	UpdatePermissionsPolicy PermissionsPolicy       `json:"update_permissions_policy"`
}

// DefaultPolicySet: allow anyone to add/remove/update metadata; admin
// changes require super-admin.
func DefaultPolicySet() PolicySet {
	return PolicySet{
		Name:               "default",
		AddMemberPolicy:    PolicyAllow,
		RemoveMemberPolicy: PolicyAllow,
		AddAdminPolicy:     PolicyAllowIfSuperAdmin,
		RemoveAdminPolicy:  PolicyAllowIfSuperAdmin,
		UpdateMetadataPolicy: map[string]MetadataPolicy{
			"name":             MetadataPolicyAllow,
			"description":      MetadataPolicyAllow,
			"image_url_square": MetadataPolicyAllow,
		},
		UpdatePermissionsPolicy: PermissionsPolicyAllowIfSuperAdmin,
	}
}

// AdminsOnlyPolicySet: add/remove/metadata require admin-or-super-admin;
// admin changes remain super-admin only.
func AdminsOnlyPolicySet() PolicySet {
	return PolicySet{
		Name:               "admins_only",
		AddMemberPolicy:    PolicyAllowIfAdminOrSuperAdmin,
		RemoveMemberPolicy: PolicyAllowIfAdminOrSuperAdmin,
		AddAdminPolicy:     PolicyAllowIfSuperAdmin,
		RemoveAdminPolicy:  PolicyAllowIfSuperAdmin,
		UpdateMetadataPolicy: map[string]MetadataPolicy{
			"name":             MetadataPolicyAllowIfAdminOrSuperAdmin,
			"description":      MetadataPolicyAllowIfAdminOrSuperAdmin,
			"image_url_square": MetadataPolicyAllowIfAdminOrSuperAdmin,
		},
		UpdatePermissionsPolicy: PermissionsPolicyAllowIfSuperAdmin,
	}
}
