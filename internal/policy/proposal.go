package policy

import "github.com/xmtp/libxmtp-sub002/pkg/models"

// ProposalClass is the classification a proposal is sorted into before
// the per-class policy check runs.
type ProposalClass string

const (
	ProposalClassAddMember       ProposalClass = "add_member"
	ProposalClassRemoveMember    ProposalClass = "remove_member"
	ProposalClassMetadataChange  ProposalClass = "metadata_change"
	ProposalClassAdminChange     ProposalClass = "admin_change"
	ProposalClassPermissionChange ProposalClass = "permission_change"
)

// Proposal is one classified change a commit carries. Only the fields
// relevant to its Class are meaningful.
type Proposal struct {
	Class              ProposalClass
	TargetInboxID      string
	MetadataField      string
	AdminChangeType    models.UpdateAdminListType
	TouchesImmutable   bool
}
