// Package mlsprovider defines the black-box MLS cryptographic provider
// contract (create_group/process_message/stage_commit/merge_commit/
// export_secret are treated as opaque primitives, never reimplemented here)
// and ships an in-memory fake good enough to drive the intent pipeline
// and sync orchestrator end to end in tests.
package mlsprovider

import (
	"context"
	"errors"
)

// ErrStaleCommit is returned by MergeCommit when the local epoch has
// already advanced past a staged commit's FromEpoch: another commit landed
// first and this one must be reconciled instead of merged.
var ErrStaleCommit = errors.New("mlsprovider: stale commit, epoch advanced since staging")

// Proposal is one MLS proposal contained in a staged commit: add, remove,
// a metadata/permissions extension update, or a key update.
type Proposal struct {
	AddInstallationIDs    []string
	RemoveInstallationIDs []string
	ExtensionUpdate       []byte // serialized GroupContext extension blob, opaque to the provider
	IsKeyUpdate           bool
}

// StagedCommit is an MLS commit that has been built but not yet merged.
type StagedCommit struct {
	GroupID          []byte
	FromEpoch        uint64
	ToEpoch          uint64
	SerializedCommit []byte
	Proposals        []Proposal
	Welcomes         map[string][]byte // installation id -> encrypted welcome, non-empty for adds
}

// ProcessedMessageKind distinguishes what an inbound envelope decoded to.
type ProcessedMessageKind string

const (
	ProcessedKindApplicationMessage ProcessedMessageKind = "application_message"
	ProcessedKindCommit             ProcessedMessageKind = "commit"
)

// ProcessedMessage is the result of decrypting one inbound MLS envelope.
type ProcessedMessage struct {
	Kind                ProcessedMessageKind
	SenderInboxID       string
	SenderInstallation  string
	ApplicationPayload  []byte
	Commit              StagedCommit
	ResultingEpoch      uint64
}

// GroupHandle is an opaque reference to provider-internal group state.
// The rest of the system never inspects its fields directly.
type GroupHandle struct {
	GroupID []byte
	state   any
}

// Provider is the black-box MLS contract. Every method can suspend on
// crypto work, so Context is threaded through every call even though the
// fake never actually blocks.
type Provider interface {
	CreateGroup(ctx context.Context, groupID []byte, creatorInstallationID string) (*GroupHandle, error)
	LoadGroup(ctx context.Context, groupID []byte) (*GroupHandle, error)
	JoinGroup(ctx context.Context, groupID []byte, encryptedWelcome []byte) (*GroupHandle, error)
	StageCommit(ctx context.Context, g *GroupHandle, proposals []Proposal) (StagedCommit, error)
	MergeCommit(ctx context.Context, g *GroupHandle, staged StagedCommit) error
	ProcessMessage(ctx context.Context, g *GroupHandle, envelope []byte) (ProcessedMessage, error)
	ExportSecret(ctx context.Context, g *GroupHandle, label string, context []byte, length int) ([]byte, error)
	Epoch(g *GroupHandle) uint64
	Members(g *GroupHandle) []string
}
