package mlsprovider

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"

	"golang.org/x/crypto/hkdf"
	"crypto/sha256"
)

// ErrGroupNotFound mirrors xmtp_mls's GroupError::GroupNotFound for the fake.
var ErrGroupNotFound = errors.New("mlsprovider: group not found")

// fakeGroupState is the serializable internal state the fake provider
// threads through StageCommit/MergeCommit, modeled directly on
// germtb-mlsgit/internal/mls/group.go's groupState: a flat member list
// plus an epoch counter advanced via HKDF, rather than a real TreeKEM tree.
type fakeGroupState struct {
	mu          sync.Mutex
	GroupID     []byte
	EpochValue  uint64
	EpochSecret []byte
	Members     map[string]bool // installation id -> active
}

// FakeProvider is the in-memory MLS provider used by tests; the fake wire
// client in internal/wireapi does not depend on it. It is not cryptographically meaningful:
// "staged commits" are just serialized proposal lists, "secrets" are HKDF
// outputs over a process-local root secret. Good enough to exercise the
// intent pipeline's epoch bookkeeping, which is the actual thing under test.
type FakeProvider struct {
	mu     sync.Mutex
	groups map[string]*fakeGroupState
	root   []byte
}

// NewFakeProvider seeds a fresh root secret, analogous to
// GenerateMLSKeys in germtb-mlsgit.
func NewFakeProvider() *FakeProvider {
	root := make([]byte, 32)
	_, _ = rand.Read(root)
	return &FakeProvider{
		groups: make(map[string]*fakeGroupState),
		root:   root,
	}
}

func groupKey(groupID []byte) string { return string(groupID) }

func (p *FakeProvider) CreateGroup(_ context.Context, groupID []byte, creatorInstallationID string) (*GroupHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	secret := p.deriveEpochSecret(groupID, 0)
	state := &fakeGroupState{
		GroupID:     append([]byte(nil), groupID...),
		EpochValue:  0,
		EpochSecret: secret,
		Members:     map[string]bool{creatorInstallationID: true},
	}
	p.groups[groupKey(groupID)] = state
	return &GroupHandle{GroupID: state.GroupID, state: state}, nil
}

func (p *FakeProvider) LoadGroup(_ context.Context, groupID []byte) (*GroupHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.groups[groupKey(groupID)]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return &GroupHandle{GroupID: state.GroupID, state: state}, nil
}

// JoinGroup materializes a GroupHandle for a welcome's target group. The
// fake models the welcome payload as opaque (its real shape is an
// HPKE-sealed ratchet tree secret the joining installation decrypts); here
// the group state already exists in the single-process fake (the inviter
// created it via CreateGroup/StageCommit in the same test harness), so
// joining is just loading it.
func (p *FakeProvider) JoinGroup(ctx context.Context, groupID []byte, _ []byte) (*GroupHandle, error) {
	return p.LoadGroup(ctx, groupID)
}

func (p *FakeProvider) StageCommit(_ context.Context, g *GroupHandle, proposals []Proposal) (StagedCommit, error) {
	state := g.state.(*fakeGroupState)
	state.mu.Lock()
	defer state.mu.Unlock()

	welcomes := make(map[string][]byte)
	members := make(map[string]bool, len(state.Members))
	for k, v := range state.Members {
		members[k] = v
	}
	for _, prop := range proposals {
		for _, id := range prop.AddInstallationIDs {
			members[id] = true
			welcomes[id] = p.deriveEpochSecret(state.GroupID, state.EpochValue+1)
		}
		for _, id := range prop.RemoveInstallationIDs {
			delete(members, id)
		}
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	payload, err := json.Marshal(struct {
		Members   []string
		Proposals []Proposal
	}{Members: ids, Proposals: proposals})
	if err != nil {
		return StagedCommit{}, err
	}

	return StagedCommit{
		GroupID:          state.GroupID,
		FromEpoch:        state.EpochValue,
		ToEpoch:           state.EpochValue + 1,
		SerializedCommit: payload,
		Proposals:        proposals,
		Welcomes:         welcomes,
	}, nil
}

func (p *FakeProvider) MergeCommit(_ context.Context, g *GroupHandle, staged StagedCommit) error {
	state := g.state.(*fakeGroupState)
	state.mu.Lock()
	defer state.mu.Unlock()
	if staged.FromEpoch != state.EpochValue {
		return ErrStaleCommit
	}
	for _, prop := range staged.Proposals {
		for _, id := range prop.AddInstallationIDs {
			state.Members[id] = true
		}
		for _, id := range prop.RemoveInstallationIDs {
			delete(state.Members, id)
		}
	}
	state.EpochValue = staged.ToEpoch
	state.EpochSecret = p.deriveEpochSecret(state.GroupID, state.EpochValue)
	return nil
}

func (p *FakeProvider) ProcessMessage(_ context.Context, g *GroupHandle, envelope []byte) (ProcessedMessage, error) {
	state := g.state.(*fakeGroupState)
	state.mu.Lock()
	defer state.mu.Unlock()

	var decoded struct {
		Members   []string
		Proposals []Proposal
	}
	if err := json.Unmarshal(envelope, &decoded); err == nil && len(decoded.Members) > 0 {
		return ProcessedMessage{
			Kind: ProcessedKindCommit,
			Commit: StagedCommit{
				GroupID:          state.GroupID,
				FromEpoch:        state.EpochValue,
				ToEpoch:          state.EpochValue + 1,
				SerializedCommit: envelope,
				Proposals:        decoded.Proposals,
			},
			ResultingEpoch: state.EpochValue + 1,
		}, nil
	}
	return ProcessedMessage{
		Kind:               ProcessedKindApplicationMessage,
		ApplicationPayload: envelope,
		ResultingEpoch:     state.EpochValue,
	}, nil
}

func (p *FakeProvider) ExportSecret(_ context.Context, g *GroupHandle, label string, context []byte, length int) ([]byte, error) {
	state := g.state.(*fakeGroupState)
	state.mu.Lock()
	defer state.mu.Unlock()
	r := hkdf.New(sha256.New, state.EpochSecret, context, []byte(label))
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *FakeProvider) Epoch(g *GroupHandle) uint64 {
	state := g.state.(*fakeGroupState)
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.EpochValue
}

func (p *FakeProvider) Members(g *GroupHandle) []string {
	state := g.state.(*fakeGroupState)
	state.mu.Lock()
	defer state.mu.Unlock()
	out := make([]string, 0, len(state.Members))
	for id := range state.Members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// deriveEpochSecret mirrors germtb-mlsgit's ExportEpochSecret/advanceEpoch:
// HKDF-SHA256 over the process root secret, salted by group id and epoch.
func (p *FakeProvider) deriveEpochSecret(groupID []byte, epoch uint64) []byte {
	salt := make([]byte, len(groupID)+8)
	copy(salt, groupID)
	binary.BigEndian.PutUint64(salt[len(groupID):], epoch)
	r := hkdf.New(sha256.New, p.root, salt, []byte("xmtp-fake-epoch-secret"))
	out := make([]byte, 32)
	_, _ = io.ReadFull(r, out)
	return out
}
