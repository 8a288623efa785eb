package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"

	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

const defaultCacheSize = 512

// Resolver implements Association State resolution's two core operations
// against a Wire API client, with an LRU cache of reconstructed per-inbox
// association state standing in for a resync on every call.
type Resolver struct {
	wire  wireapi.Client
	cache *stateCache
	log   logging.Component
}

func NewResolver(wire wireapi.Client, log logging.Component) *Resolver {
	return &Resolver{wire: wire, cache: newStateCache(defaultCacheSize), log: log}
}

// ResolveAssociationState fetches (or replays from cache) inboxID's active
// installation set as of asOfSequenceID.
func (r *Resolver) ResolveAssociationState(ctx context.Context, inboxID string, asOfSequenceID uint64) (AssociationState, error) {
	if cached, ok := r.cache.get(inboxID, asOfSequenceID); ok {
		return cached, nil
	}
	updates, err := r.wire.GetIdentityUpdates(ctx, []string{inboxID}, 0)
	if err != nil {
		return AssociationState{}, xmtperr.New(xmtperr.CategoryIdentity, xmtperr.ScopeGroup, true, err)
	}
	state := replayAssociationState(inboxID, updates, asOfSequenceID)
	r.cache.put(state)
	return state, nil
}

// ResolveExpectedInstallations computes the union of active installations
// across every inbox named in membership, each resolved as of its own
// sequence_id.
func (r *Resolver) ResolveExpectedInstallations(ctx context.Context, membership GroupMembership) (map[string]bool, error) {
	expected := make(map[string]bool)
	var errs error
	for inboxID, seq := range membership {
		state, err := r.ResolveAssociationState(ctx, inboxID, seq)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("inbox %s: %w", inboxID, err))
			continue
		}
		for _, id := range state.ActiveInstallationIDs() {
			expected[id] = true
		}
	}
	if errs != nil {
		return nil, errs
	}
	return expected, nil
}

// UpdateGroupMembershipResult reports per-installation KeyPackage fetch
// outcomes without aborting the whole add.
type UpdateGroupMembershipResult struct {
	ToAdd              []string
	ToRemove           []string
	FetchedKeyPackages map[string]models.KeyPackage
	FailedInstallations map[string]error
}

// ComputeInstallationDiff computes expected \ actual = to_add, actual \
// expected = to_remove, and for every to_add fetches and validates a
// KeyPackage against its lifetime window.
func (r *Resolver) ComputeInstallationDiff(ctx context.Context, membership GroupMembership, actual map[string]bool, nowNs int64) (UpdateGroupMembershipResult, error) {
	expected, err := r.ResolveExpectedInstallations(ctx, membership)
	if err != nil {
		return UpdateGroupMembershipResult{}, err
	}

	result := UpdateGroupMembershipResult{
		FetchedKeyPackages:  make(map[string]models.KeyPackage),
		FailedInstallations: make(map[string]error),
	}
	for id := range expected {
		if !actual[id] {
			result.ToAdd = append(result.ToAdd, id)
		}
	}
	for id := range actual {
		if !expected[id] {
			result.ToRemove = append(result.ToRemove, id)
		}
	}
	if len(result.ToAdd) == 0 {
		return result, nil
	}

	fetched, err := r.wire.GetKeyPackages(ctx, result.ToAdd)
	if err != nil {
		return UpdateGroupMembershipResult{}, xmtperr.New(xmtperr.CategoryIdentity, xmtperr.ScopeGroup, true, err)
	}
	for _, installationID := range result.ToAdd {
		res, ok := fetched[installationID]
		if !ok || res.Err != nil {
			failErr := fmt.Errorf("no key package returned")
			if ok && res.Err != nil {
				failErr = res.Err
			}
			result.FailedInstallations[installationID] = failErr
			r.log.Warn("compute_installation_diff", "key package fetch failed", "installation_id", installationID, "err", failErr)
			continue
		}
		var kp models.KeyPackage
		if err := json.Unmarshal(res.Payload, &kp); err != nil {
			result.FailedInstallations[installationID] = err
			continue
		}
		if !kp.ValidAt(nowNs) {
			result.FailedInstallations[installationID] = xmtperr.New(xmtperr.CategoryIdentity, xmtperr.ScopeIntent, false, fmt.Errorf("key package for %s outside validity window", installationID))
			continue
		}
		result.FetchedKeyPackages[installationID] = kp
	}
	return result, nil
}

// ValidateInitialGroupMembership checks that a welcome's membership
// extension resolves to exactly the actual leaf set of the staged group,
// rejecting the welcome as internally inconsistent otherwise.
func (r *Resolver) ValidateInitialGroupMembership(ctx context.Context, membership GroupMembership, actual map[string]bool) error {
	expected, err := r.ResolveExpectedInstallations(ctx, membership)
	if err != nil {
		return err
	}
	if len(expected) != len(actual) {
		return xmtperr.New(xmtperr.CategoryIdentity, xmtperr.ScopeGroup, false, xmtperr.ErrInvalidMembership)
	}
	for id := range expected {
		if !actual[id] {
			return xmtperr.New(xmtperr.CategoryIdentity, xmtperr.ScopeGroup, false, xmtperr.ErrInvalidMembership)
		}
	}
	return nil
}
