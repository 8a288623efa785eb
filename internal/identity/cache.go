package identity

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// stateCache caches the highest sequence_id seen per inbox; a cache hit is
// only valid when the caller asks for exactly the cached sequence_id (newer
// asks may have missed updates, and older asks need a fresh fetch narrowed
// to that point, since the cached state may include updates past it).
type stateCache struct {
	inner *lru.Cache[string, AssociationState]
}

func newStateCache(size int) *stateCache {
	c, err := lru.New[string, AssociationState](size)
	if err != nil {
		// size <= 0 is a programmer error; fall back to a usable minimum.
		c, _ = lru.New[string, AssociationState](1)
	}
	return &stateCache{inner: c}
}

// get returns a cached state usable for asOfSequenceID, or ok=false if the
// cache holds nothing or holds a state at a different sequence_id.
func (c *stateCache) get(inboxID string, asOfSequenceID uint64) (AssociationState, bool) {
	state, ok := c.inner.Get(inboxID)
	if !ok || state.SequenceID != asOfSequenceID {
		return AssociationState{}, false
	}
	return state, true
}

// put stores state, invalidating anything older cached under the same inbox.
func (c *stateCache) put(state AssociationState) {
	if existing, ok := c.inner.Get(state.InboxID); ok && existing.SequenceID > state.SequenceID {
		return
	}
	c.inner.Add(state.InboxID, state)
}
