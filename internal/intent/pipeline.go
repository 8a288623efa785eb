// Package intent implements the four-state intent pipeline: stage builds
// an MLS commit via the provider, publish ships it to the backend with
// retry, confirm merges it once a matching inbound envelope lands, and
// reconcile regresses a stale-epoch intent back to ToPublish with a
// bounded retry budget.
package intent

import (
	"sync"

	"github.com/xmtp/libxmtp-sub002/internal/config"
	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/metrics"
	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
	"github.com/xmtp/libxmtp-sub002/pkg/models"
)

// Pipeline drives intents through ToPublish -> Published -> Committed (or
// Error), one group lock at a time.
type Pipeline struct {
	store    *storage.Store
	provider mlsprovider.Provider
	wire     wireapi.Client
	cfg      config.ClientConfig
	log      logging.Component
	metrics  *metrics.Registry // nil disables counter increments

	groupLocks sync.Map // string(groupID) -> *sync.Mutex
}

// NewPipeline builds a Pipeline. reg may be nil, in which case the
// pipeline runs without incrementing any counters.
func NewPipeline(store *storage.Store, provider mlsprovider.Provider, wire wireapi.Client, cfg config.ClientConfig, log logging.Component, reg *metrics.Registry) *Pipeline {
	return &Pipeline{store: store, provider: provider, wire: wire, cfg: cfg, log: log, metrics: reg}
}

// groupLock returns the mutex serializing staging/confirming for groupID,
// creating it on first use. Acquire the storage transaction first, then
// the per-group lock, never the reverse — callers that need both must
// take the lock only after any store read/write that doesn't itself need
// serialization against other group operations.
func (p *Pipeline) groupLock(groupID []byte) *sync.Mutex {
	key := string(groupID)
	lock, _ := p.groupLocks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

type kindClass int

const (
	kindClassMessage kindClass = iota
	kindClassCommit
)

// classifyKind buckets every models.IntentKind into message-shaped or
// commit-shaped publish behavior. send_message and send_sync_archive ship
// an application message; everything else stages and ships an MLS commit.
func classifyKind(kind models.IntentKind) kindClass {
	switch kind {
	case models.IntentKindSendMessage, models.IntentKindSendSyncArchive:
		return kindClassMessage
	default:
		return kindClassCommit
	}
}
