package sync

import (
	"github.com/xmtp/libxmtp-sub002/internal/codec"
	"github.com/xmtp/libxmtp-sub002/internal/identity"
	"github.com/xmtp/libxmtp-sub002/internal/intent"
	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/metrics"
	"github.com/xmtp/libxmtp-sub002/internal/mlsprovider"
	"github.com/xmtp/libxmtp-sub002/internal/storage"
	"github.com/xmtp/libxmtp-sub002/internal/wireapi"
)

// Orchestrator owns one installation's sync state: welcome/conversation
// sync, the global sweep, and the four subscription streams, all driven
// off the same store/provider/wire triple the intent pipeline uses.
type Orchestrator struct {
	store            *storage.Store
	provider         mlsprovider.Provider
	wire             wireapi.Client
	resolver         *identity.Resolver
	pipeline         *intent.Pipeline
	registry         *codec.Registry
	installationKey  []byte
	log              logging.Component
	metrics          *metrics.Registry // nil disables gauge/counter updates
}

// NewOrchestrator builds an Orchestrator. reg may be nil, in which case
// the orchestrator runs without updating any collectors.
func NewOrchestrator(
	store *storage.Store,
	provider mlsprovider.Provider,
	wire wireapi.Client,
	resolver *identity.Resolver,
	pipeline *intent.Pipeline,
	registry *codec.Registry,
	installationKey []byte,
	log logging.Component,
	reg *metrics.Registry,
) *Orchestrator {
	return &Orchestrator{
		store:           store,
		provider:        provider,
		wire:            wire,
		resolver:        resolver,
		pipeline:        pipeline,
		registry:        registry,
		installationKey: installationKey,
		log:             log,
		metrics:         reg,
	}
}
