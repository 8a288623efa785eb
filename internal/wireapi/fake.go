package wireapi

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// FakeClient is an in-memory stand-in for the real backend, grounded in
// internal/waku/node.go's TransportMock branch: no network, deterministic
// ordering, and an explicit rate limiter standing in for the real
// backend's retryable rate-limit error class.
type FakeClient struct {
	mu             sync.Mutex
	limiter        *rate.Limiter
	nextSeqByGroup map[string]uint64
	messages       map[string][]Envelope
	welcomes       map[string][]WelcomeEnvelope
	keyPackages    map[string]KeyPackageResult
	inboxIDs       map[string]string
	identityLog    map[string][]IdentityUpdate
	originatorID   uint32
}

// NewFakeClient builds a fake wire client. rps/burst configure the
// publish-rate limiter; pass rate.Inf, 0 for an effectively unlimited one.
func NewFakeClient(rps rate.Limit, burst int) *FakeClient {
	return &FakeClient{
		limiter:        rate.NewLimiter(rps, burst),
		nextSeqByGroup: make(map[string]uint64),
		messages:       make(map[string][]Envelope),
		welcomes:       make(map[string][]WelcomeEnvelope),
		keyPackages:    make(map[string]KeyPackageResult),
		inboxIDs:       make(map[string]string),
		identityLog:    make(map[string][]IdentityUpdate),
		originatorID:   1,
	}
}

// ErrRateLimited is a retryable wire error.
var ErrRateLimited = rateLimitedError{}

type rateLimitedError struct{}

func (rateLimitedError) Error() string { return "wireapi: rate limited" }

func (c *FakeClient) checkRateLimit(ctx context.Context) error {
	if c.limiter.Allow() {
		return nil
	}
	return ErrRateLimited
}

func (c *FakeClient) PublishCommit(ctx context.Context, groupID []byte, serializedCommit []byte) (PublishAck, error) {
	return c.publish(ctx, groupID, serializedCommit)
}

func (c *FakeClient) PublishMessage(ctx context.Context, groupID []byte, serializedApplicationMessage []byte) (PublishAck, error) {
	return c.publish(ctx, groupID, serializedApplicationMessage)
}

func (c *FakeClient) publish(ctx context.Context, groupID, payload []byte) (PublishAck, error) {
	if err := c.checkRateLimit(ctx); err != nil {
		return PublishAck{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := string(groupID)
	seq := c.nextSeqByGroup[key] + 1
	c.nextSeqByGroup[key] = seq
	env := Envelope{
		GroupID:      append([]byte(nil), groupID...),
		Payload:      append([]byte(nil), payload...),
		SequenceID:   seq,
		OriginatorID: c.originatorID,
		CreatedNs:    int64(seq) * 1_000_000,
	}
	c.messages[key] = append(c.messages[key], env)
	return PublishAck{SequenceID: seq, OriginatorID: c.originatorID}, nil
}

func (c *FakeClient) PublishWelcome(ctx context.Context, installationKey, hpkePublicKey, encryptedWelcome []byte, algorithm string) error {
	if err := c.checkRateLimit(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := string(installationKey)
	seq := uint64(len(c.welcomes[key]) + 1)
	c.welcomes[key] = append(c.welcomes[key], WelcomeEnvelope{
		Envelope: Envelope{
			SequenceID:   seq,
			OriginatorID: c.originatorID,
			CreatedNs:    int64(seq) * 1_000_000,
		},
		InstallationKey:  append([]byte(nil), installationKey...),
		HpkePublicKey:    append([]byte(nil), hpkePublicKey...),
		EncryptedWelcome: append([]byte(nil), encryptedWelcome...),
		Algorithm:        algorithm,
	})
	return nil
}

func (c *FakeClient) QueryMessages(ctx context.Context, groupID []byte, cursor Cursor) ([]Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := c.messages[string(groupID)]
	out := make([]Envelope, 0, len(all))
	for _, e := range all {
		if e.SequenceID > cursor.SequenceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceID < out[j].SequenceID })
	return out, nil
}

func (c *FakeClient) QueryWelcomes(ctx context.Context, installationKey []byte, cursor Cursor) ([]WelcomeEnvelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := c.welcomes[string(installationKey)]
	out := make([]WelcomeEnvelope, 0, len(all))
	for _, w := range all {
		if w.SequenceID > cursor.SequenceID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (c *FakeClient) SubscribeMessages(ctx context.Context, groupIDs [][]byte) (MessageStream, error) {
	ch := make(chan Envelope)
	closed := make(chan struct{})
	var once sync.Once
	go func() { <-ctx.Done(); once.Do(func() { close(closed) }) }()
	return MessageStream{
		C:     ch,
		Close: func() { once.Do(func() { close(closed) }) },
	}, nil
}

func (c *FakeClient) SubscribeWelcomes(ctx context.Context, installationKey []byte) (WelcomeStream, error) {
	ch := make(chan WelcomeEnvelope)
	closed := make(chan struct{})
	var once sync.Once
	go func() { <-ctx.Done(); once.Do(func() { close(closed) }) }()
	return WelcomeStream{
		C:     ch,
		Close: func() { once.Do(func() { close(closed) }) },
	}, nil
}

func (c *FakeClient) SetKeyPackage(installationID string, result KeyPackageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyPackages[installationID] = result
}

func (c *FakeClient) GetKeyPackages(ctx context.Context, installationIDs []string) (map[string]KeyPackageResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]KeyPackageResult, len(installationIDs))
	for _, id := range installationIDs {
		if res, ok := c.keyPackages[id]; ok {
			out[id] = res
		} else {
			out[id] = KeyPackageResult{Err: ErrUnknownInstallation}
		}
	}
	return out, nil
}

var ErrUnknownInstallation = unknownInstallationError{}

type unknownInstallationError struct{}

func (unknownInstallationError) Error() string { return "wireapi: unknown installation" }

func (c *FakeClient) SetInboxID(identifier, inboxID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inboxIDs[identifier] = inboxID
}

func (c *FakeClient) GetInboxIDs(ctx context.Context, identifiers []string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(identifiers))
	for _, id := range identifiers {
		out[id] = c.inboxIDs[id]
	}
	return out, nil
}

func (c *FakeClient) AppendIdentityUpdate(u IdentityUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identityLog[u.InboxID] = append(c.identityLog[u.InboxID], u)
}

func (c *FakeClient) GetIdentityUpdates(ctx context.Context, inboxIDs []string, sinceSequence uint64) ([]IdentityUpdate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []IdentityUpdate
	for _, inboxID := range inboxIDs {
		for _, u := range c.identityLog[inboxID] {
			if u.SequenceID > sinceSequence {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (c *FakeClient) VerifySmartContractWalletSignature(ctx context.Context, inboxID string, signature []byte) (bool, error) {
	// Smart-contract wallet signature verification is out of scope; the
	// fake always accepts non-empty signatures.
	return len(signature) > 0, nil
}

func (c *FakeClient) GetNewestMessageMetadata(ctx context.Context, groupID []byte) (NewestMessageMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := c.messages[string(groupID)]
	if len(all) == 0 {
		return NewestMessageMetadata{}, nil
	}
	newest := all[len(all)-1]
	if err := ValidateCreatedNs(newest.CreatedNs); err != nil {
		return NewestMessageMetadata{}, err
	}
	return NewestMessageMetadata{
		Cursor:    Cursor{OriginatorID: newest.OriginatorID, SequenceID: newest.SequenceID},
		CreatedNs: newest.CreatedNs,
	}, nil
}
