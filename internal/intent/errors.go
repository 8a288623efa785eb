package intent

import "errors"

// ErrPublishCancelled is returned by PublishIntent when ctx is cancelled
// mid-publish. The stored intent row is left untouched in ToPublish —
// cancellation never corrupts persistent state.
var ErrPublishCancelled = errors.New("intent: publish cancelled")

// ErrEpochConflictExceeded marks an intent that regressed to ToPublish and
// re-conflicted more times than cfg.EpochConflictRetryMax allows.
var ErrEpochConflictExceeded = errors.New("intent: epoch conflict retries exhausted")

// ErrPublishExhausted marks an intent whose publish retries were all spent.
var ErrPublishExhausted = errors.New("intent: publish retries exhausted")

// PublishPanicError wraps a panic recovered during PublishIntent. Like
// ErrPublishCancelled, recovering it never touches the stored intent row.
type PublishPanicError struct {
	Recovered any
}

func (e *PublishPanicError) Error() string {
	return "intent: publish panicked"
}
