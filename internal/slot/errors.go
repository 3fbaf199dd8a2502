package slot

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrClientNotFound   = errors.New("client not found")
	ErrSlotNotFound     = errors.New("slot not found")

	// ErrConflict means the slot was no longer in the state the caller saw;
	// the caller should re-query availability.
	ErrConflict = errors.New("slot state changed concurrently")

	// ErrPolicyViolation means the cancellation notice window has passed.
	ErrPolicyViolation = errors.New("cancellation window has passed")

	ErrUnauthorized = errors.New("actor may not act on this slot")

	// ErrStoreUnavailable marks transient backing-store failures; callers may
	// retry with backoff.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrPublishContended means another publish for the same owner and day
	// holds the lock; retry shortly.
	ErrPublishContended = errors.New("slot publish in progress for this day")
)

// StateError reports an illegal transition request, naming the offending
// (from, event) pair.
type StateError struct {
	From  Status
	Event Event
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a %s slot", e.Event, e.From)
}

// NewStateError builds a StateError for the given pair.
func NewStateError(from Status, event Event) *StateError {
	return &StateError{From: from, Event: event}
}

// InstantError carries per-instant validation detail for batch publishes.
type InstantError struct {
	Instant time.Time
	Reason  string
}

func (e InstantError) Error() string {
	return fmt.Sprintf("instant %s: %s", e.Instant.Format(time.RFC3339), e.Reason)
}
