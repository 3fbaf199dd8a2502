package slot

import "time"

// CanCancel reports whether a cancellation requested at now still satisfies
// the notice window for a slot scheduled at scheduledAt:
//
//	now + minNotice <= scheduledAt
//
// It is pure; the caller decides which clock is authoritative. Server-side
// callers must pass the server clock, since a client-supplied now is advisory
// only.
func CanCancel(scheduledAt, now time.Time, minNotice time.Duration) bool {
	return !now.Add(minNotice).After(scheduledAt)
}
