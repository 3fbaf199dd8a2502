package slot

import (
	"time"

	"github.com/google/uuid"
)

// Status is the slot lifecycle state. Soft deletion is tracked separately via
// DeletedAt and is only reachable from StatusAvailable.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBooked, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Event names a requested transition.
type Event string

const (
	EventClaim    Event = "claim"
	EventCancel   Event = "cancel"
	EventComplete Event = "complete"
	EventDelete   Event = "delete"
)

// NextStatus returns the target status for (from, event) if the transition is
// legal. Cancelled and Completed are terminal; deletion is only legal from
// Available and is not a status of its own.
func NextStatus(from Status, event Event) (Status, bool) {
	switch from {
	case StatusAvailable:
		switch event {
		case EventClaim:
			return StatusBooked, true
		case EventDelete:
			return StatusAvailable, true // soft delete keeps the status
		}
	case StatusBooked:
		switch event {
		case EventCancel:
			return StatusCancelled, true
		case EventComplete:
			return StatusCompleted, true
		}
	case StatusCancelled, StatusCompleted:
	}
	return "", false
}

type Provider struct {
	ID              uuid.UUID
	Name            string
	Email           *string
	MinCancelNotice *time.Duration
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Client struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is one instant of provider availability.
type Slot struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	ScheduledAt time.Time // always UTC
	Status      Status
	ClientRef   *uuid.UUID // set iff Booked or Completed
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Transition is a committed status change, as surfaced to subscribers.
// From is empty when the slot was just published.
type Transition struct {
	SlotID  uuid.UUID
	OwnerID uuid.UUID
	From    Status
	To      Status
	At      time.Time
}

type SlotEvent struct {
	ID         int64
	SlotID     uuid.UUID
	FromStatus string
	ToStatus   string
	Payload    []byte
	CreatedAt  time.Time
}

// Role identifies which side of a booking the actor is on.
type Role string

const (
	RoleProvider Role = "provider"
	RoleClient   Role = "client"
)

// Actor is the authenticated caller, supplied by the identity layer.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// NormalizeInstant converts an instant to the canonical form used for
// conflict comparison: UTC, second precision, no rounding beyond that.
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// DedupeInstants normalizes and removes duplicates, preserving first-seen
// order.
func DedupeInstants(instants []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(instants))
	out := make([]time.Time, 0, len(instants))
	for _, t := range instants {
		n := NormalizeInstant(t)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
