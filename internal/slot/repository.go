package slot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
//
// Conditional updates (ClaimSlot, CancelSlot, CompleteSlot, SoftDeleteSlot)
// are the authoritative guards against races: each is a single UPDATE with
// the expected current state in its WHERE clause and returns ErrSlotNotFound
// when no row matched. The service re-reads to distinguish "gone" from
// "state changed".
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// InsertAvailableSlots inserts one Available slot per instant, skipping
	// instants that collide with an active slot (ON CONFLICT DO NOTHING on
	// the partial unique index). Returns the created rows; instants missing
	// from the result were conflicts.
	InsertAvailableSlots(ctx context.Context, ownerID uuid.UUID, instants []time.Time, notes string) ([]Slot, error)

	// OccupiedBetween returns instants of active slots in [from, to).
	OccupiedBetween(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]time.Time, error)

	ClaimSlot(ctx context.Context, slotID, clientRef uuid.UUID) (*Slot, error)
	CancelSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)
	CompleteSlot(ctx context.Context, slotID uuid.UUID, notes string) (*Slot, error)
	SoftDeleteSlot(ctx context.Context, slotID uuid.UUID) error

	ListSlotsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Slot, error)

	InsertEvent(ctx context.Context, ev SlotEvent) error
}
