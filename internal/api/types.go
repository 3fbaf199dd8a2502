package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/slotboard/booking-service/internal/slot"
)

type CreateSlotsRequest struct {
	OwnerID  string   `json:"owner_id" validate:"required,uuid"`
	Instants []string `json:"instants" validate:"required,min=1,max=500,dive,required"`
	Notes    string   `json:"notes" validate:"max=2000"`
}

type CompleteRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type SlotResponse struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      string     `json:"status"`
	ClientRef   *uuid.UUID `json:"client_ref,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toSlotResponse(s *slot.Slot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		ScheduledAt: s.ScheduledAt,
		Status:      string(s.Status),
		ClientRef:   s.ClientRef,
		Notes:       s.Notes,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

type InvalidInstant struct {
	Instant string `json:"instant"`
	Reason  string `json:"reason"`
}

type CreateSlotsResponse struct {
	Created          []SlotResponse   `json:"created"`
	SkippedConflicts []time.Time      `json:"skipped_conflicts"`
	Invalid          []InvalidInstant `json:"invalid"`
}

type OccupiedResponse struct {
	Occupied []time.Time `json:"occupied"`
}

type ListSlotsResponse struct {
	Slots  []SlotResponse `json:"slots"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
