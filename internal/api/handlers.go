package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/slotboard/booking-service/internal/slot"
)

var validate = validator.New()

// BookingService is what the handlers need from the slot service.
type BookingService interface {
	PublishSlots(ctx context.Context, actor slot.Actor, ownerID uuid.UUID, instants []time.Time, notes string) (*slot.PublishResult, error)
	CheckOccupied(ctx context.Context, ownerID uuid.UUID, instants []time.Time) ([]time.Time, error)
	Book(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error)
	Cancel(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error)
	Complete(ctx context.Context, actor slot.Actor, slotID uuid.UUID, notes string) (*slot.Slot, error)
	Delete(ctx context.Context, actor slot.Actor, slotID uuid.UUID) error
	GetSlot(ctx context.Context, id uuid.UUID) (*slot.Slot, error)
	ListSlots(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]slot.Slot, error)
}

func createSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		ownerID, err := uuid.Parse(req.OwnerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
			return
		}

		instants := make([]time.Time, 0, len(req.Instants))
		for _, raw := range req.Instants {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_instant", "instants must be RFC3339 timestamps: "+raw)
				return
			}
			instants = append(instants, t)
		}

		actor, _ := ActorFromContext(r.Context())
		result, err := svc.PublishSlots(r.Context(), actor, ownerID, instants, req.Notes)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		resp := CreateSlotsResponse{
			Created:          make([]SlotResponse, 0, len(result.Created)),
			SkippedConflicts: result.SkippedConflicts,
			Invalid:          make([]InvalidInstant, 0, len(result.Invalid)),
		}
		if resp.SkippedConflicts == nil {
			resp.SkippedConflicts = []time.Time{}
		}
		for i := range result.Created {
			resp.Created = append(resp.Created, toSlotResponse(&result.Created[i]))
		}
		for _, ie := range result.Invalid {
			resp.Invalid = append(resp.Invalid, InvalidInstant{
				Instant: ie.Instant.Format(time.RFC3339),
				Reason:  ie.Reason,
			})
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func checkOccupiedHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
			return
		}

		raws := r.URL.Query()["instant"]
		if len(raws) == 0 {
			writeError(w, http.StatusBadRequest, "missing_instants", "at least one instant parameter is required")
			return
		}

		instants := make([]time.Time, 0, len(raws))
		for _, raw := range raws {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_instant", "instants must be RFC3339 timestamps: "+raw)
				return
			}
			instants = append(instants, t)
		}

		occupied, err := svc.CheckOccupied(r.Context(), ownerID, instants)
		if err != nil {
			handleSlotError(w, err)
			return
		}
		if occupied == nil {
			occupied = []time.Time{}
		}

		writeJSON(w, http.StatusOK, OccupiedResponse{Occupied: occupied})
	}
}

func bookSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		actor, _ := ActorFromContext(r.Context())
		booked, err := svc.Book(r.Context(), actor, slotID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(booked))
	}
}

func cancelSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		actor, _ := ActorFromContext(r.Context())
		cancelled, err := svc.Cancel(r.Context(), actor, slotID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(cancelled))
	}
}

func completeSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		var req CompleteRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
			if err := validate.Struct(req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
		}

		actor, _ := ActorFromContext(r.Context())
		completed, err := svc.Complete(r.Context(), actor, slotID, req.Notes)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(completed))
	}
}

func deleteSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		actor, _ := ActorFromContext(r.Context())
		if err := svc.Delete(r.Context(), actor, slotID); err != nil {
			handleSlotError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := slotIDParam(w, r)
		if !ok {
			return
		}

		sl, err := svc.GetSlot(r.Context(), slotID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(sl))
	}
}

func listSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		slots, err := svc.ListSlots(r.Context(), ownerID, limit, offset)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		resp := ListSlotsResponse{
			Slots:  make([]SlotResponse, 0, len(slots)),
			Limit:  limit,
			Offset: offset,
		}
		for i := range slots {
			resp.Slots = append(resp.Slots, toSlotResponse(&slots[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func slotIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleSlotError(w http.ResponseWriter, err error) {
	var stateErr *slot.StateError
	switch {
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, slot.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, slot.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	case errors.Is(err, slot.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "slot state changed, refresh availability")
	case errors.Is(err, slot.ErrPublishContended):
		writeError(w, http.StatusConflict, "publish_contended", err.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, "invalid_transition", stateErr.Error())
	case errors.Is(err, slot.ErrPolicyViolation):
		writeError(w, http.StatusUnprocessableEntity, "policy_violation", err.Error())
	case errors.Is(err, slot.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, slot.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "temporary failure, retry with backoff")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
