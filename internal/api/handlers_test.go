package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotboard/booking-service/internal/slot"
)

const testSecret = "test-secret"

type stubService struct {
	publishResult *slot.PublishResult
	bookSlot      *slot.Slot
	bookErr       error
	cancelErr     error
	completeErr   error
	deleteErr     error

	gotActor    slot.Actor
	gotInstants []time.Time
}

func (s *stubService) PublishSlots(ctx context.Context, actor slot.Actor, ownerID uuid.UUID, instants []time.Time, notes string) (*slot.PublishResult, error) {
	s.gotActor = actor
	s.gotInstants = instants
	return s.publishResult, nil
}

func (s *stubService) CheckOccupied(ctx context.Context, ownerID uuid.UUID, instants []time.Time) ([]time.Time, error) {
	return nil, nil
}

func (s *stubService) Book(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error) {
	s.gotActor = actor
	return s.bookSlot, s.bookErr
}

func (s *stubService) Cancel(ctx context.Context, actor slot.Actor, slotID uuid.UUID) (*slot.Slot, error) {
	return s.bookSlot, s.cancelErr
}

func (s *stubService) Complete(ctx context.Context, actor slot.Actor, slotID uuid.UUID, notes string) (*slot.Slot, error) {
	return s.bookSlot, s.completeErr
}

func (s *stubService) Delete(ctx context.Context, actor slot.Actor, slotID uuid.UUID) error {
	return s.deleteErr
}

func (s *stubService) GetSlot(ctx context.Context, id uuid.UUID) (*slot.Slot, error) {
	return s.bookSlot, s.bookErr
}

func (s *stubService) ListSlots(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]slot.Slot, error) {
	return nil, nil
}

func testRouter(svc BookingService) http.Handler {
	r := chi.NewRouter()
	r.Use(ActorMiddleware(testSecret))
	r.Post("/slots", createSlotsHandler(svc))
	r.Post("/slots/{id}/book", bookSlotHandler(svc))
	r.Post("/slots/{id}/cancel", cancelSlotHandler(svc))
	r.Post("/slots/{id}/complete", completeSlotHandler(svc))
	r.Delete("/slots/{id}", deleteSlotHandler(svc))
	return r
}

func signTestToken(t *testing.T, actorID uuid.UUID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  actorID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sampleSlot(status slot.Status) *slot.Slot {
	now := time.Now().UTC()
	return &slot.Slot{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		ScheduledAt: now.Add(48 * time.Hour),
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateSlotsHandler(t *testing.T) {
	created := sampleSlot(slot.StatusAvailable)
	svc := &stubService{publishResult: &slot.PublishResult{
		Created:          []slot.Slot{*created},
		SkippedConflicts: []time.Time{created.ScheduledAt.Add(time.Hour)},
	}}
	router := testRouter(svc)

	providerID := uuid.New()
	token := signTestToken(t, providerID, "provider")

	rec := doRequest(t, router, http.MethodPost, "/slots", token, CreateSlotsRequest{
		OwnerID:  providerID.String(),
		Instants: []string{"2025-06-01T10:00:00Z", "2025-06-01T11:00:00+02:00"},
		Notes:    "standard hours",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateSlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Created, 1)
	assert.Len(t, resp.SkippedConflicts, 1)

	assert.Equal(t, providerID, svc.gotActor.ID)
	assert.Equal(t, slot.RoleProvider, svc.gotActor.Role)
	require.Len(t, svc.gotInstants, 2)
	// Offsets are parsed, not stripped: +02:00 at 11:00 is 09:00 UTC.
	assert.Equal(t, 9, svc.gotInstants[1].UTC().Hour())
}

func TestCreateSlotsHandlerRejectsBadInstant(t *testing.T) {
	router := testRouter(&stubService{})
	token := signTestToken(t, uuid.New(), "provider")

	rec := doRequest(t, router, http.MethodPost, "/slots", token, CreateSlotsRequest{
		OwnerID:  uuid.New().String(),
		Instants: []string{"tomorrow at ten"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookHandlerMapsErrors(t *testing.T) {
	slotID := uuid.New()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"conflict", slot.ErrConflict, http.StatusConflict, "conflict"},
		{"not found", slot.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
		{"forbidden", slot.ErrUnauthorized, http.StatusForbidden, "forbidden"},
		{"store down", slot.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(&stubService{bookErr: tt.err})
			token := signTestToken(t, uuid.New(), "client")

			rec := doRequest(t, router, http.MethodPost, "/slots/"+slotID.String()+"/book", token, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}
}

func TestCancelHandlerPolicyViolation(t *testing.T) {
	router := testRouter(&stubService{cancelErr: slot.ErrPolicyViolation})
	token := signTestToken(t, uuid.New(), "client")

	rec := doRequest(t, router, http.MethodPost, "/slots/"+uuid.New().String()+"/cancel", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCompleteHandlerStateError(t *testing.T) {
	router := testRouter(&stubService{
		completeErr: slot.NewStateError(slot.StatusCancelled, slot.EventComplete),
	})
	token := signTestToken(t, uuid.New(), "provider")

	rec := doRequest(t, router, http.MethodPost, "/slots/"+uuid.New().String()+"/complete", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_transition", resp.Error)
	assert.Contains(t, resp.Details, "cancelled")
}

func TestDeleteHandlerStateError(t *testing.T) {
	router := testRouter(&stubService{
		deleteErr: slot.NewStateError(slot.StatusBooked, slot.EventDelete),
	})
	token := signTestToken(t, uuid.New(), "provider")

	rec := doRequest(t, router, http.MethodDelete, "/slots/"+uuid.New().String(), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteHandlerSuccess(t *testing.T) {
	router := testRouter(&stubService{})
	token := signTestToken(t, uuid.New(), "provider")

	rec := doRequest(t, router, http.MethodDelete, "/slots/"+uuid.New().String(), token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestActorMiddlewareRejectsMissingToken(t *testing.T) {
	router := testRouter(&stubService{})

	rec := doRequest(t, router, http.MethodPost, "/slots/"+uuid.New().String()+"/book", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActorMiddlewareRejectsBadSignature(t *testing.T) {
	router := testRouter(&stubService{})

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  uuid.New().String(),
		"role": "provider",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, "/slots/"+uuid.New().String()+"/book", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActorMiddlewareRejectsUnknownRole(t *testing.T) {
	router := testRouter(&stubService{})
	token := signTestToken(t, uuid.New(), "superuser")

	rec := doRequest(t, router, http.MethodPost, "/slots/"+uuid.New().String()+"/book", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
