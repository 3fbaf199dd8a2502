package slot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/slotboard/booking-service/internal/config"
	"github.com/slotboard/booking-service/internal/observability/metrics"
	"github.com/slotboard/booking-service/internal/redisclient"
	"github.com/slotboard/booking-service/pkg/logging"
)

const (
	storeRetries = 3
	retryBackoff = 50 * time.Millisecond
)

// TransitionPublisher surfaces committed transitions to live subscribers.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, tr Transition) error
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier TransitionPublisher
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	cfg      config.Config
}

func NewService(repo Repository, locker redisclient.Locker, notifier TransitionPublisher, m *metrics.BookingMetrics, logger *logging.Logger, cfg config.Config) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// PublishResult reports the per-instant outcome of a batch publish.
type PublishResult struct {
	Created          []Slot
	SkippedConflicts []time.Time
	Invalid          []InstantError
}

// PublishSlots creates Available slots for the given instants. Instants are
// deduplicated first; invalid ones are reported individually and do not fail
// the batch; instants already occupied are reported as conflicts. The
// anti-double-booking guarantee comes from the store's unique index, not from
// any pre-check here.
func (s *Service) PublishSlots(ctx context.Context, actor Actor, ownerID uuid.UUID, instants []time.Time, notes string) (*PublishResult, error) {
	if actor.Role != RoleProvider || actor.ID != ownerID {
		return nil, ErrUnauthorized
	}

	if _, err := s.getProvider(ctx, ownerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	horizon := now.Add(s.cfg.BookingHorizon)

	result := &PublishResult{}
	var valid []time.Time
	for _, t := range DedupeInstants(instants) {
		switch {
		case !t.After(now):
			result.Invalid = append(result.Invalid, InstantError{Instant: t, Reason: "must be in the future"})
		case t.After(horizon):
			result.Invalid = append(result.Invalid, InstantError{Instant: t, Reason: "beyond the booking horizon"})
		default:
			valid = append(valid, t)
		}
	}
	s.metrics.ObservePublish("invalid", len(result.Invalid))

	// One store round-trip per distinct day, serialized per (owner, day) so
	// concurrent publishes report conflicts instead of racing each other.
	for _, day := range groupByDay(valid) {
		dayInstants := day.instants
		err := s.locker.WithPublishLock(ctx, ownerID, day.start, func(lockCtx context.Context) error {
			created, err := s.repo.InsertAvailableSlots(lockCtx, ownerID, dayInstants, notes)
			if err != nil {
				return err
			}

			inserted := make(map[time.Time]struct{}, len(created))
			for _, sl := range created {
				inserted[NormalizeInstant(sl.ScheduledAt)] = struct{}{}
			}
			for _, t := range dayInstants {
				if _, ok := inserted[t]; !ok {
					result.SkippedConflicts = append(result.SkippedConflicts, t)
				}
			}

			for i := range created {
				s.commitTransition(lockCtx, &created[i], "", actor)
			}
			result.Created = append(result.Created, created...)
			return nil
		})
		if err != nil {
			if errors.Is(err, redisclient.ErrLockNotAcquired) {
				return nil, fmt.Errorf("%w: %s", ErrPublishContended, day.start.Format("2006-01-02"))
			}
			return nil, fmt.Errorf("publish slots: %w", err)
		}
	}

	s.metrics.ObservePublish("created", len(result.Created))
	s.metrics.ObservePublish("conflict", len(result.SkippedConflicts))

	return result, nil
}

// CheckOccupied returns the subset of instants already covered by an active
// slot for the owner. Advisory only: the claim and publish write paths stay
// authoritative.
func (s *Service) CheckOccupied(ctx context.Context, ownerID uuid.UUID, instants []time.Time) ([]time.Time, error) {
	requested := DedupeInstants(instants)
	want := make(map[time.Time]struct{}, len(requested))
	for _, t := range requested {
		want[t] = struct{}{}
	}

	var occupied []time.Time
	for _, day := range groupByDay(requested) {
		var inRange []time.Time
		err := s.withRetry(ctx, func() error {
			var err error
			inRange, err = s.repo.OccupiedBetween(ctx, ownerID, day.start, day.start.AddDate(0, 0, 1))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("check occupied: %w", err)
		}
		for _, t := range inRange {
			if _, ok := want[NormalizeInstant(t)]; ok {
				occupied = append(occupied, NormalizeInstant(t))
			}
		}
	}

	sort.Slice(occupied, func(i, j int) bool { return occupied[i].Before(occupied[j]) })
	return occupied, nil
}

// Book claims an Available slot for the acting client. The claim is a single
// conditional update in the store; of two concurrent claims exactly one wins
// and the loser gets ErrConflict.
func (s *Service) Book(ctx context.Context, actor Actor, slotID uuid.UUID) (*Slot, error) {
	if actor.Role != RoleClient {
		return nil, ErrUnauthorized
	}

	if err := s.withRetry(ctx, func() error {
		_, err := s.repo.GetClientByID(ctx, actor.ID)
		return err
	}); err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	claimed, err := s.repo.ClaimSlot(ctx, slotID, actor.ID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			s.metrics.ObserveClaim("lost")
			return nil, s.explainMissedUpdate(ctx, slotID)
		}
		return nil, fmt.Errorf("claim slot: %w", err)
	}

	s.metrics.ObserveClaim("won")
	s.commitTransition(ctx, claimed, StatusAvailable, actor)

	return claimed, nil
}

// Cancel cancels a booked slot, if the notice-window policy still permits it.
// Only the owner or the booking client may cancel. The policy is evaluated
// here with the server clock; any client-side evaluation is advisory.
func (s *Service) Cancel(ctx context.Context, actor Actor, slotID uuid.UUID) (*Slot, error) {
	sl, err := s.getSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if !canActOnBooking(actor, sl) {
		return nil, ErrUnauthorized
	}

	if _, ok := NextStatus(sl.Status, EventCancel); !ok {
		s.metrics.ObserveCancellation("denied_state")
		return nil, NewStateError(sl.Status, EventCancel)
	}

	notice, err := s.noticeWindow(ctx, sl.OwnerID)
	if err != nil {
		return nil, err
	}
	if !CanCancel(sl.ScheduledAt, time.Now().UTC(), notice) {
		s.metrics.ObserveCancellation("denied_policy")
		return nil, fmt.Errorf("%w: requires %s notice", ErrPolicyViolation, notice)
	}

	cancelled, err := s.repo.CancelSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, s.explainMissedUpdate(ctx, slotID)
		}
		return nil, fmt.Errorf("cancel slot: %w", err)
	}

	s.metrics.ObserveCancellation("allowed")
	s.commitTransition(ctx, cancelled, StatusBooked, actor)

	return cancelled, nil
}

// Complete marks a booked slot done, optionally appending completion notes.
// Owner only.
func (s *Service) Complete(ctx context.Context, actor Actor, slotID uuid.UUID, notes string) (*Slot, error) {
	sl, err := s.getSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if actor.Role != RoleProvider || actor.ID != sl.OwnerID {
		return nil, ErrUnauthorized
	}

	if _, ok := NextStatus(sl.Status, EventComplete); !ok {
		return nil, NewStateError(sl.Status, EventComplete)
	}

	completed, err := s.repo.CompleteSlot(ctx, slotID, notes)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, s.explainMissedUpdate(ctx, slotID)
		}
		return nil, fmt.Errorf("complete slot: %w", err)
	}

	s.commitTransition(ctx, completed, StatusBooked, actor)

	return completed, nil
}

// Delete soft-deletes a slot that is still Available. Owner only.
func (s *Service) Delete(ctx context.Context, actor Actor, slotID uuid.UUID) error {
	sl, err := s.getSlot(ctx, slotID)
	if err != nil {
		return err
	}

	if actor.Role != RoleProvider || actor.ID != sl.OwnerID {
		return ErrUnauthorized
	}

	if sl.Status != StatusAvailable {
		return NewStateError(sl.Status, EventDelete)
	}

	if err := s.repo.SoftDeleteSlot(ctx, slotID); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return s.explainMissedUpdate(ctx, slotID)
		}
		return fmt.Errorf("delete slot: %w", err)
	}

	return nil
}

// GetSlot retrieves a slot by ID, excluding soft-deleted ones.
func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.getSlot(ctx, id)
}

// ListSlots retrieves an owner's slots, paginated.
func (s *Service) ListSlots(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Slot, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	var slots []Slot
	err := s.withRetry(ctx, func() error {
		var err error
		slots, err = s.repo.ListSlotsByOwner(ctx, ownerID, limit, offset)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// Helpers

func (s *Service) getSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	var sl *Slot
	err := s.withRetry(ctx, func() error {
		var err error
		sl, err = s.repo.GetSlotByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	return sl, nil
}

func (s *Service) getProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p *Provider
	err := s.withRetry(ctx, func() error {
		var err error
		p, err = s.repo.GetProviderByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	return p, nil
}

// noticeWindow resolves the provider's notice window, falling back to the
// configured default.
func (s *Service) noticeWindow(ctx context.Context, ownerID uuid.UUID) (time.Duration, error) {
	p, err := s.getProvider(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if p.MinCancelNotice != nil {
		return *p.MinCancelNotice, nil
	}
	return s.cfg.MinCancelNotice, nil
}

// explainMissedUpdate distinguishes "slot gone" from "slot raced into another
// state" after a conditional update matched no rows.
func (s *Service) explainMissedUpdate(ctx context.Context, slotID uuid.UUID) error {
	if _, err := s.repo.GetSlotByID(ctx, slotID); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("re-read slot after missed update: %w", err)
	}
	return ErrConflict
}

// withRetry retries transient store failures a bounded number of times.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < storeRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryBackoff << attempt):
		}
	}
	return err
}

// commitTransition records the audit event and notifies subscribers. Neither
// failure rolls back the committed transition; both are logged.
func (s *Service) commitTransition(ctx context.Context, sl *Slot, from Status, actor Actor) {
	s.metrics.ObserveTransition(string(sl.Status))

	payload, err := json.Marshal(map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
		"instant":    sl.ScheduledAt,
	})
	if err != nil {
		s.logger.Warn("marshal transition payload", "error", err)
	}

	ev := SlotEvent{
		SlotID:     sl.ID,
		FromStatus: string(from),
		ToStatus:   string(sl.Status),
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert slot event", "slot_id", sl.ID, "error", err)
	}

	if s.notifier == nil {
		return
	}
	tr := Transition{
		SlotID:  sl.ID,
		OwnerID: sl.OwnerID,
		From:    from,
		To:      sl.Status,
		At:      sl.UpdatedAt,
	}
	if err := s.notifier.PublishTransition(ctx, tr); err != nil {
		s.logger.Error("publish transition", "slot_id", sl.ID, "error", err)
	}
}

// canActOnBooking: the owner or the booking client.
func canActOnBooking(actor Actor, sl *Slot) bool {
	if actor.Role == RoleProvider && actor.ID == sl.OwnerID {
		return true
	}
	if actor.Role == RoleClient && sl.ClientRef != nil && *sl.ClientRef == actor.ID {
		return true
	}
	return false
}

type dayGroup struct {
	start    time.Time
	instants []time.Time
}

// groupByDay buckets instants by UTC day, sorted, so occupied queries and
// publish locks run once per day instead of once per instant.
func groupByDay(instants []time.Time) []dayGroup {
	byDay := make(map[time.Time][]time.Time)
	for _, t := range instants {
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day] = append(byDay[day], t)
	}

	groups := make([]dayGroup, 0, len(byDay))
	for day, ts := range byDay {
		groups = append(groups, dayGroup{start: day, instants: ts})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].start.Before(groups[j].start) })
	return groups
}
