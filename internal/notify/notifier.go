package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/slotboard/booking-service/internal/observability/metrics"
	"github.com/slotboard/booking-service/internal/slot"
	"github.com/slotboard/booking-service/pkg/logging"
)

// Event is the payload delivered to live subscribers.
type Event struct {
	SlotID uuid.UUID   `json:"slot_id"`
	From   slot.Status `json:"from_status"`
	To     slot.Status `json:"to_status"`
	At     time.Time   `json:"at"`
	Title  string      `json:"title"`
	Body   string      `json:"body"`
}

// Notifier publishes committed transitions to per-owner Redis channels and
// hands out scoped subscriptions. Channel scoping is the tenant boundary:
// a subscriber only ever sees transitions for the owner it subscribed to.
type Notifier struct {
	client   *redis.Client
	dedupTTL time.Duration
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

func New(client *redis.Client, dedupTTL time.Duration, m *metrics.BookingMetrics, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{
		client:   client,
		dedupTTL: dedupTTL,
		logger:   logger,
		metrics:  m,
	}
}

func channelFor(ownerID uuid.UUID) string {
	return "transitions:" + ownerID.String()
}

func dedupKey(subscriberID string, ev Event) string {
	return fmt.Sprintf("notified:%s:%s:%s-%s", subscriberID, ev.SlotID, ev.From, ev.To)
}

// PublishTransition emits a committed transition to the owner's channel.
func (n *Notifier) PublishTransition(ctx context.Context, tr slot.Transition) error {
	ev := Event{
		SlotID: tr.SlotID,
		From:   tr.From,
		To:     tr.To,
		At:     tr.At,
	}
	ev.Title, ev.Body = describe(tr)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal transition event: %w", err)
	}

	if err := n.client.Publish(ctx, channelFor(tr.OwnerID), data).Err(); err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

func describe(tr slot.Transition) (title, body string) {
	when := tr.At.UTC().Format(time.RFC3339)
	switch tr.To {
	case slot.StatusAvailable:
		return "New slot published", fmt.Sprintf("A slot became available (%s)", when)
	case slot.StatusBooked:
		return "Slot booked", fmt.Sprintf("Slot %s was claimed at %s", tr.SlotID, when)
	case slot.StatusCancelled:
		return "Appointment cancelled", fmt.Sprintf("Slot %s was cancelled at %s", tr.SlotID, when)
	case slot.StatusCompleted:
		return "Appointment completed", fmt.Sprintf("Slot %s was marked done at %s", tr.SlotID, when)
	}
	return "Slot updated", fmt.Sprintf("Slot %s changed state at %s", tr.SlotID, when)
}

// Scope identifies what a subscription watches and who is watching.
// SubscriberID must be stable across reconnects of the same session so the
// notified-set keeps suppressing transitions that session already saw.
type Scope struct {
	OwnerID      uuid.UUID
	SubscriberID string
}

// Subscribe creates an inactive subscription; call Start to begin delivery.
func (n *Notifier) Subscribe(scope Scope) *Subscription {
	return &Subscription{
		notifier: n,
		scope:    scope,
	}
}

// Subscription is a restartable, explicitly stopped stream of transition
// events. Events published before Start are never delivered; events the same
// subscriber already received are suppressed via the notified-set.
type Subscription struct {
	notifier *Notifier
	scope    Scope

	mu     sync.Mutex
	pubsub *redis.PubSub
	out    chan Event
	done   chan struct{}
}

// Start subscribes and returns the delivery channel. It is an error to start
// an already started subscription.
func (s *Subscription) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pubsub != nil {
		return nil, fmt.Errorf("subscription already started")
	}

	pubsub := s.notifier.client.Subscribe(ctx, channelFor(s.scope.OwnerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to transitions: %w", err)
	}

	s.pubsub = pubsub
	s.out = make(chan Event, 16)
	s.done = make(chan struct{})

	// pump holds its own references: Stop mutates these fields under the
	// lock while pump runs unlocked.
	go s.pump(pubsub, s.out, s.done, time.Now())

	return s.out, nil
}

func (s *Subscription) pump(pubsub *redis.PubSub, out chan<- Event, done <-chan struct{}, startedAt time.Time) {
	defer close(out)

	n := s.notifier
	for msg := range pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			n.logger.Warn("dropping malformed transition event", "error", err)
			continue
		}

		// No replay of transitions older than the subscription.
		if ev.At.Before(startedAt) {
			continue
		}

		fresh, err := n.markNotified(s.scope.SubscriberID, ev)
		if err != nil {
			n.logger.Warn("notified-set check failed, delivering anyway", "error", err)
			fresh = true
		}
		if !fresh {
			n.metrics.ObserveNotification("deduped")
			continue
		}

		select {
		case out <- ev:
			n.metrics.ObserveNotification("delivered")
		case <-done:
			return
		}
	}
}

// markNotified records (subscriber, slot, transition) and reports whether it
// was unseen. SETNX with a TTL keeps the set bounded.
func (n *Notifier) markNotified(subscriberID string, ev Event) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return n.client.SetNX(ctx, dedupKey(subscriberID, ev), 1, n.dedupTTL).Result()
}

// Stop releases the underlying pub/sub connection. Safe to call twice.
func (s *Subscription) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pubsub == nil {
		return
	}
	close(s.done)
	_ = s.pubsub.Close()
	s.pubsub = nil
}
