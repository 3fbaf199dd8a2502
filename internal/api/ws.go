package api

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/slotboard/booking-service/internal/notify"
	"github.com/slotboard/booking-service/internal/slot"
	"github.com/slotboard/booking-service/pkg/logging"
)

// TransitionStream hands out scoped subscriptions.
type TransitionStream interface {
	Subscribe(scope notify.Scope) *notify.Subscription
}

// transitionsWSHandler streams committed transitions for one owner over a
// websocket. One subscription per connection; closing the socket stops it.
// Providers may only watch their own channel; clients may watch any provider
// they book with (events carry slot state only, no client identity).
func transitionsWSHandler(stream TransitionStream, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
			return
		}

		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "authentication required")
			return
		}
		if actor.Role == slot.RoleProvider && actor.ID != ownerID {
			writeError(w, http.StatusForbidden, "forbidden", "providers may only subscribe to their own transitions")
			return
		}

		scope := notify.Scope{
			OwnerID:      ownerID,
			SubscriberID: actor.ID.String() + ":" + ownerID.String(),
		}

		websocket.Handler(func(conn *websocket.Conn) {
			serveTransitions(conn, stream, scope, logger)
		}).ServeHTTP(w, r)
	}
}

func serveTransitions(conn *websocket.Conn, stream TransitionStream, scope notify.Scope, logger *logging.Logger) {
	defer conn.Close()

	sub := stream.Subscribe(scope)
	events, err := sub.Start(conn.Request().Context())
	if err != nil {
		logger.Error("start transition subscription", "owner_id", scope.OwnerID, "error", err)
		_ = websocket.JSON.Send(conn, ErrorResponse{Error: "subscribe_failed"})
		return
	}
	defer sub.Stop()

	// Reader goroutine: we ignore client frames, but a read error is how we
	// learn the peer went away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var discard string
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				if err != io.EOF {
					logger.Debug("websocket read ended", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, ev); err != nil {
				logger.Debug("websocket send failed", "error", err)
				return
			}
		case <-closed:
			return
		}
	}
}
