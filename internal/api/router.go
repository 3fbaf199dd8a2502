package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/slotboard/booking-service/pkg/logging"
)

type RouterConfig struct {
	Service   BookingService
	Stream    TransitionStream
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    *logging.Logger
	JWTSecret string
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health and metrics stay unauthenticated.
	health := NewHealthHandler(cfg.Env, cfg.Version,
		Dependency{Name: "postgres", Critical: true, Check: func(ctx context.Context) error {
			return cfg.PgPool.Ping(ctx)
		}},
		Dependency{Name: "redis", Check: func(ctx context.Context) error {
			return cfg.Redis.Ping(ctx).Err()
		}},
	)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware(cfg.JWTSecret))

		r.Post("/slots", createSlotsHandler(cfg.Service))
		r.Get("/slots", listSlotsHandler(cfg.Service))
		r.Get("/slots/occupied", checkOccupiedHandler(cfg.Service))
		r.Get("/slots/{id}", getSlotHandler(cfg.Service))
		r.Post("/slots/{id}/book", bookSlotHandler(cfg.Service))
		r.Post("/slots/{id}/cancel", cancelSlotHandler(cfg.Service))
		r.Post("/slots/{id}/complete", completeSlotHandler(cfg.Service))
		r.Delete("/slots/{id}", deleteSlotHandler(cfg.Service))

		r.Get("/ws/transitions", transitionsWSHandler(cfg.Stream, cfg.Logger))
	})

	return r
}
