package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slotboard/booking-service/internal/config"
	"github.com/slotboard/booking-service/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providers, err := seedProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedClients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed clients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, providers); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()

		// Roughly a third of providers carry a custom notice window.
		var noticeSecs *int64
		if gofakeit.Number(0, 2) == 0 {
			secs := int64(gofakeit.Number(1, 72)) * 3600
			noticeSecs = &secs
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO providers (id, name, email, min_cancel_notice_secs, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, gofakeit.Company(), gofakeit.Email(), noticeSecs)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d clients", count)

	for i := 0; i < count; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO clients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return err
		}
	}
	return nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, providers []uuid.UUID) error {
	log.Printf("seeding slots for %d providers", len(providers))

	for _, ownerID := range providers {
		// Two weeks of hourly weekday slots starting tomorrow.
		day := time.Now().UTC().AddDate(0, 0, 1).Truncate(24 * time.Hour)
		for d := 0; d < 14; d++ {
			date := day.AddDate(0, 0, d)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			for hour := 9; hour < 17; hour++ {
				at := date.Add(time.Duration(hour) * time.Hour)
				_, err := pool.Exec(ctx, `
					INSERT INTO slots (id, owner_id, scheduled_at, status, notes, created_at, updated_at)
					VALUES ($1, $2, $3, 'available', '', now(), now())
					ON CONFLICT (owner_id, scheduled_at) WHERE deleted_at IS NULL AND status <> 'cancelled'
					DO NOTHING
				`, uuid.New(), ownerID, at)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}
