package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slotboard/booking-service/internal/config"
	"github.com/slotboard/booking-service/internal/db"
)

// simulate fires concurrent book/cancel traffic at a running api-server and
// reports how many claims won, lost to conflicts, or failed outright. Its
// main purpose is demonstrating the exactly-once claim property under load.

type simConfig struct {
	apiBaseURL string
	duration   time.Duration
	workers    int
	slotLimit  int
	jwtSecret  string
}

type dataPool struct {
	clients []uuid.UUID
	slots   []uuid.UUID
}

type counters struct {
	won       atomic.Int64
	conflicts atomic.Int64
	errors    atomic.Int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	sim := simConfig{
		apiBaseURL: envOr("SIM_API_URL", "http://127.0.0.1:"+cfg.HTTPPort),
		duration:   envDuration("SIM_DURATION", 30*time.Second),
		workers:    envInt("SIM_WORKERS", 16),
		slotLimit:  envInt("SIM_SLOT_LIMIT", 200),
		jwtSecret:  cfg.JWTSecret,
	}

	ctx, cancel := context.WithTimeout(context.Background(), sim.duration+time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	data, err := loadPool(ctx, pool, sim.slotLimit)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	if len(data.clients) == 0 || len(data.slots) == 0 {
		log.Fatal("no clients or available slots; run cmd/seed first")
	}
	log.Printf("loaded %d clients and %d available slots", len(data.clients), len(data.slots))

	var c counters
	deadline := time.Now().Add(sim.duration)

	var wg sync.WaitGroup
	for i := 0; i < sim.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, sim, data, &c, deadline)
		}()
	}
	wg.Wait()

	total := c.won.Load() + c.conflicts.Load() + c.errors.Load()
	log.Printf("simulation done: %d requests, %d won, %d conflicts, %d errors",
		total, c.won.Load(), c.conflicts.Load(), c.errors.Load())
}

func worker(ctx context.Context, sim simConfig, data *dataPool, c *counters, deadline time.Time) {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}

		clientID := data.clients[rand.Intn(len(data.clients))]
		slotID := data.slots[rand.Intn(len(data.slots))]

		token, err := signToken(sim.jwtSecret, clientID, "client")
		if err != nil {
			log.Printf("sign token: %v", err)
			c.errors.Add(1)
			continue
		}

		status, err := post(ctx, httpClient, sim.apiBaseURL+"/slots/"+slotID.String()+"/book", token)
		switch {
		case err != nil:
			c.errors.Add(1)
		case status == http.StatusOK:
			c.won.Add(1)
		case status == http.StatusConflict:
			c.conflicts.Add(1)
		default:
			c.errors.Add(1)
		}
	}
}

func post(ctx context.Context, client *http.Client, url, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func signToken(secret string, actorID uuid.UUID, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  actorID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func loadPool(ctx context.Context, pool *pgxpool.Pool, slotLimit int) (*dataPool, error) {
	data := &dataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM clients LIMIT 500`)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		data.clients = append(data.clients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slotRows, err := pool.Query(ctx, `
		SELECT id FROM slots
		WHERE status = 'available' AND deleted_at IS NULL AND scheduled_at > now()
		LIMIT $1
	`, slotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var id uuid.UUID
		if err := slotRows.Scan(&id); err != nil {
			return nil, err
		}
		data.slots = append(data.slots, id)
	}
	if err := slotRows.Err(); err != nil {
		return nil, err
	}

	return data, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
