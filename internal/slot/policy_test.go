package slot

import (
	"math/rand"
	"testing"
	"time"
)

func TestCanCancel(t *testing.T) {
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		scheduledAt time.Time
		now         time.Time
		minNotice   time.Duration
		want        bool
	}{
		{"well before window", base, base.Add(-48 * time.Hour), 24 * time.Hour, true},
		{"exactly at boundary", base, base.Add(-24 * time.Hour), 24 * time.Hour, true},
		{"one second inside window", base, base.Add(-24*time.Hour + time.Second), 24 * time.Hour, false},
		{"slot already passed", base, base.Add(time.Hour), 24 * time.Hour, false},
		{"zero notice, slot in future", base, base.Add(-time.Minute), 0, true},
		{"zero notice, at slot time", base, base, 0, true},
		{"two hours out, 24h window", base, base.Add(-2 * time.Hour), 24 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanCancel(tt.scheduledAt, tt.now, tt.minNotice)
			if got != tt.want {
				t.Fatalf("CanCancel(%s, %s, %s) = %v, want %v",
					tt.scheduledAt, tt.now, tt.minNotice, got, tt.want)
			}
		})
	}
}

// CanCancel must agree with the definition now+W <= T for arbitrary inputs.
func TestCanCancelMatchesDefinition(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10000; i++ {
		scheduledAt := base.Add(time.Duration(rng.Int63n(int64(8760 * time.Hour))))
		now := base.Add(time.Duration(rng.Int63n(int64(8760 * time.Hour))))
		notice := time.Duration(rng.Int63n(int64(100 * time.Hour)))

		want := !now.Add(notice).After(scheduledAt)
		if got := CanCancel(scheduledAt, now, notice); got != want {
			t.Fatalf("CanCancel(%s, %s, %s) = %v, definition says %v",
				scheduledAt, now, notice, got, want)
		}
	}
}
