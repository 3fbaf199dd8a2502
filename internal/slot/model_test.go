package slot

import (
	"testing"
	"time"
)

func TestNextStatus(t *testing.T) {
	legal := []struct {
		from  Status
		event Event
		to    Status
	}{
		{StatusAvailable, EventClaim, StatusBooked},
		{StatusAvailable, EventDelete, StatusAvailable},
		{StatusBooked, EventCancel, StatusCancelled},
		{StatusBooked, EventComplete, StatusCompleted},
	}

	for _, tt := range legal {
		to, ok := NextStatus(tt.from, tt.event)
		if !ok || to != tt.to {
			t.Errorf("NextStatus(%s, %s) = (%s, %v), want (%s, true)", tt.from, tt.event, to, ok, tt.to)
		}
	}

	// Everything else is illegal, including every event on terminal states.
	statuses := []Status{StatusAvailable, StatusBooked, StatusCancelled, StatusCompleted}
	events := []Event{EventClaim, EventCancel, EventComplete, EventDelete}

	isLegal := func(from Status, event Event) bool {
		for _, tt := range legal {
			if tt.from == from && tt.event == event {
				return true
			}
		}
		return false
	}

	for _, from := range statuses {
		for _, event := range events {
			_, ok := NextStatus(from, event)
			if ok != isLegal(from, event) {
				t.Errorf("NextStatus(%s, %s) legality = %v, want %v", from, event, ok, isLegal(from, event))
			}
		}
	}
}

func TestNormalizeInstantRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	// A local wall-clock instant stored in UTC must reproduce the identical
	// wall clock when displayed back in the originating zone.
	local := time.Date(2025, 6, 1, 10, 30, 0, 0, loc)
	stored := NormalizeInstant(local)

	if stored.Location() != time.UTC {
		t.Fatalf("stored instant not UTC: %v", stored.Location())
	}
	back := stored.In(loc)
	if back.Year() != 2025 || back.Month() != time.June || back.Day() != 1 ||
		back.Hour() != 10 || back.Minute() != 30 {
		t.Fatalf("round trip changed wall clock: %v", back)
	}
	if !stored.Equal(local) {
		t.Fatalf("normalization changed the instant: %v vs %v", stored, local)
	}
}

func TestDedupeInstants(t *testing.T) {
	utc := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	plusTwo := time.FixedZone("plus2", 2*3600)

	got := DedupeInstants([]time.Time{
		utc,
		utc, // exact duplicate
		time.Date(2025, 6, 1, 12, 0, 0, 0, plusTwo), // same instant, different zone
		utc.Add(time.Hour),
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 distinct instants, got %d: %v", len(got), got)
	}
	if !got[0].Equal(utc) || !got[1].Equal(utc.Add(time.Hour)) {
		t.Fatalf("unexpected instants: %v", got)
	}
	for _, g := range got {
		if g.Location() != time.UTC {
			t.Fatalf("instant not normalized to UTC: %v", g)
		}
	}
}
