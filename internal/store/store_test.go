package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/peterkovacs/vanity/internal/experiment"
)

// testCounterContract exercises the counter semantics every adapter
// must share: participant dedup, converted vs conversions, first-wins
// assignments, flags and destroy.
func testCounterContract(t *testing.T, s experiment.Store) {
	t.Helper()
	ctx := context.Background()
	const exp = "hero"

	t.Run("participant dedup", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if err := s.AddParticipant(ctx, exp, 0, "alice"); err != nil {
				t.Fatalf("AddParticipant failed: %v", err)
			}
		}
		if err := s.AddParticipant(ctx, exp, 0, "bob"); err != nil {
			t.Fatalf("AddParticipant failed: %v", err)
		}

		counts, err := s.Counts(ctx, exp, 0)
		if err != nil {
			t.Fatalf("Counts failed: %v", err)
		}
		if counts.Participants != 2 {
			t.Errorf("participants = %d, want 2", counts.Participants)
		}
	})

	t.Run("converted vs conversions", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if err := s.AddConversion(ctx, exp, 0, "alice"); err != nil {
				t.Fatalf("AddConversion failed: %v", err)
			}
		}
		if err := s.AddConversion(ctx, exp, 0, "bob"); err != nil {
			t.Fatalf("AddConversion failed: %v", err)
		}

		counts, err := s.Counts(ctx, exp, 0)
		if err != nil {
			t.Fatalf("Counts failed: %v", err)
		}
		if counts.Converted != 2 {
			t.Errorf("converted = %d, want 2", counts.Converted)
		}
		if counts.Conversions != 4 {
			t.Errorf("conversions = %d, want 4", counts.Conversions)
		}
	})

	t.Run("first assignment wins", func(t *testing.T) {
		if err := s.SetAssignment(ctx, exp, "carol", 1); err != nil {
			t.Fatalf("SetAssignment failed: %v", err)
		}
		if err := s.SetAssignment(ctx, exp, "carol", 0); err != nil {
			t.Fatalf("SetAssignment failed: %v", err)
		}

		index, ok, err := s.Assignment(ctx, exp, "carol")
		if err != nil {
			t.Fatalf("Assignment failed: %v", err)
		}
		if !ok || index != 1 {
			t.Errorf("assignment = %d, %v; want 1, true", index, ok)
		}

		if _, ok, err := s.Assignment(ctx, exp, "nobody"); err != nil || ok {
			t.Errorf("unknown identity = ok=%v err=%v, want absent", ok, err)
		}
	})

	t.Run("flags", func(t *testing.T) {
		// Enabled defaults true until explicitly set.
		enabled, err := s.Enabled(ctx, "untouched")
		if err != nil {
			t.Fatalf("Enabled failed: %v", err)
		}
		if !enabled {
			t.Error("fresh experiment should default to enabled")
		}

		if err := s.SetEnabled(ctx, exp, false); err != nil {
			t.Fatalf("SetEnabled failed: %v", err)
		}
		if enabled, err = s.Enabled(ctx, exp); err != nil || enabled {
			t.Errorf("Enabled = %v, %v; want false", enabled, err)
		}

		if _, ok, err := s.Outcome(ctx, exp); err != nil || ok {
			t.Errorf("Outcome before set: ok=%v err=%v, want absent", ok, err)
		}
		if err := s.SetOutcome(ctx, exp, 1); err != nil {
			t.Fatalf("SetOutcome failed: %v", err)
		}
		outcome, ok, err := s.Outcome(ctx, exp)
		if err != nil || !ok || outcome != 1 {
			t.Errorf("Outcome = %d, %v, %v; want 1, true", outcome, ok, err)
		}

		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		if err := s.SetCreatedAt(ctx, exp, created); err != nil {
			t.Fatalf("SetCreatedAt failed: %v", err)
		}
		got, ok, err := s.CreatedAt(ctx, exp)
		if err != nil || !ok || !got.Equal(created) {
			t.Errorf("CreatedAt = %v, %v, %v; want %v", got, ok, err, created)
		}

		completed := created.Add(72 * time.Hour)
		if err := s.SetCompletedAt(ctx, exp, completed); err != nil {
			t.Fatalf("SetCompletedAt failed: %v", err)
		}
		got, ok, err = s.CompletedAt(ctx, exp)
		if err != nil || !ok || !got.Equal(completed) {
			t.Errorf("CompletedAt = %v, %v, %v; want %v", got, ok, err, completed)
		}
	})

	t.Run("destroy", func(t *testing.T) {
		if err := s.Destroy(ctx, exp); err != nil {
			t.Fatalf("Destroy failed: %v", err)
		}

		counts, err := s.Counts(ctx, exp, 0)
		if err != nil {
			t.Fatalf("Counts failed: %v", err)
		}
		if counts != (experiment.Counts{}) {
			t.Errorf("counts after destroy = %+v, want zero", counts)
		}
		if _, ok, _ := s.Assignment(ctx, exp, "carol"); ok {
			t.Error("assignment survived destroy")
		}
		if enabled, _ := s.Enabled(ctx, exp); !enabled {
			t.Error("enabled flag should reset to default after destroy")
		}
	})
}
