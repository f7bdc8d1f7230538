package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/types"
)

func entryFor(patient string, activity model.ActivityType, score float64) model.LedgerEntry {
	return model.LedgerEntry{
		PatientID:     patient,
		ActivityType:  activity,
		ActivityValue: score,
		Weight:        1,
		NewScore:      score,
	}
}

func TestMemoryStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(ctx, WithClock(func() time.Time { return t0 }))
	defer store.Close()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	if _, err := store.Latest(ctx, "p-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first, err := store.Append(ctx, entryFor("p-1", model.ActivityInitialAssessment, 85))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == "" {
		t.Error("expected a generated id")
	}
	if !first.Timestamp.Equal(t0) {
		t.Errorf("expected timestamp %v, got %v", t0, first.Timestamp)
	}

	second, err := store.Append(ctx, entryFor("p-1", model.ActivityWeeklyForm, 70))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Append(ctx, entryFor("p-2", model.ActivityMRIUpload, 40)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if count := store.Count(ctx); count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}

	latest, err := store.Latest(ctx, "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("expected latest %s, got %s", second.ID, latest.ID)
	}
}

func TestMemoryStore_History(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	defer store.Close()

	activities := []model.ActivityType{
		model.ActivityInitialAssessment,
		model.ActivityGamePlayed,
		model.ActivityWeeklyForm,
		model.ActivityGamePlayed,
		model.ActivityGamePlayed,
	}
	for i, a := range activities {
		if _, err := store.Append(ctx, entryFor("p-1", a, float64(10*i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := store.History(ctx, "p-1", types.HistoryFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != len(activities) {
		t.Fatalf("expected %d entries, got %d", len(activities), len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ActivityValue < all[i].ActivityValue {
			t.Errorf("history not newest first at %d", i)
		}
	}

	games, err := store.History(ctx, "p-1", types.HistoryFilter{ActivityType: model.ActivityGamePlayed, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(games))
	}
	if games[0].ActivityValue != 40 || games[1].ActivityValue != 30 {
		t.Errorf("unexpected game history: %v, %v", games[0].ActivityValue, games[1].ActivityValue)
	}

	none, err := store.History(ctx, "unknown", types.HistoryFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil history, got %v", none)
	}
}

func TestMemoryStore_Validation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)

	if _, err := store.Append(ctx, entryFor("", model.ActivityWeeklyForm, 1)); !errors.Is(err, ErrMissingPatient) {
		t.Errorf("expected ErrMissingPatient, got %v", err)
	}
	if _, err := store.Append(ctx, entryFor("p-1", "yoga", 1)); !errors.Is(err, ErrInvalidActivity) {
		t.Errorf("expected ErrInvalidActivity, got %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := store.Append(ctx, entryFor("p-1", model.ActivityWeeklyForm, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryStore_EntriesAreImmutable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	defer store.Close()

	in := entryFor("p-1", model.ActivityMRIUpload, 88)
	in.Metadata = map[string]any{"predicted_label": "Non_Demented"}
	out, err := store.Append(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in.Metadata["predicted_label"] = "changed"
	out.Metadata["predicted_label"] = "changed"

	latest, _ := store.Latest(ctx, "p-1")
	if got := latest.Metadata["predicted_label"]; got != "Non_Demented" {
		t.Errorf("stored metadata was mutated: %v", got)
	}
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	defer store.Close()

	const patients = 10
	const perPatient = 50

	var wg sync.WaitGroup
	for p := 0; p < patients; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			id := fmt.Sprintf("p-%d", p)
			for i := 0; i < perPatient; i++ {
				if _, err := store.Append(ctx, entryFor(id, model.ActivityGamePlayed, float64(i))); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if count := store.Count(ctx); count != patients*perPatient {
		t.Errorf("expected %d entries, got %d", patients*perPatient, count)
	}
	latest, err := store.Latest(ctx, "p-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.ActivityValue != perPatient-1 {
		t.Errorf("expected last appended value %d, got %v", perPatient-1, latest.ActivityValue)
	}
}
