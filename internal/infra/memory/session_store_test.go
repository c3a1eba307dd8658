package memory

import (
	"context"
	"testing"
	"time"

	"reading-fluency-service/internal/domain"
)

func TestSessionStoreCASTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := domain.ReadingSession{ID: "s1", TaskID: "t1", StudentID: "u1", Status: domain.StatusCreated}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Transition(ctx, "s1", domain.StatusReading, domain.StatusCompleted, nil); err != domain.ErrInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}

	updated, err := store.Transition(ctx, "s1", domain.StatusCreated, domain.StatusStarted, nil)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Status != domain.StatusStarted {
		t.Fatalf("expected STARTED, got %s", updated.Status)
	}
}

func TestSessionStoreSingleCompletedAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	first := domain.ReadingSession{ID: "s1", TaskID: "t1", CompetitionID: "c1", StudentID: "u1", Status: domain.StatusReading}
	second := domain.ReadingSession{ID: "s2", TaskID: "t1", CompetitionID: "c1", StudentID: "u1", Status: domain.StatusReading}
	_ = store.Create(ctx, first)
	_ = store.Create(ctx, second)

	if _, err := store.Transition(ctx, "s1", domain.StatusReading, domain.StatusCompleted, nil); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if _, err := store.Transition(ctx, "s2", domain.StatusReading, domain.StatusCompleted, nil); err != domain.ErrAlreadyCompleted {
		t.Fatalf("expected already-completed error, got %v", err)
	}

	found, err := store.FindCompleted(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("find completed: %v", err)
	}
	if found == nil || found.ID != "s1" {
		t.Fatalf("expected s1 as completed attempt, got %+v", found)
	}

	if err := store.Create(ctx, domain.ReadingSession{ID: "s3", TaskID: "t1", StudentID: "u1"}); err != domain.ErrAlreadyCompleted {
		t.Fatalf("expected create blocked after completion, got %v", err)
	}
}

func TestSessionStoreAbandonExpired(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	now := time.Now()

	_ = store.Create(ctx, domain.ReadingSession{ID: "stale", Status: domain.StatusReading, Deadline: now.Add(-time.Minute)})
	_ = store.Create(ctx, domain.ReadingSession{ID: "fresh", Status: domain.StatusReading, Deadline: now.Add(time.Minute)})
	_ = store.Create(ctx, domain.ReadingSession{ID: "done", Status: domain.StatusCompleted, Deadline: now.Add(-time.Minute)})

	n, err := store.AbandonExpired(ctx, now)
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 abandoned, got %d", n)
	}
	stale, _ := store.Get(ctx, "stale")
	if stale.Status != domain.StatusAbandoned {
		t.Fatalf("expected stale session abandoned, got %s", stale.Status)
	}
	fresh, _ := store.Get(ctx, "fresh")
	if fresh.Status != domain.StatusReading {
		t.Fatalf("expected fresh session untouched, got %s", fresh.Status)
	}
}
