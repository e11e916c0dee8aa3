package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStoreSaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	task := &ProcessedTask{
		TaskID:      "t1",
		MessageID:   "m1",
		ChannelID:   "C01",
		Urgency:     "high",
		Confidence:  0.8,
		Summary:     "review the PR",
		ProcessedAt: time.Now(),
	}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.MessageID != "m1" || got.Confidence != 0.8 {
		t.Errorf("got %+v", got)
	}

	// Returned records are copies; mutating one must not touch the store.
	got.Summary = "mutated"
	again, _ := s.GetTask(ctx, "t1")
	if again.Summary != "review the PR" {
		t.Error("store record aliased by caller mutation")
	}

	if _, err := s.GetTask(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing task = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListRecent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.SaveTask(ctx, &ProcessedTask{TaskID: fmt.Sprintf("t%d", i)})
	}

	recent, err := s.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d tasks, want 3", len(recent))
	}
	// Newest first.
	if recent[0].TaskID != "t4" || recent[2].TaskID != "t2" {
		t.Errorf("order = %v, %v, %v", recent[0].TaskID, recent[1].TaskID, recent[2].TaskID)
	}
}
