package notify

import (
	"errors"
	"testing"
)

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.Notify(Info("one", ""))
	q.Notify(Info("two", ""))
	q.Notify(Info("three", ""))

	got := q.Drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Title != "two" || got[1].Title != "three" {
		t.Errorf("expected [two three], got [%s %s]", got[0].Title, got[1].Title)
	}
	if len(q.Drain()) != 0 {
		t.Error("expected queue to be empty after drain")
	}
}

func TestErrorNotification(t *testing.T) {
	n := Error("Failed to like", errors.New("already liked"))
	if n.Kind != KindError {
		t.Errorf("expected error kind, got %s", n.Kind)
	}
	if n.Message != "already liked" {
		t.Errorf("expected %q, got %q", "already liked", n.Message)
	}

	n = Error("Failed to like", nil)
	if n.Message == "" {
		t.Error("expected a fallback message")
	}
}
