package inflight

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	g := NewGuard()

	release, err := g.Acquire("like:42")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if _, err := g.Acquire("like:42"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	// unrelated actions are independent
	other, err := g.Acquire("like:43")
	if err != nil {
		t.Fatalf("unrelated acquire failed: %v", err)
	}
	other()

	release()
	release()
	if g.Busy("like:42") {
		t.Error("expected key to be released")
	}
	if _, err := g.Acquire("like:42"); err != nil {
		t.Errorf("expected reacquire to succeed, got %v", err)
	}
}
