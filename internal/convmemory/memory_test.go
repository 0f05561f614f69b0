package convmemory

import (
	"testing"
	"time"
)

func TestAddTurnNeverExceedsMaxTurns(t *testing.T) {
	m := New(Config{MaxTurns: 3}, nil)
	for i := 0; i < 10; i++ {
		m.AddTurn("hi", "hello")
		if m.Len() > 3 {
			t.Fatalf("after turn %d: Len() = %d, want <= 3", i, m.Len())
		}
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
}

func TestAddTurnEvictionProducesSummary(t *testing.T) {
	m := New(Config{MaxTurns: 2}, nil)
	m.AddTurn("a", "1")
	m.AddTurn("b", "2")
	if m.Summary() != "" {
		t.Fatalf("Summary() before any eviction = %q, want empty", m.Summary())
	}
	m.AddTurn("c", "3")
	if m.Summary() == "" {
		t.Fatal("Summary() after eviction is empty, want a note")
	}
}

func TestAddTurnClearsOnIdleTimeout(t *testing.T) {
	now := time.Unix(0, 0)
	m := New(Config{MaxTurns: 5, IdleWindow: 10 * time.Second}, nil)
	m.nowFunc = func() time.Time { return now }

	m.AddTurn("a", "1")
	m.AddTurn("b", "2")
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}

	now = now.Add(20 * time.Second)
	m.AddTurn("c", "3")
	if m.Len() != 1 {
		t.Fatalf("Len() after idle clear = %d, want 1 (only the new turn)", m.Len())
	}
	if m.Summary() != "" {
		t.Fatalf("Summary() after idle clear = %q, want cleared", m.Summary())
	}
}

func TestTurnsReturnsOldestFirstCopy(t *testing.T) {
	m := New(Config{MaxTurns: 5}, nil)
	m.AddTurn("a", "1")
	m.AddTurn("b", "2")
	turns := m.Turns()
	if len(turns) != 2 || turns[0].User != "a" || turns[1].User != "b" {
		t.Fatalf("Turns() = %+v, want oldest-first [a, b]", turns)
	}
	turns[0].User = "mutated"
	if m.Turns()[0].User == "mutated" {
		t.Fatal("Turns() leaked internal storage to the caller")
	}
}
