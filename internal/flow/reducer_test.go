package flow

import (
	"testing"
	"time"
)

func at(hour int) time.Time {
	return time.Date(2024, time.July, 1, hour, 0, 0, 0, time.UTC)
}

func TestReduceFirstOccurrenceIsOrderIndependent(t *testing.T) {
	t.Parallel()

	events := []Event{
		{From: "A", To: "Test", At: at(9)},
		{From: "Test", To: "A", At: at(11)},
		{From: "A", To: "Test", At: at(14)},
	}
	spec := Spec{StartStates: NewStateSet("Test")}

	orderings := [][]Event{
		{events[0], events[1], events[2]},
		{events[2], events[0], events[1]},
		{events[1], events[2], events[0]},
	}
	for i, ordering := range orderings {
		got := Reduce(ordering, spec)
		if !got.HasStart {
			t.Fatalf("ordering %d: start not found", i)
		}
		if !got.StartedAt.Equal(at(9)) {
			t.Fatalf("ordering %d: StartedAt = %v, want %v", i, got.StartedAt, at(9))
		}
	}
}

func TestReduceCountsRework(t *testing.T) {
	t.Parallel()

	events := []Event{
		{From: "New", To: "InProgress", At: at(9)},
		{From: "InProgress", To: "Test", At: at(10)},
		{From: "Test", To: "InProgress", At: at(11)},
		{From: "InProgress", To: "Done", At: at(12)},
	}
	got := Reduce(events, Spec{
		StartStates: NewStateSet("InProgress"),
		EndStates:   NewStateSet("Done"),
		ReworkFrom:  NewStateSet("Test"),
		ReworkTo:    NewStateSet("InProgress"),
	})

	if got.ReworkCount != 1 {
		t.Fatalf("ReworkCount = %d, want 1", got.ReworkCount)
	}
	if !got.HasStart || !got.StartedAt.Equal(at(9)) {
		t.Fatalf("StartedAt = %v (found=%t), want %v", got.StartedAt, got.HasStart, at(9))
	}
	if !got.HasEnd || !got.CompletedAt.Equal(at(12)) {
		t.Fatalf("CompletedAt = %v (found=%t), want %v", got.CompletedAt, got.HasEnd, at(12))
	}
}

func TestReduceWithoutStartYieldsNoSample(t *testing.T) {
	t.Parallel()

	events := []Event{
		{From: "New", To: "Review", At: at(9)},
		{From: "Review", To: "Done", At: at(10)},
	}
	got := Reduce(events, Spec{
		StartStates: NewStateSet("InProgress"),
		EndStates:   NewStateSet("Done"),
	})

	if got.HasStart || got.HasEnd {
		t.Fatalf("expected no boundaries, got start=%t end=%t", got.HasStart, got.HasEnd)
	}
	if _, ok := got.Duration(); ok {
		t.Fatal("Duration() reported a sample without boundaries")
	}
}

func TestReduceEndBeforeStartStaysUnset(t *testing.T) {
	t.Parallel()

	events := []Event{
		{From: "New", To: "Done", At: at(9)},
		{From: "Done", To: "InProgress", At: at(10)},
	}
	got := Reduce(events, Spec{
		StartStates: NewStateSet("InProgress"),
		EndStates:   NewStateSet("Done"),
	})

	if !got.HasStart {
		t.Fatal("expected start to be found")
	}
	if got.HasEnd {
		t.Fatalf("CompletedAt = %v, want unset", got.CompletedAt)
	}
}

func TestReduceFirstEndSurvivesReentry(t *testing.T) {
	t.Parallel()

	events := []Event{
		{From: "New", To: "InProgress", At: at(9)},
		{From: "InProgress", To: "Done", At: at(10)},
		{From: "Done", To: "InProgress", At: at(11)},
		{From: "InProgress", To: "Done", At: at(15)},
	}
	got := Reduce(events, Spec{
		StartStates: NewStateSet("InProgress"),
		EndStates:   NewStateSet("Done"),
	})

	if !got.CompletedAt.Equal(at(10)) {
		t.Fatalf("CompletedAt = %v, want first occurrence %v", got.CompletedAt, at(10))
	}
}

func TestReduceMatchesAliasesCaseInsensitively(t *testing.T) {
	t.Parallel()

	events := []Event{
		{From: "Backlog", To: "EN CURSO", At: at(9)},
		{From: "EN CURSO", To: "Listo para Prod", At: at(12)},
	}
	got := Reduce(events, Spec{
		StartStates: NewStateSet("en curso", "In Progress"),
		EndStates:   NewStateSet("listo para prod", "Done"),
	})

	if !got.HasStart || !got.HasEnd {
		t.Fatalf("aliases not matched: start=%t end=%t", got.HasStart, got.HasEnd)
	}
}

func TestReduceExit(t *testing.T) {
	t.Parallel()

	events := []Event{
		{From: "InProgress", To: "Test", At: at(9)},
		{From: "Test", To: "Done", At: at(14)},
		{From: "Done", To: "Test", At: at(15)},
		{From: "Test", To: "Done", At: at(16)},
	}
	got := ReduceExit(events, NewStateSet("Test"))

	if !got.StartedAt.Equal(at(9)) {
		t.Fatalf("StartedAt = %v, want %v", got.StartedAt, at(9))
	}
	if !got.CompletedAt.Equal(at(14)) {
		t.Fatalf("CompletedAt = %v, want %v", got.CompletedAt, at(14))
	}

	noEntry := ReduceExit([]Event{{From: "New", To: "Done", At: at(9)}}, NewStateSet("Test"))
	if noEntry.HasStart || noEntry.HasEnd {
		t.Fatalf("expected no boundaries, got start=%t end=%t", noEntry.HasStart, noEntry.HasEnd)
	}
}
