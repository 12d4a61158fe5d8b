// Package flow reduces an issue's status-change history into workflow timing
// facts: when work started, when it first completed, and how often it bounced
// back into progress.
package flow

import (
	"sort"
	"strings"
	"time"
)

// Event is a single status transition taken from an issue changelog. Only
// field=="status" changelog items are mapped into events.
type Event struct {
	From string
	To   string
	At   time.Time
}

// StateSet matches status names case-insensitively after trimming, so that
// workflow renames like "EN CURSO" vs "In Progress" can be configured as
// aliases of one logical state.
type StateSet map[string]struct{}

// NewStateSet builds a state set from status-name aliases.
func NewStateSet(names ...string) StateSet {
	set := make(StateSet, len(names))
	for _, name := range names {
		normalized := normalizeState(name)
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return set
}

// Contains reports whether the status name belongs to the set.
func (s StateSet) Contains(name string) bool {
	_, ok := s[normalizeState(name)]
	return ok
}

func normalizeState(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Spec configures one reduction pass.
type Spec struct {
	StartStates StateSet
	EndStates   StateSet
	ReworkFrom  StateSet
	ReworkTo    StateSet
}

// Reduction is the outcome of walking one issue's changelog.
type Reduction struct {
	StartedAt   time.Time
	CompletedAt time.Time
	HasStart    bool
	HasEnd      bool
	ReworkCount int
}

// Duration reports whether both boundaries were found. Callers must record no
// sample at all when it returns false; a missing boundary is not a
// zero-length duration.
func (r Reduction) Duration() (time.Duration, bool) {
	if !r.HasStart || !r.HasEnd {
		return 0, false
	}
	return r.CompletedAt.Sub(r.StartedAt), true
}

// Reduce walks events in chronological order regardless of input order.
// StartedAt is the first entry into a start state; CompletedAt is the first
// entry into an end state strictly after StartedAt, and later re-entries never
// overwrite it. Timing a reopened ticket from its very first start keeps the
// result deterministic across rework loops and reflects total elapsed effort.
// ReworkCount counts matching transitions across the whole history, not just
// the start/end window.
func Reduce(events []Event, spec Spec) Reduction {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].At.Before(ordered[j].At)
	})

	var reduction Reduction
	for _, event := range ordered {
		if !reduction.HasStart && spec.StartStates.Contains(event.To) {
			reduction.HasStart = true
			reduction.StartedAt = event.At
		}
		if reduction.HasStart && !reduction.HasEnd &&
			spec.EndStates.Contains(event.To) && event.At.After(reduction.StartedAt) {
			reduction.HasEnd = true
			reduction.CompletedAt = event.At
		}
		if spec.ReworkFrom.Contains(event.From) && spec.ReworkTo.Contains(event.To) {
			reduction.ReworkCount++
		}
	}
	return reduction
}

// ReduceExit finds the first entry into state and the first transition out of
// it afterwards. It is used for testing-duration, where the end state is
// whatever the ticket moves to once it leaves Test.
func ReduceExit(events []Event, state StateSet) Reduction {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].At.Before(ordered[j].At)
	})

	var reduction Reduction
	for _, event := range ordered {
		if !reduction.HasStart && state.Contains(event.To) {
			reduction.HasStart = true
			reduction.StartedAt = event.At
		}
		if reduction.HasStart && !reduction.HasEnd &&
			state.Contains(event.From) && event.At.After(reduction.StartedAt) {
			reduction.HasEnd = true
			reduction.CompletedAt = event.At
		}
	}
	return reduction
}
