// Package alert raises chat-webhook notifications for critical tickets and
// suppresses repeats of the same ticket/comment pair across polling cycles.
package alert

// Deduper tracks the last alerted comment id per ticket. It lives for the
// process lifetime and is only touched by the sequential cycle driver, so no
// locking is needed.
type Deduper struct {
	entries       map[string]*dedupEntry
	cycle         uint64
	maxIdleCycles int
}

type dedupEntry struct {
	commentID string
	lastSeen  uint64
}

// NewDeduper creates a deduper that evicts tickets not seen for
// maxIdleCycles cycles. A non-positive value disables eviction.
func NewDeduper(maxIdleCycles int) *Deduper {
	return &Deduper{
		entries:       make(map[string]*dedupEntry),
		maxIdleCycles: maxIdleCycles,
	}
}

// ShouldAlert reports whether an alert for the ticket/comment pair is new.
// It does not record the pair; callers mark it after the alert was actually
// sent, so a failed send is retried on the next cycle.
func (d *Deduper) ShouldAlert(ticketKey, commentID string) bool {
	entry, ok := d.entries[ticketKey]
	if !ok {
		return true
	}
	entry.lastSeen = d.cycle
	return entry.commentID != commentID
}

// MarkAlerted records that an alert fired for the ticket/comment pair.
func (d *Deduper) MarkAlerted(ticketKey, commentID string) {
	d.entries[ticketKey] = &dedupEntry{
		commentID: commentID,
		lastSeen:  d.cycle,
	}
}

// EndCycle advances the cycle counter and evicts entries for tickets that
// have not appeared in any recent window. Without eviction the map grows for
// as long as the process lives.
func (d *Deduper) EndCycle() {
	d.cycle++
	if d.maxIdleCycles <= 0 {
		return
	}
	for key, entry := range d.entries {
		if d.cycle-entry.lastSeen > uint64(d.maxIdleCycles) {
			delete(d.entries, key)
		}
	}
}

// Len reports the number of tracked tickets.
func (d *Deduper) Len() int {
	return len(d.entries)
}
