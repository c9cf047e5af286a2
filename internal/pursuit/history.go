package pursuit

// History is a bounded ring of recently tracked targets. Consecutive
// updates for the same target ID collapse into one entry, so the ring
// covers the last TargetHistorySize distinct selections rather than the
// last N ticks. Not safe for concurrent use; the engine owns it.
type History struct {
	cap   int
	items []Target
}

// NewHistory returns a history ring with the given capacity. A
// non-positive capacity falls back to TargetHistorySize.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = TargetHistorySize
	}
	return &History{cap: capacity, items: make([]Target, 0, capacity)}
}

// Add records t as the most recent tracked target. If t has the same ID
// as the newest entry, that entry is updated in place.
func (h *History) Add(t Target) {
	if n := len(h.items); n > 0 && h.items[n-1].ID == t.ID {
		h.items[n-1] = t
		return
	}
	h.items = append(h.items, t)
	if len(h.items) > h.cap {
		h.items = h.items[len(h.items)-h.cap:]
	}
}

// Recent returns a copy of the ring, newest last.
func (h *History) Recent() []Target {
	out := make([]Target, len(h.items))
	copy(out, h.items)
	return out
}

// Last returns the newest entry, if any.
func (h *History) Last() (Target, bool) {
	if len(h.items) == 0 {
		return Target{}, false
	}
	return h.items[len(h.items)-1], true
}

// Len returns the number of retained entries.
func (h *History) Len() int { return len(h.items) }
