// Package diag provides rate-limited gating for repeated diagnostic
// events (deadlock detection, fatal-condition logging) so that a
// condition that persists across many ticks does not flood the
// configured Logger.
//
// This is a single-threaded adaptation of catrate.Limiter's sliding
// window algorithm (see DESIGN.md): the kernel only ever calls into
// diag from inside its own held critical section, so there is no
// sync.Map, no atomic counters, and no background cleanup goroutine --
// a category simply owns a small sorted slice of its own most recent
// event ticks, filtered the same way catrate's filterEvents trims a
// category's ring buffer against each configured window.
package diag

import "sort"

// Limiter rate-limits diagnostic events per category across one or more
// sliding windows, measured in kernel ticks rather than wall-clock time.
type Limiter struct {
	rates      map[uint32]int
	categories map[string]*category
}

type category struct {
	events []uint32 // ascending tick timestamps
}

// NewLimiter constructs a Limiter from a map of window length (in ticks)
// to the maximum number of events permitted within that window. Entries
// with a non-positive window or limit are ignored.
func NewLimiter(rates map[uint32]int) *Limiter {
	clean := make(map[uint32]int, len(rates))
	for window, limit := range rates {
		if window > 0 && limit > 0 {
			clean[window] = limit
		}
	}
	return &Limiter{rates: clean, categories: make(map[string]*category)}
}

// Allow reports whether an event in category at tick now may be recorded
// without exceeding any configured rate. If so, it is recorded and Allow
// returns true; otherwise the category's window is still pruned of
// stale events, but the new one is not recorded.
func (l *Limiter) Allow(cat string, now uint32) bool {
	if l == nil || len(l.rates) == 0 {
		return true
	}
	c := l.categories[cat]
	if c == nil {
		c = &category{}
		l.categories[cat] = c
	}
	idxFirstRelevant := len(c.events)
	blocked := false
	for window, limit := range l.rates {
		var boundary int64
		if int64(now)-int64(window) > 0 {
			boundary = int64(now) - int64(window)
		}
		idx := sort.Search(len(c.events), func(i int) bool { return int64(c.events[i]) > boundary })
		if idx < idxFirstRelevant {
			idxFirstRelevant = idx
		}
		if limit <= len(c.events)-idx {
			blocked = true
		}
	}
	c.events = c.events[idxFirstRelevant:]
	if blocked {
		return false
	}
	c.events = append(c.events, now)
	return true
}
