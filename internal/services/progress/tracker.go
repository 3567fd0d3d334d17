// Package progress tracks how many files of a transfer have completed.
package progress

import "sync/atomic"

// Tracker counts completed files out of a fixed total.
// Advance and Snapshot are safe for concurrent use.
type Tracker struct {
	total     int64
	completed atomic.Int64
}

// New creates a tracker for total files. Negative totals are treated as zero.
func New(total int) *Tracker {
	if total < 0 {
		total = 0
	}
	return &Tracker{total: int64(total)}
}

// Advance marks one more file as completed. It returns false, leaving the
// count unchanged, once the total has been reached.
func (t *Tracker) Advance() bool {
	for {
		cur := t.completed.Load()
		if cur >= t.total {
			return false
		}
		if t.completed.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Snapshot returns the completed and total counts.
func (t *Tracker) Snapshot() (completed, total int) {
	return int(t.completed.Load()), int(t.total)
}

// Done reports whether every file has completed.
func (t *Tracker) Done() bool {
	return t.completed.Load() == t.total
}
