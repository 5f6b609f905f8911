package engine

import (
	"time"

	"github.com/hailam/chesscore/internal/board"
)

// TimeManager turns clock limits into a soft cap, checked between
// iterations, and a hard cap, checked inside the search.
type TimeManager struct {
	start time.Time
	soft  time.Duration
	hard  time.Duration
	timed bool
}

// Init computes the caps for a search by side us. overhead is subtracted from
// the available time to cover communication latency.
func (tm *TimeManager) Init(limits Limits, us board.Color, overhead time.Duration) {
	tm.start = time.Now()
	tm.timed = false

	if limits.MoveTime > 0 {
		t := max(limits.MoveTime-overhead, time.Millisecond)
		tm.soft, tm.hard, tm.timed = t, t, true
		return
	}
	if limits.Infinite || limits.Time[us] <= 0 {
		return
	}

	left := max(limits.Time[us]-overhead, time.Millisecond)
	inc := limits.Inc[us]

	mtg := limits.MovesToGo
	if mtg <= 0 || mtg > 40 {
		mtg = 40
	}

	base := left/time.Duration(mtg) + inc*3/4
	tm.soft = min(base, left/2)
	tm.hard = min(base*4, left*3/4)
	if mtg == 1 {
		tm.soft = left * 8 / 10
		tm.hard = left * 9 / 10
	}
	tm.soft = max(tm.soft, time.Millisecond)
	tm.hard = max(tm.hard, tm.soft)
	tm.timed = true
}

// Elapsed returns the time since Init.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.start)
}

// SoftExpired reports whether starting another iteration is unwise.
// stability scales the soft cap down once the best move has settled.
func (tm *TimeManager) SoftExpired(stability int) bool {
	if !tm.timed {
		return false
	}
	scale := [...]int{140, 110, 95, 85, 75}
	limit := tm.soft * time.Duration(scale[min(stability, len(scale)-1)]) / 100
	return tm.Elapsed() >= min(limit, tm.hard)
}

// HardExpired reports whether the search must stop now.
func (tm *TimeManager) HardExpired() bool {
	return tm.timed && tm.Elapsed() >= tm.hard
}

// Timed reports whether the search has a time limit.
func (tm *TimeManager) Timed() bool { return tm.timed }

// Soft and Hard expose the computed caps.
func (tm *TimeManager) Soft() time.Duration { return tm.soft }
func (tm *TimeManager) Hard() time.Duration { return tm.hard }
