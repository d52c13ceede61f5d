package game

import "time"

// TickLimiter paces a loop to a fixed rate.
type TickLimiter struct {
	target time.Duration
	next   time.Time
}

// NewTickLimiter paces to hz ticks per second; hz <= 0 never waits.
func NewTickLimiter(hz int) *TickLimiter {
	l := &TickLimiter{}
	if hz > 0 {
		l.target = time.Second / time.Duration(hz)
	}
	return l
}

// Wait blocks until the next tick is due. Uses a sleep then a short spin
// for precision at high rates.
func (l *TickLimiter) Wait() {
	if l.target <= 0 {
		return
	}
	if l.next.IsZero() {
		l.next = time.Now().Add(l.target)
	} else {
		l.next = l.next.Add(l.target)
	}

	for {
		remaining := time.Until(l.next)
		if remaining <= 0 {
			break
		}
		if remaining > 200*time.Microsecond {
			time.Sleep(remaining - 200*time.Microsecond)
		}
	}

	// resync after a hitch instead of bursting to catch up
	if late := -time.Until(l.next); late > l.target {
		l.next = time.Now().Add(l.target)
	}
}
