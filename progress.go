package asftp

import "time"

// progressGate_ coalesces chunk completion events: at most one event
// passes per interval.  The transfer loop delivers the final event
// itself, unconditionally.
type progressGate_ struct {
	last  time.Time
	every time.Duration
}

func newProgressGate(every time.Duration) *progressGate_ {
	return &progressGate_{every: every}
}

// return true if an update may be delivered now
func (g *progressGate_) allow() bool {
	if 0 >= g.every {
		return true
	}
	now := time.Now()
	if now.Sub(g.last) < g.every {
		return false
	}
	g.last = now
	return true
}
