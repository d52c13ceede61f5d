package worker

import "sync/atomic"

// Gate caps the number of in-flight tasks of one kind.
type Gate struct {
	limit int32
	n     atomic.Int32
	peak  atomic.Int32
}

// NewGate returns a gate admitting at most limit concurrent holders.
func NewGate(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{limit: int32(limit)}
}

// TryAcquire takes a slot if one is free.
func (g *Gate) TryAcquire() bool {
	for {
		cur := g.n.Load()
		if cur >= g.limit {
			return false
		}
		if g.n.CompareAndSwap(cur, cur+1) {
			g.notePeak(cur + 1)
			return true
		}
	}
}

func (g *Gate) notePeak(v int32) {
	for {
		p := g.peak.Load()
		if v <= p || g.peak.CompareAndSwap(p, v) {
			return
		}
	}
}

// Release frees a slot taken by TryAcquire.
func (g *Gate) Release() {
	g.n.Add(-1)
}

// InFlight returns the number of held slots.
func (g *Gate) InFlight() int { return int(g.n.Load()) }

// Peak returns the highest InFlight value observed.
func (g *Gate) Peak() int { return int(g.peak.Load()) }

// Limit returns the gate's capacity.
func (g *Gate) Limit() int { return int(g.limit) }
