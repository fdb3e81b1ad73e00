package service

import "time"

// CooldownGate suppresses actions closer than window to the last recorded one.
type CooldownGate struct {
	window time.Duration
	last   time.Time
	acted  bool
}

func NewCooldownGate(window time.Duration) *CooldownGate {
	return &CooldownGate{window: window}
}

func (g *CooldownGate) Allow(now time.Time) bool {
	if g.window <= 0 || !g.acted {
		return true
	}
	return now.Sub(g.last) >= g.window
}

func (g *CooldownGate) Record(now time.Time) {
	g.last = now
	g.acted = true
}

// LastAction returns the time of the last recorded action, false if none.
func (g *CooldownGate) LastAction() (time.Time, bool) {
	return g.last, g.acted
}
