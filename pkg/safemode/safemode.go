// Package safemode gates the read handlers the spec marks as
// safe-mode sensitive. It is deliberately minimal: whatever decides
// when to flip the gate (an operator command, a quorum check, a
// startup-replay guard) is out of scope here.
package safemode

import "sync/atomic"

// Gate reports whether the master is currently refusing the handlers
// that are safe-mode sensitive. The zero value is disengaged.
type Gate struct {
	engaged atomic.Bool
}

// Engaged reports the current state.
func (g *Gate) Engaged() bool {
	return g.engaged.Load()
}

// Engage flips the gate on.
func (g *Gate) Engage() {
	g.engaged.Store(true)
}

// Disengage flips the gate off.
func (g *Gate) Disengage() {
	g.engaged.Store(false)
}
