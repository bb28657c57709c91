package master

import "github.com/cuemby/strata/pkg/types"

// The methods below make Master satisfy metrics.StatsSource and
// api.ReadinessSource structurally, without either package importing
// this one.

// WorkerCountsByState feeds metrics.StatsSource.
func (m *Master) WorkerCountsByState() map[string]int {
	return m.workers.CountsByState()
}

// CapacityByTier feeds metrics.StatsSource.
func (m *Master) CapacityByTier() map[types.TierAlias]uint64 {
	return m.workers.CapacityByTier()
}

// UsedByTier feeds metrics.StatsSource.
func (m *Master) UsedByTier() map[types.TierAlias]uint64 {
	return m.workers.UsedByTier()
}

// BlockCount feeds metrics.StatsSource.
func (m *Master) BlockCount() int {
	return m.blocks.Count()
}

// LostBlockCount feeds metrics.StatsSource.
func (m *Master) LostBlockCount() int {
	return m.blocks.LostCount()
}

// Ready feeds api.ReadinessSource: the master is ready once it is out
// of safe mode. The journal check is always "up" here because a
// Master that failed to bootstrap is never handed to the health
// server in the first place.
func (m *Master) Ready() (ready bool, checks map[string]string) {
	checks = map[string]string{"journal": "up"}
	if m.safe.Engaged() {
		checks["safe_mode"] = "engaged"
		return false, checks
	}
	checks["safe_mode"] = "disengaged"
	return true, checks
}
