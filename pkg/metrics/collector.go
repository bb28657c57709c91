package metrics

import (
	"time"

	"github.com/cuemby/strata/pkg/types"
)

// StatsSource is the narrow view of cluster state the Collector scrapes
// on each tick. The master implements it; metrics stays decoupled from
// the master package to avoid an import cycle (the master already
// imports metrics to update HandlerDuration/HandlerRequestsTotal
// in-line with each RPC).
type StatsSource interface {
	WorkerCountsByState() map[string]int
	CapacityByTier() map[types.TierAlias]uint64
	UsedByTier() map[types.TierAlias]uint64
	BlockCount() int
	LostBlockCount() int
}

// Collector periodically snapshots StatsSource into the gauges defined
// in metrics.go.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for state, count := range c.source.WorkerCountsByState() {
		WorkersTotal.WithLabelValues(state).Set(float64(count))
	}
	for tier, bytes := range c.source.CapacityByTier() {
		CapacityBytes.WithLabelValues(string(tier)).Set(float64(bytes))
	}
	for tier, bytes := range c.source.UsedByTier() {
		UsedBytes.WithLabelValues(string(tier)).Set(float64(bytes))
	}
	BlocksTotal.Set(float64(c.source.BlockCount()))
	LostBlocksTotal.Set(float64(c.source.LostBlockCount()))
}
