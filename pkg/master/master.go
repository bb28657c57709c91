package master

import (
	"time"

	"github.com/cuemby/strata/pkg/blockregistry"
	"github.com/cuemby/strata/pkg/containerid"
	"github.com/cuemby/strata/pkg/journal"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/safemode"
	"github.com/cuemby/strata/pkg/stagingstub"
	"github.com/cuemby/strata/pkg/types"
	"github.com/cuemby/strata/pkg/workerregistry"
	"github.com/rs/zerolog"
)

// defaultTierOrder is used when Config.TierOrder is empty.
var defaultTierOrder = []types.TierAlias{"MEM", "SSD", "HDD"}

// Config configures a Master's components.
type Config struct {
	NodeID    string
	BindAddr  string
	DataDir   string
	TierOrder []types.TierAlias

	// Staging, if nil, defaults to stagingstub.Noop{}.
	Staging stagingstub.Notifier
}

// Master is the Protocol Handlers component (C4): it owns and
// composes the block registry (C1), worker registry (C2), container
// id generator (C3) and journal adapter (C6).
type Master struct {
	blocks  *blockregistry.Registry
	workers *workerregistry.Registry
	gen     *containerid.Generator
	journal *journal.Adapter
	safe    *safemode.Gate
	staging stagingstub.Notifier

	log zerolog.Logger
}

// New wires every component together but does not start the journal;
// call Bootstrap for that.
func New(cfg Config) *Master {
	tierOrder := cfg.TierOrder
	if len(tierOrder) == 0 {
		tierOrder = defaultTierOrder
	}
	staging := cfg.Staging
	if staging == nil {
		staging = stagingstub.Noop{}
	}

	blocks := blockregistry.New(tierOrder)
	gen := containerid.New()
	workers := workerregistry.New(blocks)

	applier := compositeApplier{blocks: blocks, gen: gen}
	adapter := journal.NewAdapter(journal.Config{
		NodeID:   cfg.NodeID,
		BindAddr: cfg.BindAddr,
		DataDir:  cfg.DataDir,
	}, applier, applier)
	gen.BindJournal(adapter)

	return &Master{
		blocks:  blocks,
		workers: workers,
		gen:     gen,
		journal: adapter,
		safe:    &safemode.Gate{},
		staging: staging,
		log:     log.WithComponent("master"),
	}
}

// Bootstrap starts the journal, replaying any prior state before it
// returns.
func (m *Master) Bootstrap() error {
	return m.journal.Bootstrap()
}

// Shutdown stops the journal.
func (m *Master) Shutdown() error {
	return m.journal.Shutdown()
}

// SafeMode exposes the injectable safe-mode gate so an operator
// surface (out of scope here) can engage/disengage it.
func (m *Master) SafeMode() *safemode.Gate {
	return m.safe
}

// SweepTimeouts drives the lost-worker detector (C5): it moves workers
// silent longer than timeoutMs from active to lost and returns their
// ids. As with removeBlocks, the staging collaborator is told about
// every replica the sweep released.
func (m *Master) SweepTimeouts(nowMs, timeoutMs int64) []uint64 {
	releases := m.workers.SweepTimeoutsDetailed(nowMs, timeoutMs)
	ids := make([]uint64, 0, len(releases))
	for _, r := range releases {
		ids = append(ids, r.WorkerID)
		for _, blockID := range r.BlockIDs {
			m.staging.OnBlockRemoved(r.WorkerID, blockID)
		}
	}
	return ids
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
