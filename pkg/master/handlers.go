package master

import (
	"github.com/cuemby/strata/pkg/journal"
	"github.com/cuemby/strata/pkg/mastererr"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/types"
)

func (m *Master) observe(handler string, timer *metrics.Timer, outcome string) {
	timer.ObserveDurationVec(metrics.HandlerDuration, handler)
	metrics.HandlerRequestsTotal.WithLabelValues(handler, outcome).Inc()
}

// GetWorkerID implements getWorkerId (§6): mints or reuses an id for
// address, in temp_workers until the worker completes WorkerRegister.
func (m *Master) GetWorkerID(address types.NetAddress) uint64 {
	timer := metrics.NewTimer()
	id := m.workers.MintWorkerID(address, nowMs())
	m.observe("getWorkerId", timer, "ok")
	return id
}

// WorkerRegister implements workerRegister (§6/§4.2).
func (m *Master) WorkerRegister(workerID uint64, capacityByTier, usedByTier map[types.TierAlias]uint64, blocksByTier map[types.TierAlias][]uint64) error {
	timer := metrics.NewTimer()
	err := m.workers.Register(workerID, capacityByTier, usedByTier, blocksByTier, nowMs())
	if err != nil {
		m.observe("workerRegister", timer, "no_worker")
		return err
	}
	m.observe("workerRegister", timer, "ok")
	return nil
}

// WorkerHeartbeat implements workerHeartbeat (§6/§4.2). An unknown
// worker is not an error; the command itself tells the caller to
// re-register.
func (m *Master) WorkerHeartbeat(workerID uint64, usedByTier map[types.TierAlias]uint64, removedBlocks []uint64, addedBlocksByTier map[types.TierAlias][]uint64) types.Command {
	timer := metrics.NewTimer()
	cmd := m.workers.Heartbeat(workerID, usedByTier, removedBlocks, addedBlocksByTier, nowMs())
	m.observe("workerHeartbeat", timer, "ok")
	return cmd
}

// CommitBlock implements commitBlock (§4.4). The worker existence
// check happens before any block-side state is touched, so a commit
// from an id the master does not recognize as active never creates a
// block record; CommitBlock itself rechecks the same condition (the
// "confirm still present" pattern §9 calls out), so a worker that goes
// lost between the two checks fails cleanly rather than corrupting
// state.
func (m *Master) CommitBlock(workerID uint64, usedBytesOnTier uint64, tier types.TierAlias, blockID, length uint64) error {
	timer := metrics.NewTimer()
	if _, ok := m.workers.WorkerView(workerID); !ok {
		m.observe("commitBlock", timer, "no_worker")
		return mastererr.ErrNoWorker
	}

	scope := m.journal.Scope()

	if err := m.workers.CommitBlock(workerID, tier, usedBytesOnTier, blockID, nowMs()); err != nil {
		m.observe("commitBlock", timer, "no_worker")
		return err
	}

	created, upgraded := m.blocks.EnsureBlock(blockID, length)
	m.blocks.AddWorkerLocation(blockID, workerID, tier)

	if created || upgraded {
		scope.Append(journal.BlockInfoEntry(blockID, length))
	}
	if err := scope.Commit(); err != nil {
		m.observe("commitBlock", timer, "unavailable")
		return err
	}
	m.observe("commitBlock", timer, "ok")
	return nil
}

// CommitBlockInUFS implements commitBlockInUFS (§4.4): an
// under-filesystem commit with no worker side.
func (m *Master) CommitBlockInUFS(blockID, length uint64) error {
	timer := metrics.NewTimer()
	scope := m.journal.Scope()
	created, upgraded := m.blocks.EnsureBlock(blockID, length)
	if !created && !upgraded {
		m.observe("commitBlockInUFS", timer, "noop")
		return nil
	}
	scope.Append(journal.BlockInfoEntry(blockID, length))
	if err := scope.Commit(); err != nil {
		m.observe("commitBlockInUFS", timer, "unavailable")
		return err
	}
	m.observe("commitBlockInUFS", timer, "ok")
	return nil
}

// RemoveBlocks implements removeBlocks (§4.4). Per id: collect its
// worker set and, if delete, drop it from the registry and emit
// DeleteBlock. Only afterward — deliberately inverting the usual
// worker-before-block order, since the block is no longer reachable
// and the worker mutation is just a side-signal — each collected
// worker gets blockID appended to pending_remove, and the staging
// collaborator (if any) is told the replica is gone.
func (m *Master) RemoveBlocks(ids []uint64, delete bool) error {
	timer := metrics.NewTimer()
	scope := m.journal.Scope()

	for _, id := range ids {
		workerIDs, found, deleted := m.blocks.CollectLocationsAndMaybeDelete(id, delete)
		if !found {
			continue
		}
		if deleted {
			scope.Append(journal.DeleteBlockEntry(id))
		}
		for _, workerID := range workerIDs {
			m.workers.QueuePendingRemove(workerID, id)
			m.staging.OnBlockRemoved(workerID, id)
		}
	}

	if err := scope.Commit(); err != nil {
		m.observe("removeBlocks", timer, "unavailable")
		return err
	}
	m.observe("removeBlocks", timer, "ok")
	return nil
}

// ValidateBlocks implements validateBlocks (§4.4): predicate runs over
// a single consistent snapshot of the block-id key set (§9 open
// question, resolved toward consistency), so concurrent deletes during
// iteration cannot produce spurious invalid classifications.
func (m *Master) ValidateBlocks(predicate func(blockID uint64) bool, repair bool) ([]uint64, error) {
	ids := m.blocks.SnapshotIDs()
	var invalid []uint64
	for _, id := range ids {
		if !predicate(id) {
			invalid = append(invalid, id)
		}
	}
	if repair && len(invalid) > 0 {
		if err := m.RemoveBlocks(invalid, true); err != nil {
			return invalid, err
		}
	}
	return invalid, nil
}

// GetBlockInfo implements getBlockInfo (§4.1/§6).
func (m *Master) GetBlockInfo(blockID uint64) (types.BlockInfo, error) {
	if m.safe.Engaged() {
		return types.BlockInfo{}, mastererr.ErrUnavailable
	}
	info, ok := m.blocks.Lookup(blockID)
	if !ok {
		return types.BlockInfo{}, mastererr.ErrNotFound
	}
	return info, nil
}

// GetBlockInfoList implements getBlockInfoList (§6): missing ids are
// silently skipped rather than erroring the whole call.
func (m *Master) GetBlockInfoList(blockIDs []uint64) ([]types.BlockInfo, error) {
	if m.safe.Engaged() {
		return nil, mastererr.ErrUnavailable
	}
	out := make([]types.BlockInfo, 0, len(blockIDs))
	for _, id := range blockIDs {
		if info, ok := m.blocks.Lookup(id); ok {
			out = append(out, info)
		}
	}
	return out, nil
}

// ReportLostBlocks implements reportLostBlocks (§4.4).
func (m *Master) ReportLostBlocks(blockIDs []uint64) {
	m.blocks.ReportLost(blockIDs)
}

// GetNewContainerID implements getNewContainerId (§4.3/§6).
func (m *Master) GetNewContainerID() (uint64, error) {
	timer := metrics.NewTimer()
	id, err := m.gen.NewContainerID()
	if err != nil {
		m.observe("getNewContainerId", timer, "unavailable")
		return 0, err
	}
	m.observe("getNewContainerId", timer, "ok")
	return id, nil
}

// GetWorkerInfoList implements getWorkerInfoList (§6).
func (m *Master) GetWorkerInfoList() ([]types.WorkerView, error) {
	if m.safe.Engaged() {
		return nil, mastererr.ErrUnavailable
	}
	return m.workers.ListActive(), nil
}

// GetLostWorkersInfoList implements getLostWorkersInfoList (§6),
// sorted ascending by seconds since last contact.
func (m *Master) GetLostWorkersInfoList() []types.LostWorkerView {
	return m.workers.ListLost(nowMs())
}

// GetCapacityBytes implements getCapacityBytes (§6).
func (m *Master) GetCapacityBytes() (uint64, error) {
	if m.safe.Engaged() {
		return 0, mastererr.ErrUnavailable
	}
	return sumTierBytes(m.workers.CapacityByTier()), nil
}

// GetUsedBytes implements getUsedBytes (§6).
func (m *Master) GetUsedBytes() (uint64, error) {
	if m.safe.Engaged() {
		return 0, mastererr.ErrUnavailable
	}
	return sumTierBytes(m.workers.UsedByTier()), nil
}

// GetTotalBytesOnTiers implements getTotalBytesOnTiers (§6).
func (m *Master) GetTotalBytesOnTiers() (map[types.TierAlias]uint64, error) {
	if m.safe.Engaged() {
		return nil, mastererr.ErrUnavailable
	}
	return m.workers.CapacityByTier(), nil
}

// GetUsedBytesOnTiers implements getUsedBytesOnTiers (§6).
func (m *Master) GetUsedBytesOnTiers() (map[types.TierAlias]uint64, error) {
	if m.safe.Engaged() {
		return nil, mastererr.ErrUnavailable
	}
	return m.workers.UsedByTier(), nil
}

func sumTierBytes(byTier map[types.TierAlias]uint64) uint64 {
	var total uint64
	for _, v := range byTier {
		total += v
	}
	return total
}
