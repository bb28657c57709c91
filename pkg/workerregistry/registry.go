package workerregistry

import (
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cuemby/strata/pkg/mastererr"
	"github.com/cuemby/strata/pkg/types"
)

// WorkerInfo is one registry entry, shared by whichever of the three
// sets currently holds it. Every mutable field lives behind mu; id and
// address never change after construction and may be read lock-free.
type WorkerInfo struct {
	mu sync.Mutex

	id      uint64
	address types.NetAddress

	capacityByTier map[types.TierAlias]uint64
	usedByTier     map[types.TierAlias]uint64
	residentBlocks map[uint64]types.TierAlias

	pendingRemove []uint64

	lastHeartbeatMs int64
}

// BlockLinker is the slice of the block registry the worker registry
// needs: updating replica locations and checking whether a reported
// block id is one the block registry actually knows about. Defined
// here (depending only on types) so blockregistry can satisfy it
// structurally without workerregistry importing blockregistry.
type BlockLinker interface {
	AddWorkerLocation(blockID, workerID uint64, tier types.TierAlias)
	RemoveWorkerLocation(blockID, workerID uint64)
	BlockKnown(blockID uint64) bool
}

// Registry owns the three disjoint worker sets. setsMu serializes any
// operation that moves a worker between sets (mint, register, mark
// lost) since two independent sync.Maps can't be updated atomically
// without external help. It is never held across a blocks.* call, and
// the only WorkerInfo.mu taken under it is MintWorkerID's liveness
// refresh; no path acquires setsMu while holding a WorkerInfo.mu, which
// keeps the global worker-before-block lock ordering intact.
type Registry struct {
	setsMu sync.Mutex

	active *workerSet
	lost   *workerSet
	temp   *workerSet

	blocks BlockLinker
}

// New creates an empty registry backed by the given block linker.
func New(blocks BlockLinker) *Registry {
	return &Registry{
		active: &workerSet{},
		lost:   &workerSet{},
		temp:   &workerSet{},
		blocks: blocks,
	}
}

// MintWorkerID implements mint_worker_id (§4.2): an address already
// active keeps its id; an address waiting in temp or lost is promoted
// back to active; a never-seen address gets a fresh random id and a
// new temp entry.
func (reg *Registry) MintWorkerID(addr types.NetAddress, nowMs int64) uint64 {
	reg.setsMu.Lock()
	defer reg.setsMu.Unlock()

	if w, ok := reg.active.lookupByAddr(addr); ok {
		return w.id
	}
	if w, ok := reg.temp.lookupByAddr(addr); ok {
		reg.temp.remove(w)
		reg.active.insert(w)
		w.mu.Lock()
		w.lastHeartbeatMs = nowMs
		w.mu.Unlock()
		return w.id
	}
	if w, ok := reg.lost.lookupByAddr(addr); ok {
		reg.lost.remove(w)
		reg.active.insert(w)
		w.mu.Lock()
		w.lastHeartbeatMs = nowMs
		w.mu.Unlock()
		return w.id
	}

	id := reg.randomUnusedID()
	w := &WorkerInfo{
		id:             id,
		address:        addr,
		capacityByTier: make(map[types.TierAlias]uint64),
		usedByTier:     make(map[types.TierAlias]uint64),
		residentBlocks: make(map[uint64]types.TierAlias),
	}
	reg.temp.insert(w)
	return id
}

func (reg *Registry) randomUnusedID() uint64 {
	for {
		id := rand.Uint64() >> 1 // non-negative in case callers treat it as signed
		if reg.idExists(id) {
			continue
		}
		return id
	}
}

func (reg *Registry) idExists(id uint64) bool {
	return reg.active.hasID(id) || reg.lost.hasID(id) || reg.temp.hasID(id)
}

// lookupAnySet finds a worker by id in whichever of the three sets
// currently holds it.
func (reg *Registry) lookupAnySet(workerID uint64) (*WorkerInfo, bool) {
	if w, ok := reg.active.lookupByID(workerID); ok {
		return w, true
	}
	if w, ok := reg.temp.lookupByID(workerID); ok {
		return w, true
	}
	if w, ok := reg.lost.lookupByID(workerID); ok {
		return w, true
	}
	return nil, false
}

// Register implements register (§4.2): a temp worker is promoted to
// active; an already-active worker is accepted as a resend. Any other
// state (unknown, or found only in lost) is rejected since a worker
// must mint an id before registering. Resident blocks not already
// present in the block registry are queued into pendingRemove for the
// next heartbeat response.
func (reg *Registry) Register(workerID uint64, capacityByTier, usedByTier map[types.TierAlias]uint64, blocksByTier map[types.TierAlias][]uint64, nowMs int64) error {
	reg.setsMu.Lock()
	w, inActive := reg.active.lookupByID(workerID)
	if !inActive {
		tw, inTemp := reg.temp.lookupByID(workerID)
		if !inTemp {
			reg.setsMu.Unlock()
			return mastererr.ErrNoWorker
		}
		reg.temp.remove(tw)
		reg.active.insert(tw)
		w = tw
	}
	reg.setsMu.Unlock()

	newResident := make(map[uint64]types.TierAlias)
	for tier, ids := range blocksByTier {
		for _, id := range ids {
			newResident[id] = tier
		}
	}

	if capacityByTier == nil {
		capacityByTier = make(map[types.TierAlias]uint64)
	}
	if usedByTier == nil {
		usedByTier = make(map[types.TierAlias]uint64)
	}

	w.mu.Lock()
	oldResident := w.residentBlocks
	w.capacityByTier = capacityByTier
	w.usedByTier = usedByTier
	w.residentBlocks = newResident
	w.lastHeartbeatMs = nowMs

	var removed, added []uint64
	for id := range oldResident {
		if _, ok := newResident[id]; !ok {
			removed = append(removed, id)
		}
	}
	for id := range newResident {
		if _, ok := oldResident[id]; !ok {
			added = append(added, id)
		}
	}
	w.mu.Unlock()

	for _, id := range removed {
		reg.blocks.RemoveWorkerLocation(id, workerID)
	}
	var orphans []uint64
	for _, id := range added {
		reg.blocks.AddWorkerLocation(id, workerID, newResident[id])
		if !reg.blocks.BlockKnown(id) {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		w.mu.Lock()
		w.pendingRemove = append(w.pendingRemove, orphans...)
		w.mu.Unlock()
	}
	return nil
}

// CommitBlock implements commitBlock's worker-side mutation (§4.4):
// locate workerID in active, lock it, update its reported usage for
// tier, record blockID in its resident set and refresh liveness. It
// never touches the block registry itself — the global lock order is
// worker-before-block, and the block record commitBlock links against
// may not exist yet, so the caller links the two after this returns
// (see Master.CommitBlock). Fails NoWorker if workerID is not active.
func (reg *Registry) CommitBlock(workerID uint64, tier types.TierAlias, usedBytesOnTier uint64, blockID uint64, nowMs int64) error {
	w, ok := reg.active.lookupByID(workerID)
	if !ok {
		return mastererr.ErrNoWorker
	}

	w.mu.Lock()
	w.usedByTier[tier] = usedBytesOnTier
	w.residentBlocks[blockID] = tier
	w.lastHeartbeatMs = nowMs
	w.mu.Unlock()

	return nil
}

// QueuePendingRemove appends blockID to workerID's pending_remove list,
// wherever that worker currently sits (active, lost or temp); a worker
// that has gone lost still receives the instruction for its next
// reconnect. A workerID no longer known anywhere is silently ignored —
// removeBlocks treats the worker link as a best-effort side-signal.
func (reg *Registry) QueuePendingRemove(workerID, blockID uint64) {
	w, ok := reg.lookupAnySet(workerID)
	if !ok {
		return
	}
	w.mu.Lock()
	w.pendingRemove = append(w.pendingRemove, blockID)
	w.mu.Unlock()
}

// Heartbeat implements heartbeat (§4.2). A worker not found active
// must re-register; the caller is told this via types.CommandRegister.
// Otherwise replica deltas are applied, usage and liveness are
// refreshed, and any queued pendingRemove ids are drained into a
// types.CommandFree for the caller to relay back to the worker.
func (reg *Registry) Heartbeat(workerID uint64, usedByTier map[types.TierAlias]uint64, removedBlocks []uint64, addedBlocksByTier map[types.TierAlias][]uint64, nowMs int64) types.Command {
	w, ok := reg.active.lookupByID(workerID)
	if !ok {
		return types.Command{Kind: types.CommandRegister}
	}

	w.mu.Lock()
	for _, id := range removedBlocks {
		reg.blocks.RemoveWorkerLocation(id, workerID)
		delete(w.residentBlocks, id)
	}
	var orphans []uint64
	for tier, ids := range addedBlocksByTier {
		for _, id := range ids {
			reg.blocks.AddWorkerLocation(id, workerID, tier)
			if !reg.blocks.BlockKnown(id) {
				orphans = append(orphans, id)
			}
			w.residentBlocks[id] = tier
		}
	}
	if usedByTier != nil {
		w.usedByTier = usedByTier
	}
	w.lastHeartbeatMs = nowMs
	if len(orphans) > 0 {
		w.pendingRemove = append(w.pendingRemove, orphans...)
	}
	drained := w.pendingRemove
	w.pendingRemove = nil
	w.mu.Unlock()

	if len(drained) == 0 {
		return types.Command{Kind: types.CommandNothing}
	}
	return types.Command{Kind: types.CommandFree, BlockIDs: drained}
}

// MarkLost moves workerID from active to lost and releases every
// replica it held, which may move the affected blocks into the
// lost-blocks set. Returns the released block ids so the caller can
// notify the staging collaborator the same way removeBlocks does.
func (reg *Registry) MarkLost(workerID uint64) []uint64 {
	reg.setsMu.Lock()
	w, ok := reg.active.lookupByID(workerID)
	if !ok {
		reg.setsMu.Unlock()
		return nil
	}
	reg.active.remove(w)
	reg.lost.insert(w)
	reg.setsMu.Unlock()

	w.mu.Lock()
	resident := w.residentBlocks
	w.mu.Unlock()

	released := make([]uint64, 0, len(resident))
	for id := range resident {
		reg.blocks.RemoveWorkerLocation(id, workerID)
		released = append(released, id)
	}
	return released
}

// LostRelease pairs a newly-lost worker with the blocks it was
// carrying at the moment it was marked lost.
type LostRelease struct {
	WorkerID uint64
	BlockIDs []uint64
}

// SweepTimeoutsDetailed is SweepTimeouts plus the per-worker block ids
// released, so a caller can notify the staging collaborator for each
// one — mirroring removeBlocks's OnBlockRemoved signal.
func (reg *Registry) SweepTimeoutsDetailed(nowMs, timeoutMs int64) []LostRelease {
	var stale []uint64
	reg.active.forEach(func(w *WorkerInfo) {
		w.mu.Lock()
		last := w.lastHeartbeatMs
		w.mu.Unlock()
		if nowMs-last > timeoutMs {
			stale = append(stale, w.id)
		}
	})
	releases := make([]LostRelease, 0, len(stale))
	for _, id := range stale {
		releases = append(releases, LostRelease{WorkerID: id, BlockIDs: reg.MarkLost(id)})
	}
	return releases
}

// SweepTimeouts is the Lost-Worker Detector's (C5) core check: every
// active worker whose last heartbeat is older than timeoutMs is marked
// lost. Returns the ids newly marked, for the caller to log and count.
func (reg *Registry) SweepTimeouts(nowMs, timeoutMs int64) []uint64 {
	releases := reg.SweepTimeoutsDetailed(nowMs, timeoutMs)
	ids := make([]uint64, len(releases))
	for i, r := range releases {
		ids[i] = r.WorkerID
	}
	return ids
}

func viewOf(w *WorkerInfo) types.WorkerView {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]uint64, 0, len(w.residentBlocks))
	for id := range w.residentBlocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	capacity := make(map[types.TierAlias]uint64, len(w.capacityByTier))
	for t, v := range w.capacityByTier {
		capacity[t] = v
	}
	used := make(map[types.TierAlias]uint64, len(w.usedByTier))
	for t, v := range w.usedByTier {
		used[t] = v
	}

	return types.WorkerView{
		ID:               w.id,
		Address:          w.address,
		CapacityByTier:   capacity,
		UsedByTier:       used,
		ResidentBlockIDs: ids,
		LastHeartbeatMs:  w.lastHeartbeatMs,
	}
}

// WorkerView returns a snapshot of workerID if it is currently active.
func (reg *Registry) WorkerView(workerID uint64) (types.WorkerView, bool) {
	w, ok := reg.active.lookupByID(workerID)
	if !ok {
		return types.WorkerView{}, false
	}
	return viewOf(w), true
}

// ListActive returns a snapshot of every active worker.
func (reg *Registry) ListActive() []types.WorkerView {
	var out []types.WorkerView
	reg.active.forEach(func(w *WorkerInfo) {
		out = append(out, viewOf(w))
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListLost returns a snapshot of every lost worker, ascending by
// seconds since last contact, per getLostWorkersInfoList (§6).
func (reg *Registry) ListLost(nowMs int64) []types.LostWorkerView {
	var out []types.LostWorkerView
	reg.lost.forEach(func(w *WorkerInfo) {
		v := viewOf(w)
		out = append(out, types.LostWorkerView{
			WorkerView:          v,
			SecondsSinceContact: (nowMs - v.LastHeartbeatMs) / 1000,
		})
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].SecondsSinceContact < out[j].SecondsSinceContact
	})
	return out
}

// CapacityByTier sums active workers' capacity per tier.
func (reg *Registry) CapacityByTier() map[types.TierAlias]uint64 {
	return reg.sumByTier(func(w *WorkerInfo) map[types.TierAlias]uint64 { return w.capacityByTier })
}

// UsedByTier sums active workers' used space per tier.
func (reg *Registry) UsedByTier() map[types.TierAlias]uint64 {
	return reg.sumByTier(func(w *WorkerInfo) map[types.TierAlias]uint64 { return w.usedByTier })
}

func (reg *Registry) sumByTier(pick func(*WorkerInfo) map[types.TierAlias]uint64) map[types.TierAlias]uint64 {
	out := make(map[types.TierAlias]uint64)
	reg.active.forEach(func(w *WorkerInfo) {
		w.mu.Lock()
		for t, v := range pick(w) {
			out[t] += v
		}
		w.mu.Unlock()
	})
	return out
}

// CountsByState feeds metrics.StatsSource: active/lost/temp sizes.
func (reg *Registry) CountsByState() map[string]int {
	counts := map[string]int{"active": 0, "lost": 0, "temp": 0}
	reg.active.forEach(func(*WorkerInfo) { counts["active"]++ })
	reg.lost.forEach(func(*WorkerInfo) { counts["lost"]++ })
	reg.temp.forEach(func(*WorkerInfo) { counts["temp"]++ })
	return counts
}
