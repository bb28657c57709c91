package blockregistry

import (
	"sort"
	"sync"

	"github.com/cuemby/strata/pkg/types"
)

// block is one registry entry. Every mutation happens under mu; the
// immutable blockID field may be read lock-free.
type block struct {
	mu        sync.Mutex
	blockID   uint64
	length    uint64
	locations map[uint64]types.TierAlias // worker id -> tier
}

// Registry owns all BlockInfo records. mu guards only the top-level
// map (insert/delete of whole blocks); mutation of an existing block's
// length/locations happens under that block's own mutex, never the
// registry mutex, so unrelated blocks never contend.
type Registry struct {
	mu     sync.RWMutex
	blocks map[uint64]*block

	lostMu sync.Mutex
	lost   map[uint64]struct{}

	tierOrder []types.TierAlias
}

// New creates an empty registry. tierOrder gives each tier alias an
// ordinal for lookup's location ordering; ties (including tiers absent
// from tierOrder) are broken by iteration order within a single lookup.
func New(tierOrder []types.TierAlias) *Registry {
	return &Registry{
		blocks: make(map[uint64]*block),
		lost:   make(map[uint64]struct{}),
		tierOrder: tierOrder,
	}
}

func (r *Registry) tierOrdinal(t types.TierAlias) int {
	for i, alias := range r.tierOrder {
		if alias == t {
			return i
		}
	}
	return len(r.tierOrder)
}

// Lookup returns a snapshot of a block's state, locations ordered by
// tier ordinal. The bool is false if the block id is unknown.
func (r *Registry) Lookup(blockID uint64) (types.BlockInfo, bool) {
	r.mu.RLock()
	b := r.blocks[blockID]
	r.mu.RUnlock()
	if b == nil {
		return types.BlockInfo{}, false
	}

	b.mu.Lock()
	info := types.BlockInfo{
		BlockID: b.blockID,
		Length:  b.length,
		Locations: make([]types.BlockLocation, 0, len(b.locations)),
	}
	for workerID, tier := range b.locations {
		info.Locations = append(info.Locations, types.BlockLocation{WorkerID: workerID, Tier: tier})
	}
	b.mu.Unlock()

	sort.SliceStable(info.Locations, func(i, j int) bool {
		return r.tierOrdinal(info.Locations[i].Tier) < r.tierOrdinal(info.Locations[j].Tier)
	})
	return info, true
}

// EnsureBlock implements commit_known's insert-or-upgrade rule: if
// absent, insert with length; if present with UnknownLength, upgrade to
// length; if present with a concrete length already, leave it alone
// (per §3, a frozen length is never overwritten by a later commit of
// the same id). created and lengthUpgraded together tell the caller
// whether a journal entry is owed.
//
// The registry mutex serializes the absent-check against concurrent
// inserts of the same id, which is what the spec's "insert-if-absent,
// on race discard and retry" describes; holding it only across the map
// write (not the per-block mutation) keeps unrelated blocks from
// contending.
func (r *Registry) EnsureBlock(blockID, length uint64) (created, lengthUpgraded bool) {
	r.mu.Lock()
	b, ok := r.blocks[blockID]
	if !ok {
		b = &block{blockID: blockID, length: length, locations: make(map[uint64]types.TierAlias)}
		r.blocks[blockID] = b
		r.mu.Unlock()
		r.addLost(blockID)
		return true, false
	}
	r.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.length == types.UnknownLength && length != types.UnknownLength {
		b.length = length
		return false, true
	}
	return false, false
}

// AddWorkerLocation records that workerID now holds a replica on tier.
// A block that gains its first location leaves the lost-blocks set.
func (r *Registry) AddWorkerLocation(blockID, workerID uint64, tier types.TierAlias) {
	r.mu.RLock()
	b := r.blocks[blockID]
	r.mu.RUnlock()
	if b == nil {
		return
	}

	b.mu.Lock()
	wasEmpty := len(b.locations) == 0
	b.locations[workerID] = tier
	b.mu.Unlock()

	if wasEmpty {
		r.removeLost(blockID)
	}
}

// RemoveWorkerLocation drops workerID's replica. A block whose
// location set becomes empty joins the lost-blocks set.
func (r *Registry) RemoveWorkerLocation(blockID, workerID uint64) {
	r.mu.RLock()
	b := r.blocks[blockID]
	r.mu.RUnlock()
	if b == nil {
		return
	}

	b.mu.Lock()
	delete(b.locations, workerID)
	wentEmpty := len(b.locations) == 0
	b.mu.Unlock()

	if wentEmpty {
		r.addLost(blockID)
	}
}

// CollectLocationsAndMaybeDelete implements removeBlocks's per-id step
// (§4.4): snapshot the block's current worker set, then, if delete is
// true, remove the block from the registry and lost-blocks. found is
// false if blockID was never known. The collect and the delete are two
// separate critical sections rather than one held lock. A location
// removed between them still appears in workerIDs, which only queues a
// redundant (idempotent) pending_remove; a location added between them
// does not appear in workerIDs, so that worker is not told to drop its
// replica.
func (r *Registry) CollectLocationsAndMaybeDelete(blockID uint64, delete bool) (workerIDs []uint64, found, deleted bool) {
	r.mu.RLock()
	b := r.blocks[blockID]
	r.mu.RUnlock()
	if b == nil {
		return nil, false, false
	}

	b.mu.Lock()
	for workerID := range b.locations {
		workerIDs = append(workerIDs, workerID)
	}
	b.mu.Unlock()

	if delete {
		deleted = r.Delete(blockID)
	}
	return workerIDs, true, deleted
}

// Delete atomically removes a block and drops it from lost-blocks.
// Reports whether it was present.
func (r *Registry) Delete(blockID uint64) bool {
	r.mu.Lock()
	_, ok := r.blocks[blockID]
	if ok {
		delete(r.blocks, blockID)
	}
	r.mu.Unlock()

	if ok {
		r.removeLost(blockID)
	}
	return ok
}

// SnapshotIDs returns every known block id under a single lock, giving
// validateBlocks a consistent point-in-time view instead of racing
// concurrent deletes during iteration.
func (r *Registry) SnapshotIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.blocks))
	for id := range r.blocks {
		ids = append(ids, id)
	}
	return ids
}

// AllBlockLengths feeds journal.SnapshotSource: one BlockInfo entry per
// block on snapshot export.
func (r *Registry) AllBlockLengths() map[uint64]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint64]uint64, len(r.blocks))
	for id, b := range r.blocks {
		b.mu.Lock()
		out[id] = b.length
		b.mu.Unlock()
	}
	return out
}

// BlockKnown reports whether blockID exists in the registry, for the
// worker registry's orphan-reclamation check on register.
func (r *Registry) BlockKnown(blockID uint64) bool {
	r.mu.RLock()
	_, ok := r.blocks[blockID]
	r.mu.RUnlock()
	return ok
}

// Count returns the number of known blocks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}

// ApplyBlockInfo is the journal replay mutation for KindBlockInfo:
// unconditional insert-or-update, reproducing whatever the original
// commit sequence produced (unlike EnsureBlock, which only upgrades an
// UnknownLength).
func (r *Registry) ApplyBlockInfo(blockID, length uint64) error {
	r.mu.Lock()
	b, ok := r.blocks[blockID]
	if !ok {
		b = &block{blockID: blockID, length: length, locations: make(map[uint64]types.TierAlias)}
		r.blocks[blockID] = b
		r.mu.Unlock()
		r.addLost(blockID)
		return nil
	}
	r.mu.Unlock()

	b.mu.Lock()
	b.length = length
	b.mu.Unlock()
	return nil
}

// ApplyDeleteBlock is the journal replay mutation for KindDeleteBlock.
func (r *Registry) ApplyDeleteBlock(blockID uint64) error {
	r.Delete(blockID)
	return nil
}

// ReportLost bulk-adds ids to the lost-blocks set, for reportLostBlocks.
// This may transiently violate the "lost iff zero locations" direction
// of invariant 2 in §8 until those blocks' locations are next touched,
// which the spec calls out explicitly.
func (r *Registry) ReportLost(ids []uint64) {
	r.lostMu.Lock()
	defer r.lostMu.Unlock()
	for _, id := range ids {
		r.lost[id] = struct{}{}
	}
}

// LostCount returns the size of the lost-blocks set.
func (r *Registry) LostCount() int {
	r.lostMu.Lock()
	defer r.lostMu.Unlock()
	return len(r.lost)
}

// IsLost reports whether blockID is in the lost-blocks set.
func (r *Registry) IsLost(blockID uint64) bool {
	r.lostMu.Lock()
	defer r.lostMu.Unlock()
	_, ok := r.lost[blockID]
	return ok
}

func (r *Registry) addLost(blockID uint64) {
	r.lostMu.Lock()
	r.lost[blockID] = struct{}{}
	r.lostMu.Unlock()
}

func (r *Registry) removeLost(blockID uint64) {
	r.lostMu.Lock()
	delete(r.lost, blockID)
	r.lostMu.Unlock()
}
