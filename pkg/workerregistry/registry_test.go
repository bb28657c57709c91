package workerregistry

import (
	"sync"
	"testing"

	"github.com/cuemby/strata/pkg/mastererr"
	"github.com/cuemby/strata/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLinker is a minimal BlockLinker double recording calls, avoiding
// a dependency on the real blockregistry package from these tests.
type fakeLinker struct {
	mu      sync.Mutex
	known   map[uint64]bool
	added   []uint64
	removed []uint64
}

func newFakeLinker(known ...uint64) *fakeLinker {
	m := make(map[uint64]bool)
	for _, id := range known {
		m[id] = true
	}
	return &fakeLinker{known: m}
}

func (f *fakeLinker) AddWorkerLocation(blockID, workerID uint64, tier types.TierAlias) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, blockID)
}

func (f *fakeLinker) RemoveWorkerLocation(blockID, workerID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, blockID)
}

func (f *fakeLinker) BlockKnown(blockID uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.known[blockID]
}

func addr(n int) types.NetAddress {
	return types.NetAddress{Host: "10.0.0.1", Port: 9000 + n}
}

func TestMintWorkerIDIsStableForSameAddress(t *testing.T) {
	reg := New(newFakeLinker())
	a := addr(1)

	id1 := reg.MintWorkerID(a, 1000)
	id2 := reg.MintWorkerID(a, 2000)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, reg.CountsByState()["active"], "a second mint for an address waiting in temp promotes it to active")
}

func TestMintWorkerIDDistinctAddressesGetDistinctIDs(t *testing.T) {
	reg := New(newFakeLinker())
	id1 := reg.MintWorkerID(addr(1), 0)
	id2 := reg.MintWorkerID(addr(2), 0)
	assert.NotEqual(t, id1, id2)
}

func TestRegisterPromotesFromTemp(t *testing.T) {
	reg := New(newFakeLinker(1, 2))
	id := reg.MintWorkerID(addr(1), 0)

	err := reg.Register(id, map[types.TierAlias]uint64{"MEM": 100}, map[types.TierAlias]uint64{"MEM": 10},
		map[types.TierAlias][]uint64{"MEM": {1, 2}}, 1000)
	require.NoError(t, err)

	counts := reg.CountsByState()
	assert.Equal(t, 1, counts["active"])
	assert.Equal(t, 0, counts["temp"])

	view, ok := reg.WorkerView(id)
	require.True(t, ok)
	assert.ElementsMatch(t, []uint64{1, 2}, view.ResidentBlockIDs)
}

func TestRegisterUnknownWorkerFails(t *testing.T) {
	reg := New(newFakeLinker())
	err := reg.Register(999, nil, nil, nil, 0)
	assert.ErrorIs(t, err, mastererr.ErrNoWorker)
}

func TestRegisterQueuesOrphanBlocksForRemoval(t *testing.T) {
	linker := newFakeLinker(1) // block 2 unknown to the registry
	reg := New(linker)
	id := reg.MintWorkerID(addr(1), 0)

	err := reg.Register(id, nil, nil, map[types.TierAlias][]uint64{"MEM": {1, 2}}, 0)
	require.NoError(t, err)

	cmd := reg.Heartbeat(id, map[types.TierAlias]uint64{}, nil, nil, 100)
	assert.Equal(t, types.CommandFree, cmd.Kind)
	assert.Equal(t, []uint64{2}, cmd.BlockIDs)
}

func TestHeartbeatOnUnknownWorkerAsksForRegister(t *testing.T) {
	reg := New(newFakeLinker())
	cmd := reg.Heartbeat(42, nil, nil, nil, 0)
	assert.Equal(t, types.CommandRegister, cmd.Kind)
}

func TestHeartbeatAppliesDeltasAndRefreshesLiveness(t *testing.T) {
	linker := newFakeLinker(1, 2, 3)
	reg := New(linker)
	id := reg.MintWorkerID(addr(1), 0)
	require.NoError(t, reg.Register(id, nil, nil, map[types.TierAlias][]uint64{"MEM": {1}}, 0))

	cmd := reg.Heartbeat(id, map[types.TierAlias]uint64{"MEM": 50}, []uint64{1},
		map[types.TierAlias][]uint64{"SSD": {2, 3}}, 5000)
	assert.Equal(t, types.CommandNothing, cmd.Kind)

	view, ok := reg.WorkerView(id)
	require.True(t, ok)
	assert.ElementsMatch(t, []uint64{2, 3}, view.ResidentBlockIDs)
	assert.Equal(t, int64(5000), view.LastHeartbeatMs)
	assert.Contains(t, linker.removed, uint64(1))
}

func TestMarkLostMovesWorkerAndReleasesReplicas(t *testing.T) {
	linker := newFakeLinker(1, 2)
	reg := New(linker)
	id := reg.MintWorkerID(addr(1), 0)
	require.NoError(t, reg.Register(id, nil, nil, map[types.TierAlias][]uint64{"MEM": {1, 2}}, 0))

	released := reg.MarkLost(id)

	counts := reg.CountsByState()
	assert.Equal(t, 0, counts["active"])
	assert.Equal(t, 1, counts["lost"])
	assert.ElementsMatch(t, []uint64{1, 2}, linker.removed)
	assert.ElementsMatch(t, []uint64{1, 2}, released, "MarkLost reports the released block ids for staging notification")

	_, ok := reg.WorkerView(id)
	assert.False(t, ok, "a lost worker is no longer reported as active")
}

func TestMarkLostThenMintReactivatesSameID(t *testing.T) {
	reg := New(newFakeLinker())
	id := reg.MintWorkerID(addr(1), 0)
	require.NoError(t, reg.Register(id, nil, nil, nil, 0))
	reg.MarkLost(id)

	reactivated := reg.MintWorkerID(addr(1), 9000)
	assert.Equal(t, id, reactivated)
	assert.Equal(t, 1, reg.CountsByState()["active"])
}

func TestSweepTimeoutsMarksStaleWorkersLost(t *testing.T) {
	reg := New(newFakeLinker())
	idFresh := reg.MintWorkerID(addr(1), 0)
	idStale := reg.MintWorkerID(addr(2), 0)
	require.NoError(t, reg.Register(idFresh, nil, nil, nil, 10_000))
	require.NoError(t, reg.Register(idStale, nil, nil, nil, 0))

	lostIDs := reg.SweepTimeouts(10_000, 5_000)
	assert.Equal(t, []uint64{idStale}, lostIDs)

	counts := reg.CountsByState()
	assert.Equal(t, 1, counts["active"])
	assert.Equal(t, 1, counts["lost"])
}

func TestListLostSortedAscendingBySecondsSinceContact(t *testing.T) {
	reg := New(newFakeLinker())
	idA := reg.MintWorkerID(addr(1), 0)
	idB := reg.MintWorkerID(addr(2), 0)
	require.NoError(t, reg.Register(idA, nil, nil, nil, 1000))
	require.NoError(t, reg.Register(idB, nil, nil, nil, 9000))
	reg.MarkLost(idA)
	reg.MarkLost(idB)

	lost := reg.ListLost(10_000)
	require.Len(t, lost, 2)
	assert.Equal(t, idB, lost[0].ID, "the worker heard from most recently sorts first")
	assert.Equal(t, idA, lost[1].ID)
}

func TestCapacityAndUsedByTierSumActiveWorkersOnly(t *testing.T) {
	reg := New(newFakeLinker())
	id1 := reg.MintWorkerID(addr(1), 0)
	id2 := reg.MintWorkerID(addr(2), 0)
	require.NoError(t, reg.Register(id1, map[types.TierAlias]uint64{"MEM": 100}, map[types.TierAlias]uint64{"MEM": 10}, nil, 0))
	require.NoError(t, reg.Register(id2, map[types.TierAlias]uint64{"MEM": 200}, map[types.TierAlias]uint64{"MEM": 20}, nil, 0))
	reg.MarkLost(id2)

	assert.Equal(t, uint64(100), reg.CapacityByTier()["MEM"])
	assert.Equal(t, uint64(10), reg.UsedByTier()["MEM"])
}

func TestConcurrentMintWorkerIDIsRaceFree(t *testing.T) {
	reg := New(newFakeLinker())
	var wg sync.WaitGroup
	a := addr(1)
	ids := make([]uint64, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = reg.MintWorkerID(a, 0)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
