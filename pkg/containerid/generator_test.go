package containerid

import (
	"testing"

	"github.com/cuemby/strata/pkg/journal"
	"github.com/cuemby/strata/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fsmAdapter adapts a *Generator to journal.Applier/SnapshotSource for
// a standalone test of the generator's own journal traffic, without
// pulling in the block registry.
type fsmAdapter struct{ gen *Generator }

func (a fsmAdapter) ApplyContainerIDGenerator(nextID uint64) error {
	return a.gen.ApplyContainerIDGenerator(nextID)
}
func (fsmAdapter) ApplyBlockInfo(uint64, uint64) error { return nil }
func (fsmAdapter) ApplyDeleteBlock(uint64) error       { return nil }
func (a fsmAdapter) JournaledNext() uint64             { return a.gen.JournaledNext() }
func (fsmAdapter) AllBlockLengths() map[uint64]uint64  { return nil }

func newBootstrappedAdapter(t *testing.T, gen *Generator) *journal.Adapter {
	t.Helper()
	adapter := journal.NewAdapter(journal.Config{
		NodeID:   "test-node",
		BindAddr: "127.0.0.1:0",
		DataDir:  t.TempDir(),
	}, fsmAdapter{gen}, fsmAdapter{gen})
	require.NoError(t, adapter.Bootstrap())
	t.Cleanup(func() { _ = adapter.Shutdown() })
	return adapter
}

func TestNewContainerIDStartsAtZero(t *testing.T) {
	gen := New()
	adapter := newBootstrappedAdapter(t, gen)
	gen.BindJournal(adapter)

	id, err := gen.NewContainerID()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
}

func TestNewContainerIDOnlyJournalsOncePerReservation(t *testing.T) {
	gen := New()
	adapter := newBootstrappedAdapter(t, gen)
	gen.BindJournal(adapter)

	for i := uint64(0); i < types.Reservation; i++ {
		id, err := gen.NewContainerID()
		require.NoError(t, err)
		assert.Equal(t, i, id)
	}
	assert.Equal(t, types.Reservation, gen.JournaledNext())

	id, err := gen.NewContainerID()
	require.NoError(t, err)
	assert.Equal(t, types.Reservation, id)
	assert.Equal(t, 2*types.Reservation, gen.JournaledNext())
}

func TestApplyContainerIDGeneratorNeverRewindsNextID(t *testing.T) {
	gen := New()
	require.NoError(t, gen.ApplyContainerIDGenerator(5000))
	assert.Equal(t, uint64(5000), gen.nextID)
	assert.Equal(t, uint64(5000), gen.JournaledNext())

	require.NoError(t, gen.ApplyContainerIDGenerator(10))
	assert.Equal(t, uint64(5000), gen.nextID, "replay must never move next_id backwards")
	assert.Equal(t, uint64(10), gen.JournaledNext(), "journaled_next always takes the entry's value")
}

func TestNewContainerIDResumesFromReplayedState(t *testing.T) {
	gen := New()
	require.NoError(t, gen.ApplyContainerIDGenerator(3))
	adapter := newBootstrappedAdapter(t, gen)
	gen.BindJournal(adapter)

	id, err := gen.NewContainerID()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id, "replay moved next_id up to 3, and the id that reaches journaled_next extends the reservation")

	for i := 0; i < 2; i++ {
		_, err := gen.NewContainerID()
		require.NoError(t, err)
	}

	id, err = gen.NewContainerID()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), id, "ids below journaled_next need no further journal write")
	assert.Equal(t, uint64(3)+types.Reservation, gen.JournaledNext())
}
