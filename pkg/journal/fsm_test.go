package journal

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeState is a minimal Applier/SnapshotSource double that mirrors
// what blockregistry+containerid actually track, without pulling
// either package into these tests.
type fakeState struct {
	mu             sync.Mutex
	journaledNext  uint64
	blockLengths   map[uint64]uint64
	deletedBlocks  []uint64
	appliedNextIDs []uint64
}

func newFakeState() *fakeState {
	return &fakeState{blockLengths: make(map[uint64]uint64)}
}

func (f *fakeState) ApplyContainerIDGenerator(nextID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appliedNextIDs = append(f.appliedNextIDs, nextID)
	if nextID > f.journaledNext {
		f.journaledNext = nextID
	}
	return nil
}

func (f *fakeState) ApplyBlockInfo(blockID, length uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockLengths[blockID] = length
	return nil
}

func (f *fakeState) ApplyDeleteBlock(blockID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blockLengths, blockID)
	f.deletedBlocks = append(f.deletedBlocks, blockID)
	return nil
}

func (f *fakeState) JournaledNext() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.journaledNext
}

func (f *fakeState) AllBlockLengths() map[uint64]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint64]uint64, len(f.blockLengths))
	for id, length := range f.blockLengths {
		out[id] = length
	}
	return out
}

// memorySink is a raft.SnapshotSink backed by a byte buffer, for
// exercising FSM.Snapshot's Persist without an on-disk snapshot store.
type memorySink struct {
	bytes.Buffer
}

func (m *memorySink) ID() string    { return "test-snapshot" }
func (m *memorySink) Cancel() error { return nil }
func (m *memorySink) Close() error  { return nil }

func logFor(t *testing.T, entries ...Entry) *raft.Log {
	t.Helper()
	data, err := json.Marshal(batch{Entries: entries})
	require.NoError(t, err)
	return &raft.Log{Data: data}
}

func TestFSMApplyReplaysEntriesInOrder(t *testing.T) {
	state := newFakeState()
	fsm := NewFSM(state, state)

	result := fsm.Apply(logFor(t,
		ContainerIDGeneratorEntry(5000),
		BlockInfoEntry(1, 1024),
		BlockInfoEntry(2, 2048),
		DeleteBlockEntry(1),
	))
	require.Nil(t, result)

	assert.Equal(t, uint64(5000), state.JournaledNext())
	assert.Equal(t, map[uint64]uint64{2: 2048}, state.AllBlockLengths())
	assert.Equal(t, []uint64{1}, state.deletedBlocks)
}

func TestFSMApplyUnknownKindReturnsError(t *testing.T) {
	state := newFakeState()
	fsm := NewFSM(state, state)

	result := fsm.Apply(logFor(t, Entry{Kind: "bogus", Data: json.RawMessage(`{}`)}))
	require.NotNil(t, result)
	err, ok := result.(error)
	require.True(t, ok, "Apply must return an error value, not panic or a non-error")
	assert.Contains(t, err.Error(), "bogus")
}

func TestFSMApplyIsIdempotentOnReplay(t *testing.T) {
	state := newFakeState()
	fsm := NewFSM(state, state)

	l := logFor(t, ContainerIDGeneratorEntry(100), BlockInfoEntry(7, 512))
	require.Nil(t, fsm.Apply(l))
	require.Nil(t, fsm.Apply(l))

	assert.Equal(t, uint64(100), state.JournaledNext())
	assert.Equal(t, map[uint64]uint64{7: 512}, state.AllBlockLengths())
}

// TestFSMSnapshotRestoreRoundTrip exercises §8 invariant 5: replaying a
// snapshot into a fresh FSM/applier reconstructs the same state that
// produced it, with no journal log segment involved at all.
func TestFSMSnapshotRestoreRoundTrip(t *testing.T) {
	source := newFakeState()
	fsm := NewFSM(source, source)

	require.Nil(t, fsm.Apply(logFor(t,
		ContainerIDGeneratorEntry(42),
		BlockInfoEntry(1, 100),
		BlockInfoEntry(2, 200),
		BlockInfoEntry(3, 300),
	)))
	require.Nil(t, fsm.Apply(logFor(t, DeleteBlockEntry(2))))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	sink := &memorySink{}
	require.NoError(t, snap.Persist(sink))
	snap.Release()

	restored := newFakeState()
	restoredFSM := NewFSM(restored, restored)
	require.NoError(t, restoredFSM.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))))

	assert.Equal(t, source.JournaledNext(), restored.JournaledNext())
	assert.Equal(t, source.AllBlockLengths(), restored.AllBlockLengths())
	assert.Equal(t, map[uint64]uint64{1: 100, 3: 300}, restored.AllBlockLengths())
}

func TestFSMRestoreOnUnexpectedKindFails(t *testing.T) {
	state := newFakeState()
	fsm := NewFSM(state, state)

	data, err := json.Marshal(batch{Entries: []Entry{{Kind: "bogus", Data: json.RawMessage(`{}`)}}})
	require.NoError(t, err)

	err = fsm.Restore(io.NopCloser(bytes.NewReader(data)))
	require.Error(t, err)
}
