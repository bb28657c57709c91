package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/strata/pkg/mastererr"
	"github.com/hashicorp/raft"
)

// Applier is the set of replay mutations the FSM drives. The block
// registry and the container id generator implement it (combined by
// pkg/master's compositeApplier); the FSM never touches their
// internals directly, matching §4.6's replay rules:
//
//	ContainerIdGenerator: next_id = max(next_id, entry.next_id); journaled_next = entry.next_id
//	BlockInfo: insert-or-update length
//	DeleteBlock: remove block id
type Applier interface {
	ApplyContainerIDGenerator(nextID uint64) error
	ApplyBlockInfo(blockID, length uint64) error
	ApplyDeleteBlock(blockID uint64) error
}

// SnapshotSource supplies the state a Raft snapshot serializes: the
// generator's current journaled_next and every block's (id, length).
// §4.6: "prepend a ContainerIdGenerator entry with the current
// journaled_next" ahead of one BlockInfo entry per block.
type SnapshotSource interface {
	JournaledNext() uint64
	AllBlockLengths() map[uint64]uint64
}

// FSM implements raft.FSM over Applier/SnapshotSource. It holds no
// domain state of its own; it is purely the replay/snapshot adapter
// the spec calls the Journal Adapter.
type FSM struct {
	mu       sync.Mutex
	applier  Applier
	snapshot SnapshotSource
}

// NewFSM builds the journal FSM that drives applier during replay and
// serializes snapshot's state into Raft snapshots.
func NewFSM(applier Applier, snapshot SnapshotSource) *FSM {
	return &FSM{applier: applier, snapshot: snapshot}
}

// Apply decodes one committed batch and replays its entries in order.
// It is invoked by Raft both for a handler's own just-written entry and
// for catch-up replay of entries written before a restart; every entry
// kind is naturally idempotent (see the Applier rules above), so
// applying the same batch twice is safe.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var b batch
	if err := json.Unmarshal(log.Data, &b); err != nil {
		return fmt.Errorf("journal: decode batch: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range b.Entries {
		if err := f.applyEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func (f *FSM) applyEntry(entry Entry) error {
	switch entry.Kind {
	case KindContainerIDGenerator:
		var p ContainerIDGeneratorPayload
		if err := json.Unmarshal(entry.Data, &p); err != nil {
			return fmt.Errorf("journal: decode container id entry: %w", err)
		}
		return f.applier.ApplyContainerIDGenerator(p.NextID)

	case KindBlockInfo:
		var p BlockInfoPayload
		if err := json.Unmarshal(entry.Data, &p); err != nil {
			return fmt.Errorf("journal: decode block info entry: %w", err)
		}
		return f.applier.ApplyBlockInfo(p.BlockID, p.Length)

	case KindDeleteBlock:
		var p DeleteBlockPayload
		if err := json.Unmarshal(entry.Data, &p); err != nil {
			return fmt.Errorf("journal: decode delete block entry: %w", err)
		}
		return f.applier.ApplyDeleteBlock(p.BlockID)

	default:
		return fmt.Errorf("%w: %q", mastererr.ErrUnexpectedJournalEntry, entry.Kind)
	}
}

// Snapshot exports a ContainerIdGenerator entry followed by one
// BlockInfo entry per block, per §4.6.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]Entry, 0, len(f.snapshot.AllBlockLengths())+1)
	entries = append(entries, ContainerIDGeneratorEntry(f.snapshot.JournaledNext()))
	for blockID, length := range f.snapshot.AllBlockLengths() {
		entries = append(entries, BlockInfoEntry(blockID, length))
	}
	return &fsmSnapshot{batch{Entries: entries}}, nil
}

// Restore replays a full snapshot into the applier, in order, exactly
// as Apply would replay a log segment.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var b batch
	if err := json.NewDecoder(rc).Decode(&b); err != nil {
		return fmt.Errorf("journal: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range b.Entries {
		if err := f.applyEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

type fsmSnapshot struct {
	b batch
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.b); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
