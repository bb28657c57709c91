package containerid

import (
	"sync"

	"github.com/cuemby/strata/pkg/journal"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/types"
)

// Journal is the slice of the journal adapter the generator needs: a
// fresh scope to buffer and commit its single reservation entry.
type Journal interface {
	Scope() *journal.Scope
}

// Generator is the Container ID Generator (C3). All state is guarded
// by mu; new_container_id is single-threaded through it as §4.3
// requires.
type Generator struct {
	mu            sync.Mutex
	nextID        uint64
	journaledNext uint64

	journal Journal
}

// New creates a Generator at id zero with no journal bound yet. Replay
// (via ApplyContainerIDGenerator) advances it to whatever state the
// journal holds before the first live call to NewContainerID; BindJournal
// must be called before NewContainerID is, since the journal adapter and
// the generator are constructed in sequence (the adapter needs the
// generator as part of its composite Applier before either can be handed
// to the other).
func New() *Generator {
	return &Generator{}
}

// BindJournal attaches the journal the generator commits reservation
// entries through.
func (g *Generator) BindJournal(j Journal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.journal = j
}

// NewContainerID implements new_container_id (§4.3): hand out the next
// id, and whenever the reservation window is exhausted, extend it by
// RESERVATION and journal the new boundary before returning. A commit
// failure is propagated without rewinding nextID, so the id whose
// reservation failed is never handed out; the next call tries the
// reservation again.
func (g *Generator) NewContainerID() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.nextID
	g.nextID++
	if c < g.journaledNext {
		return c, nil
	}

	newNext := c + types.Reservation
	scope := g.journal.Scope()
	scope.Append(journal.ContainerIDGeneratorEntry(newNext))
	if err := scope.Commit(); err != nil {
		return 0, err
	}
	g.journaledNext = newNext
	metrics.ContainerIDReservationsTotal.Inc()
	return c, nil
}

// ApplyContainerIDGenerator is the journal replay mutation (§4.6):
// next_id only ever moves forward, and journaled_next is set to
// exactly what the entry recorded.
func (g *Generator) ApplyContainerIDGenerator(nextID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if nextID > g.nextID {
		g.nextID = nextID
	}
	g.journaledNext = nextID
	return nil
}

// JournaledNext feeds journal.SnapshotSource: the reservation boundary
// to re-emit ahead of a snapshot's BlockInfo entries.
func (g *Generator) JournaledNext() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.journaledNext
}
