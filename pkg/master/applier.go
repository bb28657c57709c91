package master

// compositeApplier forwards journal.Applier/journal.SnapshotSource
// calls to whichever of the block registry or the container id
// generator actually owns that entry kind. The FSM needs a single
// Applier, but the state it replays into is split across two
// independently-owned components.
type compositeApplier struct {
	blocks blockApplier
	gen    idApplier
}

type blockApplier interface {
	ApplyBlockInfo(blockID, length uint64) error
	ApplyDeleteBlock(blockID uint64) error
	AllBlockLengths() map[uint64]uint64
}

type idApplier interface {
	ApplyContainerIDGenerator(nextID uint64) error
	JournaledNext() uint64
}

func (c compositeApplier) ApplyContainerIDGenerator(nextID uint64) error {
	return c.gen.ApplyContainerIDGenerator(nextID)
}

func (c compositeApplier) ApplyBlockInfo(blockID, length uint64) error {
	return c.blocks.ApplyBlockInfo(blockID, length)
}

func (c compositeApplier) ApplyDeleteBlock(blockID uint64) error {
	return c.blocks.ApplyDeleteBlock(blockID)
}

func (c compositeApplier) JournaledNext() uint64 {
	return c.gen.JournaledNext()
}

func (c compositeApplier) AllBlockLengths() map[uint64]uint64 {
	return c.blocks.AllBlockLengths()
}
