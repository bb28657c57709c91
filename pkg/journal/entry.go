package journal

import "encoding/json"

// Kind discriminates the three journal entry shapes §4.6 defines.
type Kind string

const (
	KindContainerIDGenerator Kind = "container_id_generator"
	KindBlockInfo            Kind = "block_info"
	KindDeleteBlock          Kind = "delete_block"
)

// Entry is one durable record. Data holds the kind-specific payload,
// decoded by the FSM on Apply/Restore.
type Entry struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// ContainerIDGeneratorPayload is Entry.Data for KindContainerIDGenerator:
// the generator's journaled_next at the time of the reservation.
type ContainerIDGeneratorPayload struct {
	NextID uint64 `json:"next_id"`
}

// BlockInfoPayload is Entry.Data for KindBlockInfo.
type BlockInfoPayload struct {
	BlockID uint64 `json:"block_id"`
	Length  uint64 `json:"length"`
}

// DeleteBlockPayload is Entry.Data for KindDeleteBlock.
type DeleteBlockPayload struct {
	BlockID uint64 `json:"block_id"`
}

func newEntry(kind Kind, payload any) Entry {
	data, err := json.Marshal(payload)
	if err != nil {
		// payloads are fixed, JSON-trivial structs; a marshal failure
		// here would mean a programming error, not a runtime one.
		panic("journal: payload marshal: " + err.Error())
	}
	return Entry{Kind: kind, Data: data}
}

// ContainerIDGeneratorEntry builds a KindContainerIDGenerator entry.
func ContainerIDGeneratorEntry(nextID uint64) Entry {
	return newEntry(KindContainerIDGenerator, ContainerIDGeneratorPayload{NextID: nextID})
}

// BlockInfoEntry builds a KindBlockInfo entry.
func BlockInfoEntry(blockID, length uint64) Entry {
	return newEntry(KindBlockInfo, BlockInfoPayload{BlockID: blockID, Length: length})
}

// DeleteBlockEntry builds a KindDeleteBlock entry.
func DeleteBlockEntry(blockID uint64) Entry {
	return newEntry(KindDeleteBlock, DeleteBlockPayload{BlockID: blockID})
}

// batch is the payload of the single raft command a Scope.Commit
// produces: every entry buffered in the scope, applied together.
type batch struct {
	Entries []Entry `json:"entries"`
}
