package types

import (
	"math"
	"strconv"
)

// TierAlias names a storage tier (MEM, SSD, HDD, ...). Tiers are
// ordered globally by ordinal, configured via TierOrder.
type TierAlias string

// UnknownLength is the sentinel BlockInfo.Length carries until a
// commit supplies the real byte length.
const UnknownLength uint64 = math.MaxUint64

// Reservation is the container-id generator's journal batch size: one
// journal write reserves this many ids.
const Reservation uint64 = 1000

// NetAddress identifies a worker's RPC endpoint. Two workers with the
// same address are the same worker across registration/timeout cycles.
type NetAddress struct {
	Host string
	Port int
}

func (a NetAddress) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// BlockLocation is one replica of a block: the worker holding it and
// the tier it sits on. Returned in tier-ordinal order by lookups.
type BlockLocation struct {
	WorkerID uint64
	Tier     TierAlias
}

// BlockInfo is a point-in-time snapshot of a block registry entry.
// Callers receive copies; the registry never hands out its internal
// record.
type BlockInfo struct {
	BlockID   uint64
	Length    uint64
	Locations []BlockLocation
}

// WorkerView is the client-facing snapshot of a WorkerInfo record.
type WorkerView struct {
	ID               uint64
	Address          NetAddress
	CapacityByTier   map[TierAlias]uint64
	UsedByTier       map[TierAlias]uint64
	ResidentBlockIDs []uint64
	LastHeartbeatMs  int64
}

// LostWorkerView additionally carries how long a lost worker has been
// silent, for the ascending-by-staleness listing getLostWorkersInfoList
// returns.
type LostWorkerView struct {
	WorkerView
	SecondsSinceContact int64
}

// CommandKind is the heartbeat reply's discriminant.
type CommandKind int

const (
	// CommandNothing carries no instruction.
	CommandNothing CommandKind = iota
	// CommandRegister tells a worker its id is unknown to the active
	// set and it must call workerRegister again.
	CommandRegister
	// CommandFree carries a pending-remove batch the worker should
	// drop from local storage.
	CommandFree
)

// Command is the handler's reply to workerHeartbeat.
type Command struct {
	Kind    CommandKind
	BlockIDs []uint64
}
