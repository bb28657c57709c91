package workerregistry

import (
	"sync"

	"github.com/cuemby/strata/pkg/types"
)

// workerSet is one of the three disjoint sets (active, lost, temp),
// dual-indexed by id and address. Both indexes are sync.Map so
// lookups never block on a writer; insert/remove take no set-wide
// lock either, but moving a worker between two sets is still
// serialized by Registry.setsMu so the two index writes that make up
// a "move" are never observed half-applied by MintWorkerID.
type workerSet struct {
	byID   sync.Map // uint64 -> *WorkerInfo
	byAddr sync.Map // NetAddress -> *WorkerInfo
}

func (s *workerSet) insert(w *WorkerInfo) {
	s.byID.Store(w.id, w)
	s.byAddr.Store(w.address, w)
}

func (s *workerSet) remove(w *WorkerInfo) {
	s.byID.Delete(w.id)
	s.byAddr.Delete(w.address)
}

func (s *workerSet) lookupByID(id uint64) (*WorkerInfo, bool) {
	v, ok := s.byID.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*WorkerInfo), true
}

func (s *workerSet) lookupByAddr(addr types.NetAddress) (*WorkerInfo, bool) {
	v, ok := s.byAddr.Load(addr)
	if !ok {
		return nil, false
	}
	return v.(*WorkerInfo), true
}

func (s *workerSet) hasID(id uint64) bool {
	_, ok := s.byID.Load(id)
	return ok
}

func (s *workerSet) forEach(fn func(*WorkerInfo)) {
	s.byID.Range(func(_, value any) bool {
		fn(value.(*WorkerInfo))
		return true
	})
}
