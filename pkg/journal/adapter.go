package journal

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/mastererr"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// applyTimeout bounds how long a Scope.Commit waits for its batch to
// be durably appended.
const applyTimeout = 5 * time.Second

// Config configures the Adapter's single-voter Raft group. We do not
// attempt replication of the master itself (§1 Non-goals); Raft here
// exists only for its durable, ordered, fsync'd log and snapshot/restore
// machinery.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Adapter is the Journal Adapter (C6): it owns the Raft group backing
// the master's durability and hands out Scopes that handlers use to
// buffer and then atomically commit entries.
type Adapter struct {
	nodeID   string
	bindAddr string
	dataDir  string
	raft     *raft.Raft
	fsm      *FSM
}

// NewAdapter wires an Adapter around applier/snapshot but does not yet
// start Raft; call Bootstrap to do that.
func NewAdapter(cfg Config, applier Applier, snapshot SnapshotSource) *Adapter {
	return &Adapter{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      NewFSM(applier, snapshot),
	}
}

// Bootstrap starts the single-voter Raft group, creating it if this is
// the first run or reopening and replaying its on-disk log/snapshot
// otherwise. Replay happens inside raft.NewRaft before this returns, so
// by the time Bootstrap returns the applier already reflects any
// previously-journaled state.
func (a *Adapter) Bootstrap() error {
	if err := os.MkdirAll(a.dataDir, 0755); err != nil {
		return fmt.Errorf("journal: create data dir: %w", err)
	}

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(a.nodeID)

	// A single-voter group never contends an election, so these
	// timeouts only affect how quickly Bootstrap's own node declares
	// itself leader after startup.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", a.bindAddr)
	if err != nil {
		return fmt.Errorf("journal: resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(a.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("journal: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(a.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("journal: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(a.dataDir, "journal-log.db"))
	if err != nil {
		return fmt.Errorf("journal: create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(a.dataDir, "journal-stable.db"))
	if err != nil {
		return fmt.Errorf("journal: create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, a.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("journal: create raft: %w", err)
	}
	a.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: config.LocalID, Address: transport.LocalAddr()},
		},
	}
	future := a.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return fmt.Errorf("journal: bootstrap: %w", err)
	}

	return nil
}

// Shutdown stops the Raft group.
func (a *Adapter) Shutdown() error {
	if a.raft == nil {
		return nil
	}
	return a.raft.Shutdown().Error()
}

// Scope opens a scoped journal context (§5.5, §9): entries buffered
// here become durable only when Commit is called, and Commit applies
// the whole bundle as a single Raft log entry so it is either all
// applied or all absent on replay.
func (a *Adapter) Scope() *Scope {
	return &Scope{adapter: a, id: uuid.NewString()}
}

// Scope buffers journal entries for one handler invocation. id exists
// only for log correlation between the handler that opened the scope
// and the commit it eventually produces (or doesn't).
type Scope struct {
	adapter *Adapter
	entries []Entry
	id      string
}

// Append buffers an entry; it is not durable until Commit succeeds.
func (s *Scope) Append(e Entry) {
	s.entries = append(s.entries, e)
}

// Empty reports whether any entries have been buffered. Handlers skip
// Commit entirely when nothing changed, matching "emits a journal entry
// whenever state actually changed".
func (s *Scope) Empty() bool {
	return len(s.entries) == 0
}

// Commit flushes every buffered entry as one atomic Raft log write. A
// failure here is the only case that turns a handler's otherwise
// successful mutation into an Unavailable error (§7): the in-memory
// state has already changed, but the change is not yet durable, and the
// spec (§5 Cancellation) accepts that the master may run slightly ahead
// of its durable log rather than rolling mutations back.
func (s *Scope) Commit() error {
	if s.Empty() {
		return nil
	}
	if s.adapter.raft == nil {
		return fmt.Errorf("%w: journal not started", mastererr.ErrUnavailable)
	}

	data, err := json.Marshal(batch{Entries: s.entries})
	if err != nil {
		return fmt.Errorf("journal: marshal batch: %w", err)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.JournalCommitDuration)

	future := s.adapter.raft.Apply(data, applyTimeout)
	if err := future.Error(); err != nil {
		log.WithComponent("journal").Warn().Str("scope_id", s.id).Err(err).Msg("scope commit rejected")
		return fmt.Errorf("%w: %v", mastererr.ErrUnavailable, err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			log.WithComponent("journal").Warn().Str("scope_id", s.id).Err(err).Msg("scope apply failed")
			return fmt.Errorf("%w: %v", mastererr.ErrUnavailable, err)
		}
	}
	log.WithComponent("journal").Debug().Str("scope_id", s.id).Int("entries", len(s.entries)).Msg("scope committed")
	return nil
}
