// Package master implements the Protocol Handlers (C4): it composes
// the block registry, worker registry, container id generator and
// journal adapter under the global worker-before-block lock-ordering
// rule, and exposes the client- and worker-facing operations §6 names.
package master
