// Package workerregistry implements the Worker Registry (C2): the
// three disjoint worker sets (active, lost, temp), each dual-indexed
// by id and address, and the mint/register/heartbeat/mark-lost
// operations that move workers between them.
package workerregistry
