// Package mastererr defines the sentinel errors the block master's
// handlers return, so callers can distinguish error kinds with
// errors.Is instead of a parsed code string.
package mastererr

import "errors"

var (
	// ErrNotFound is returned when a lookup names a block id the
	// registry has no record of.
	ErrNotFound = errors.New("block meta not found")

	// ErrNoWorker is returned when an operation names a worker id
	// that is not in the active set (and, where relevant, not in the
	// temp set either).
	ErrNoWorker = errors.New("no such worker")

	// ErrUnavailable is returned when safe mode or the journal
	// subsystem refuses to serve the request.
	ErrUnavailable = errors.New("master unavailable")

	// ErrUnexpectedJournalEntry is fatal for replay: an entry kind the
	// adapter does not recognize.
	ErrUnexpectedJournalEntry = errors.New("unexpected journal entry")

	// ErrInternal marks an invariant violation. It should never
	// surface in production; its presence in a log is itself a bug
	// report.
	ErrInternal = errors.New("internal invariant violation")
)
