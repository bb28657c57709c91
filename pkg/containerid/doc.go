// Package containerid implements the Container ID Generator (C3): a
// monotonic id source that amortizes journal writes by reserving ids
// in batches.
package containerid
