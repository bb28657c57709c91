// Package detector implements the Lost-Worker Detector (C5): a single
// periodic task that sweeps the worker registry for silent workers and
// moves them to lost_workers.
package detector
