// Package blockregistry implements the Block Registry (C1): the
// mapping from block id to length and worker replica set, each block
// guarded by its own mutex, plus the lost-blocks set.
package blockregistry
