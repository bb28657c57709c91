// Package types holds the data model shared by the block master's
// registries, protocol handlers and journal: block and worker records,
// tier aliases, and the commands the heartbeat protocol exchanges.
package types
