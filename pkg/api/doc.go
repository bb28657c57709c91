// Package api exposes the block master's plain-HTTP surface: liveness
// (/health), readiness (/ready, backed by a ReadinessSource the master
// implements), and Prometheus scraping (/metrics). The client/worker
// RPC transport itself is a collaborator outside this package's scope.
package api
