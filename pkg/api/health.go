package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/strata/pkg/metrics"
)

// ReadinessSource reports whether the master is ready to serve RPCs.
// The master implements it: it reports ready whenever safe mode is
// disengaged.
type ReadinessSource interface {
	Ready() (ready bool, checks map[string]string)
}

// HealthServer provides the plain-HTTP health/ready/metrics surface.
// The RPC transport proper is out of scope (§1); this is the one
// HTTP-facing component the master exposes directly.
type HealthServer struct {
	source ReadinessSource
	mux    *http.ServeMux
}

// NewHealthServer creates a new health check HTTP server. source may
// be nil before the master has finished starting up.
func NewHealthServer(source ReadinessSource) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		source: source,
		mux:    mux,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready response body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a liveness check: 200 if the process is alive.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler checks whether the master is ready to accept RPCs.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		ready  bool
		checks map[string]string
	)
	if hs.source != nil {
		ready, checks = hs.source.Ready()
	} else {
		checks = map[string]string{"master": "not initialized"}
	}

	status := "ready"
	statusCode := http.StatusOK
	message := ""
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
		message = "master is not ready to serve requests"
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
