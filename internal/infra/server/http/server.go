// Package httpserver exposes the runtime's control surface: liveness,
// readiness, and a read-only topology snapshot, polled by orchestrators and
// operators. Grounded on the teacher's internal/infra/server/http package
// (http.NewServeMux-based handler construction, goccy/go-json response
// encoding), trimmed from the teacher's large strategy/provider/risk
// management surface to the three endpoints this runtime's supervisor needs.
package httpserver

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// TopologyInspector is the subset of *topology.Topology the control server
// needs, kept as an interface here so this package does not import
// internal/app/topology (which already imports internal/infra/config) and
// create a dependency cycle risk as both packages grow.
type TopologyInspector interface {
	Healthcheck(ctx context.Context, timeout time.Duration) error
	NodeNames() []string
}

type server struct {
	topology TopologyInspector
}

// NewHandler builds the control surface's http.Handler: GET /healthz always
// reports 200 once the process is up, GET /readyz runs every sink's
// Healthcheck and reports 200 only if all succeed, GET /topology returns the
// running graph's node names as a read-only snapshot.
func NewHandler(topology TopologyInspector) http.Handler {
	s := &server{topology: topology}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/topology", s.handleTopology)
	return mux
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.topology.Healthcheck(r.Context(), 0); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) handleTopology(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"nodes": s.topology.NodeNames()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
