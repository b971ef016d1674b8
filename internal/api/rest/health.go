package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable. Database pools, the
// bus and the notification broker all satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthStatus values mirror what probes expect in the response body.
const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
)

// healthResponse is the body of both probe endpoints.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type namedCheck struct {
	name   string
	pinger Pinger
}

// HealthHandler serves the liveness and readiness probes. Liveness only
// proves the process is up; readiness pings every registered dependency.
type HealthHandler struct {
	checks  []namedCheck
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a probe handler with no checks registered.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Register adds a readiness dependency. Not safe to call once the handler
// is serving.
func (h *HealthHandler) Register(name string, p Pinger) {
	h.checks = append(h.checks, namedCheck{name: name, pinger: p})
}

// Liveness serves GET /healthz.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: statusOK})
}

// Readiness serves GET /readyz. Any failing dependency turns the whole
// response 503 so the load balancer stops routing here.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{
		Status: statusOK,
		Checks: make(map[string]string, len(h.checks)),
	}
	code := http.StatusOK

	for _, c := range h.checks {
		if err := c.pinger.Ping(ctx); err != nil {
			resp.Status = statusUnavailable
			resp.Checks[c.name] = err.Error()
			code = http.StatusServiceUnavailable
			h.logger.WarnContext(r.Context(), "readiness check failed",
				slog.String("check", c.name),
				slog.String("error", err.Error()))
			continue
		}
		resp.Checks[c.name] = statusOK
	}

	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
