package httpx

import (
	"io"
	"net/http"
	"time"

	"github.com/compudrive/drivebench/internal/core"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for readiness/liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// SystemHandlers provides the bench status endpoint.
type SystemHandlers struct {
	Exec       core.TestStarter
	Enumerator core.DeviceEnumerator
	StartedAt  time.Time
	Version    string
}

// GetStatus handles GET /api/system/status.
func (h *SystemHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	drives := h.Enumerator.Drives(r.Context())

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.Version,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"drives_present": len(drives),
		"active_tests":   h.Exec.ActiveCount(),
	})
}
