// Package httpx provides the JSON API and WebSocket event stream for the
// drive testing bench.
package httpx

import (
	"net/http"
	"strconv"

	"github.com/compudrive/drivebench/internal/core"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

const defaultHistoryLimit = 10

// DriveHandlers provides HTTP handlers for drive enumeration and history.
type DriveHandlers struct {
	Enumerator core.DeviceEnumerator
	Results    core.TestResultRepository
}

// ListDrives handles GET /api/drives. It returns the scanner's current view
// of the bench; the protected OS drive is never included.
func (h *DriveHandlers) ListDrives(w http.ResponseWriter, r *http.Request) {
	drives := h.Enumerator.Drives(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"drives": drives,
		"count":  len(drives),
	})
}

// GetDrive handles GET /api/drives/{serial}. The response includes recent
// terminal test results for the drive when a result repository is wired.
func (h *DriveHandlers) GetDrive(w http.ResponseWriter, r *http.Request) {
	serial := r.PathValue("serial")
	drive, ok := h.Enumerator.DriveBySerial(r.Context(), serial)
	if !ok {
		WriteAppError(w, apperrors.NotFoundf("drive %s is not present", serial))
		return
	}

	resp := map[string]any{"drive": drive}
	if h.Results != nil {
		limit := parseIntQuery(r, "limit", defaultHistoryLimit)
		results, err := h.Results.ListBySerial(r.Context(), serial, limit)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		resp["recent_results"] = results
	}
	WriteJSON(w, http.StatusOK, resp)
}

// parseIntQuery parses an integer query parameter with a fallback default.
func parseIntQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
