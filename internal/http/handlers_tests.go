package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

const (
	maxLongPollSeconds = 60
	longPollInterval   = 250 * time.Millisecond
)

// TestHandlers provides HTTP handlers for starting, observing and stopping
// tests. Devices are addressed by serial; the handlers resolve serials to
// device paths through the enumerator before talking to the executor.
type TestHandlers struct {
	Exec       core.TestStarter
	Enumerator core.DeviceEnumerator
}

// startTestRequest is the body of POST /api/drives/{serial}/test and
// POST /api/tests/start-all.
type startTestRequest struct {
	TestType   model.TestType       `json:"test_type"`
	Parameters model.TestParameters `json:"parameters"`
}

// StartTest handles POST /api/drives/{serial}/test.
func (h *TestHandlers) StartTest(w http.ResponseWriter, r *http.Request) {
	var req startTestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	drive, ok := h.Enumerator.DriveBySerial(r.Context(), r.PathValue("serial"))
	if !ok {
		WriteAppError(w, apperrors.NotFoundf("drive %s is not present", r.PathValue("serial")))
		return
	}

	jobID, err := h.Exec.Start(r.Context(), core.StartTestRequest{
		Device:     drive.DeviceIdentity,
		TestType:   req.TestType,
		Parameters: req.Parameters,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]any{
		"job_id":    jobID,
		"device":    drive.DeviceIdentity,
		"test_type": req.TestType,
		"state":     model.TestStatePending,
	})
}

// GetTestProgress handles GET /api/drives/{serial}/test. With ?wait=N the
// request long-polls up to N seconds for the job to reach a terminal state,
// returning the latest snapshot either way.
func (h *TestHandlers) GetTestProgress(w http.ResponseWriter, r *http.Request) {
	drive, ok := h.Enumerator.DriveBySerial(r.Context(), r.PathValue("serial"))
	if !ok {
		WriteAppError(w, apperrors.NotFoundf("drive %s is not present", r.PathValue("serial")))
		return
	}

	record, ok := h.Exec.Progress(drive.Path)
	if !ok {
		WriteAppError(w, apperrors.NotFoundf("no test recorded for drive %s", drive.Serial))
		return
	}

	wait := parseIntQuery(r, "wait", 0)
	if wait > 0 && !record.State.Terminal() {
		record = h.waitForTerminal(r.Context(), drive.Path, record, wait)
	}

	WriteJSON(w, http.StatusOK, record)
}

// waitForTerminal polls the executor until the device's job turns terminal
// or the wait window elapses, returning the most recent snapshot.
func (h *TestHandlers) waitForTerminal(
	ctx context.Context,
	devicePath string,
	last model.JobRecord,
	waitSeconds int,
) model.JobRecord {
	if waitSeconds > maxLongPollSeconds {
		waitSeconds = maxLongPollSeconds
	}
	deadline := time.Now().Add(time.Duration(waitSeconds) * time.Second)

	ticker := time.NewTicker(longPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
		}
		record, ok := h.Exec.Progress(devicePath)
		if !ok {
			return last
		}
		last = record
		if record.State.Terminal() {
			return record
		}
	}
	return last
}

// StopTest handles DELETE /api/drives/{serial}/test.
func (h *TestHandlers) StopTest(w http.ResponseWriter, r *http.Request) {
	drive, ok := h.Enumerator.DriveBySerial(r.Context(), r.PathValue("serial"))
	if !ok {
		WriteAppError(w, apperrors.NotFoundf("drive %s is not present", r.PathValue("serial")))
		return
	}

	if !h.Exec.Stop(drive.Path) {
		WriteAppError(w, apperrors.NotFoundf("no active test on drive %s", drive.Serial))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"device":  drive.DeviceIdentity,
		"stopped": true,
	})
}

// StartAll handles POST /api/tests/start-all. It fans the requested test out
// to every present drive; each device succeeds or fails independently.
func (h *TestHandlers) StartAll(w http.ResponseWriter, r *http.Request) {
	var req startTestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	drives := h.Enumerator.Drives(r.Context())
	devices := make([]model.DeviceIdentity, 0, len(drives))
	for _, d := range drives {
		devices = append(devices, d.DeviceIdentity)
	}

	results := h.Exec.StartAll(r.Context(), devices, req.TestType, req.Parameters)

	started := 0
	perDevice := make(map[string]any, len(results))
	for device, res := range results {
		if res.Err != nil {
			perDevice[device] = map[string]string{"error": errCodeOf(res.Err), "message": res.Err.Error()}
			continue
		}
		started++
		perDevice[device] = map[string]string{"job_id": res.JobID}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"requested": len(devices),
		"started":   started,
		"results":   perDevice,
	})
}

// StopAll handles POST /api/tests/stop-all.
func (h *TestHandlers) StopAll(w http.ResponseWriter, r *http.Request) {
	drives := h.Enumerator.Drives(r.Context())
	devices := make([]string, 0, len(drives))
	for _, d := range drives {
		devices = append(devices, d.Path)
	}

	results := h.Exec.StopAll(devices)

	stopped := 0
	for _, ok := range results {
		if ok {
			stopped++
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"stopped": stopped,
		"results": results,
	})
}
