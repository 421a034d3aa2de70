package httpx

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

func TestStartTest(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	exec := newFakeExec()
	router := newTestRouter(t, RouterServices{Enumerator: enum, Exec: exec})

	rec := doJSON(t, router, http.MethodPost, "/api/drives/WD-1/test",
		`{"test_type":"smart_short"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		JobID string          `json:"job_id"`
		State model.TestState `json:"state"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, model.TestStatePending, resp.State)

	require.Len(t, exec.starts, 1)
	assert.Equal(t, "/dev/sdb", exec.starts[0].Device.Path)
	assert.Equal(t, model.TestTypeSmartShort, exec.starts[0].TestType)
}

func TestStartTestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		execErr    error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "protected device",
			execErr:    apperrors.ProtectedDevice("/dev/sda"),
			wantStatus: http.StatusForbidden,
			wantCode:   "protected_device",
		},
		{
			name:       "device busy",
			execErr:    apperrors.DeviceBusy("/dev/sdb"),
			wantStatus: http.StatusConflict,
			wantCode:   "device_busy",
		},
		{
			name:       "unknown test type",
			execErr:    apperrors.UnknownTestType("warp_check"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "unknown_test_type",
		},
		{
			name:       "invalid parameters",
			execErr:    apperrors.InvalidParameters("block_size out of range"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_parameters",
		},
		{
			name:       "capacity exhausted",
			execErr:    apperrors.CapacityExhausted(20),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "capacity_exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
			exec := newFakeExec()
			exec.startErr = tt.execErr
			router := newTestRouter(t, RouterServices{Enumerator: enum, Exec: exec})

			rec := doJSON(t, router, http.MethodPost, "/api/drives/WD-1/test",
				`{"test_type":"smart_short"}`)
			require.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]string
			decodeBody(t, rec, &resp)
			assert.Equal(t, tt.wantCode, resp["error"])
		})
	}
}

func TestStartTestUnknownDrive(t *testing.T) {
	router := newTestRouter(t, RouterServices{})

	rec := doJSON(t, router, http.MethodPost, "/api/drives/GONE/test",
		`{"test_type":"smart_short"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartTestRejectsBadJSON(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	router := newTestRouter(t, RouterServices{Enumerator: enum})

	rec := doJSON(t, router, http.MethodPost, "/api/drives/WD-1/test", `{"not_a_field":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "invalid_json", resp["error"])
}

func TestGetTestProgress(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	exec := newFakeExec()
	exec.records["/dev/sdb"] = model.JobRecord{
		ID:              "job-7",
		Device:          model.DeviceIdentity{Path: "/dev/sdb", Name: "sdb", Serial: "WD-1"},
		TestType:        model.TestTypeBadblocksRead,
		State:           model.TestStateRunning,
		ProgressPercent: 42.5,
		CurrentStep:     "pass 1/1",
		StartedAt:       time.Now(),
	}
	router := newTestRouter(t, RouterServices{Enumerator: enum, Exec: exec})

	rec := doJSON(t, router, http.MethodGet, "/api/drives/WD-1/test", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.JobRecord
	decodeBody(t, rec, &resp)
	assert.Equal(t, "job-7", resp.ID)
	assert.Equal(t, model.TestStateRunning, resp.State)
	assert.InDelta(t, 42.5, resp.ProgressPercent, 0.001)
}

func TestGetTestProgressNoJob(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	router := newTestRouter(t, RouterServices{Enumerator: enum})

	rec := doJSON(t, router, http.MethodGet, "/api/drives/WD-1/test", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTestProgressLongPoll(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	exec := newFakeExec()
	exec.records["/dev/sdb"] = model.JobRecord{
		ID:       "job-9",
		TestType: model.TestTypeSmartShort,
		State:    model.TestStateRunning,
	}
	router := newTestRouter(t, RouterServices{Enumerator: enum, Exec: exec})

	// Flip the job terminal shortly after the poll starts.
	go func() {
		time.Sleep(50 * time.Millisecond)
		exec.mu.Lock()
		exec.records["/dev/sdb"] = model.JobRecord{
			ID:       "job-9",
			TestType: model.TestTypeSmartShort,
			State:    model.TestStateCompleted,
		}
		exec.mu.Unlock()
	}()

	start := time.Now()
	rec := doJSON(t, router, http.MethodGet, "/api/drives/WD-1/test?wait=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(start), 3*time.Second)

	var resp model.JobRecord
	decodeBody(t, rec, &resp)
	assert.Equal(t, model.TestStateCompleted, resp.State)
}

func TestStopTest(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	exec := newFakeExec()
	exec.stopped["/dev/sdb"] = true
	router := newTestRouter(t, RouterServices{Enumerator: enum, Exec: exec})

	rec := doJSON(t, router, http.MethodDelete, "/api/drives/WD-1/test", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, true, resp["stopped"])
}

func TestStopTestNoActiveJob(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	router := newTestRouter(t, RouterServices{Enumerator: enum})

	rec := doJSON(t, router, http.MethodDelete, "/api/drives/WD-1/test", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAll(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{
		benchDrive("WD-1", "/dev/sdb", 1),
		benchDrive("WD-2", "/dev/sdc", 2),
	}}
	exec := newFakeExec()
	router := newTestRouter(t, RouterServices{Enumerator: enum, Exec: exec})

	rec := doJSON(t, router, http.MethodPost, "/api/tests/start-all",
		`{"test_type":"health_check"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Requested int            `json:"requested"`
		Started   int            `json:"started"`
		Results   map[string]any `json:"results"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Requested)
	assert.Equal(t, 2, resp.Started)
	assert.Contains(t, resp.Results, "/dev/sdb")
	assert.Contains(t, resp.Results, "/dev/sdc")
}

func TestStartAllReportsPerDeviceErrors(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	exec := newFakeExec()
	exec.startErr = apperrors.DeviceBusy("/dev/sdb")
	router := newTestRouter(t, RouterServices{Enumerator: enum, Exec: exec})

	rec := doJSON(t, router, http.MethodPost, "/api/tests/start-all",
		`{"test_type":"health_check"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Started int                          `json:"started"`
		Results map[string]map[string]string `json:"results"`
	}
	decodeBody(t, rec, &resp)
	assert.Zero(t, resp.Started)
	assert.Equal(t, "device_busy", resp.Results["/dev/sdb"]["error"])
}

func TestStopAll(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{
		benchDrive("WD-1", "/dev/sdb", 1),
		benchDrive("WD-2", "/dev/sdc", 2),
	}}
	exec := newFakeExec()
	exec.stopped["/dev/sdb"] = true
	router := newTestRouter(t, RouterServices{Enumerator: enum, Exec: exec})

	rec := doJSON(t, router, http.MethodPost, "/api/tests/stop-all", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stopped int             `json:"stopped"`
		Results map[string]bool `json:"results"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 1, resp.Stopped)
	assert.True(t, resp.Results["/dev/sdb"])
	assert.False(t, resp.Results["/dev/sdc"])
}
