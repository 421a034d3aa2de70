package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/notify"
)

func newTestRouter(t *testing.T, services RouterServices) http.Handler {
	t.Helper()
	if services.Hub == nil {
		services.Hub = notify.NewHub(nil)
	}
	if services.Enumerator == nil {
		services.Enumerator = &fakeEnumerator{}
	}
	if services.Exec == nil {
		services.Exec = newFakeExec()
	}
	if services.Sessions == nil {
		services.Sessions = &memSessions{}
	}
	if services.Settings == nil {
		services.Settings = newMemSettings()
	}
	return NewRouter(services)
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytesReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestListDrives(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{
		benchDrive("WD-1", "/dev/sdb", 1),
		benchDrive("WD-2", "/dev/sdc", 2),
	}}
	router := newTestRouter(t, RouterServices{Enumerator: enum})

	rec := doJSON(t, router, http.MethodGet, "/api/drives", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Drives []model.Drive `json:"drives"`
		Count  int           `json:"count"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Drives, 2)
	assert.Equal(t, "WD-1", resp.Drives[0].Serial)
}

func TestGetDriveWithHistory(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	results := &memResults{}
	require.NoError(t, results.Insert(context.Background(), core.InsertTestResultParams{
		JobID:     "job-1",
		Device:    model.DeviceIdentity{Path: "/dev/sdb", Name: "sdb", Serial: "WD-1"},
		TestType:  model.TestTypeSmartShort,
		State:     model.TestStateCompleted,
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
	}))
	router := newTestRouter(t, RouterServices{Enumerator: enum, Results: results})

	rec := doJSON(t, router, http.MethodGet, "/api/drives/WD-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Drive         model.Drive           `json:"drive"`
		RecentResults []model.TestResultRow `json:"recent_results"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "/dev/sdb", resp.Drive.Path)
	require.Len(t, resp.RecentResults, 1)
	assert.Equal(t, model.TestTypeSmartShort, resp.RecentResults[0].TestType)
}

func TestGetDriveNotPresent(t *testing.T) {
	router := newTestRouter(t, RouterServices{})

	rec := doJSON(t, router, http.MethodGet, "/api/drives/MISSING", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "not_found", resp["error"])
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, RouterServices{})

	rec := doJSON(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSystemStatus(t *testing.T) {
	enum := &fakeEnumerator{drives: []model.Drive{benchDrive("WD-1", "/dev/sdb", 1)}}
	exec := newFakeExec()
	exec.active = 1
	router := newTestRouter(t, RouterServices{
		Enumerator: enum,
		Exec:       exec,
		Version:    "1.2.3",
		StartedAt:  time.Now().Add(-time.Minute),
	})

	rec := doJSON(t, router, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "1.2.3", resp["version"])
	assert.InDelta(t, 1, resp["active_tests"], 0)
	assert.InDelta(t, 1, resp["drives_present"], 0)
	assert.GreaterOrEqual(t, resp["uptime_seconds"], float64(59))
}
