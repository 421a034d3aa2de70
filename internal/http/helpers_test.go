package httpx

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/data"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

func bytesReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

// fakeEnumerator serves a fixed set of drives.
type fakeEnumerator struct {
	drives []model.Drive
}

func (f *fakeEnumerator) Drives(context.Context) []model.Drive {
	out := make([]model.Drive, len(f.drives))
	copy(out, f.drives)
	return out
}

func (f *fakeEnumerator) DriveBySerial(_ context.Context, serial string) (model.Drive, bool) {
	for _, d := range f.drives {
		if d.Serial == serial {
			return d, true
		}
	}
	return model.Drive{}, false
}

func (f *fakeEnumerator) DriveByPath(_ context.Context, path string) (model.Drive, bool) {
	for _, d := range f.drives {
		if d.Path == path {
			return d, true
		}
	}
	return model.Drive{}, false
}

func benchDrive(serial, path string, bay int) model.Drive {
	return model.Drive{
		DeviceIdentity: model.DeviceIdentity{
			Path:   path,
			Name:   strings.TrimPrefix(path, "/dev/"),
			Serial: serial,
		},
		Model:       "WD80EFZX",
		Capacity:    "8.0 TB",
		SCSIHost:    0,
		SCSIChannel: 0,
		SCSITarget:  bay,
		SCSILun:     0,
		BayNumber:   bay,
	}
}

// fakeExec is a scripted core.TestStarter.
type fakeExec struct {
	mu sync.Mutex

	startErr error
	nextID   string
	starts   []core.StartTestRequest

	records map[string]model.JobRecord
	stopped map[string]bool
	active  int
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		nextID:  "job-1",
		records: make(map[string]model.JobRecord),
		stopped: make(map[string]bool),
	}
}

func (f *fakeExec) Start(_ context.Context, req core.StartTestRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts = append(f.starts, req)
	return f.nextID, nil
}

func (f *fakeExec) StartAll(
	ctx context.Context,
	devices []model.DeviceIdentity,
	testType model.TestType,
	params model.TestParameters,
) map[string]core.StartResult {
	out := make(map[string]core.StartResult, len(devices))
	for _, device := range devices {
		id, err := f.Start(ctx, core.StartTestRequest{Device: device, TestType: testType, Parameters: params})
		out[device.Path] = core.StartResult{JobID: id, Err: err}
	}
	return out
}

func (f *fakeExec) Stop(device string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped[device]
}

func (f *fakeExec) StopAll(devices []string) map[string]bool {
	out := make(map[string]bool, len(devices))
	for _, d := range devices {
		out[d] = f.Stop(d)
	}
	return out
}

func (f *fakeExec) Progress(device string) (model.JobRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[device]
	return record, ok
}

func (f *fakeExec) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// memSessions is an in-memory core.SessionRepository.
type memSessions struct {
	mu      sync.Mutex
	session *model.BenchSession
	nextID  int64
}

func (m *memSessions) GetActive(context.Context) (*model.BenchSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, data.ErrSessionNotFound
	}
	cp := *m.session
	return &cp, nil
}

func (m *memSessions) GetOrCreateActive(_ context.Context, poNumber string) (*model.BenchSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		m.nextID++
		m.session = &model.BenchSession{
			ID:        m.nextID,
			PONumber:  strings.TrimSpace(poNumber),
			Active:    true,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
	}
	cp := *m.session
	return &cp, nil
}

func (m *memSessions) UpdatePONumber(_ context.Context, poNumber string) (*model.BenchSession, error) {
	poNumber = strings.TrimSpace(poNumber)
	if poNumber == "" {
		return nil, apperrors.Validation("po number is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		m.nextID++
		m.session = &model.BenchSession{ID: m.nextID, Active: true, CreatedAt: time.Now()}
	}
	m.session.PONumber = poNumber
	m.session.UpdatedAt = time.Now()
	cp := *m.session
	return &cp, nil
}

// memSettings is an in-memory core.SettingRepository.
type memSettings struct {
	mu        sync.Mutex
	values    map[string]string
	testCfg   *model.TestConfiguration
	backplane *model.BackplaneConfig
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", data.ErrSettingNotFound
	}
	return v, nil
}

func (m *memSettings) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memSettings) All(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memSettings) GetTestConfig(context.Context) (*model.TestConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.testCfg == nil {
		cfg := data.DefaultTestConfiguration()
		return &cfg, nil
	}
	cp := *m.testCfg
	return &cp, nil
}

func (m *memSettings) SaveTestConfig(_ context.Context, cfg model.TestConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid test configuration")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.testCfg = &cfg
	return nil
}

func (m *memSettings) GetBackplaneConfig(context.Context) (*model.BackplaneConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backplane == nil {
		return nil, nil
	}
	cp := *m.backplane
	return &cp, nil
}

func (m *memSettings) SaveBackplaneConfig(_ context.Context, cfg model.BackplaneConfig) error {
	if err := cfg.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid backplane configuration")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backplane = &cfg
	return nil
}

// memResults is an in-memory core.TestResultRepository.
type memResults struct {
	mu   sync.Mutex
	rows []model.TestResultRow
}

func (m *memResults) Insert(_ context.Context, params core.InsertTestResultParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, model.TestResultRow{
		ID:        int64(len(m.rows) + 1),
		JobID:     params.JobID,
		Serial:    params.Device.Serial,
		Device:    params.Device.Path,
		TestType:  params.TestType,
		State:     params.State,
		Result:    params.Result,
		StartedAt: params.StartedAt,
		EndedAt:   params.EndedAt,
	})
	return nil
}

func (m *memResults) ListBySerial(_ context.Context, serial string, limit int) ([]model.TestResultRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TestResultRow
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].Serial == serial {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func (m *memResults) DeleteOlderThan(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []model.TestResultRow
	var deleted int64
	for _, row := range m.rows {
		if row.EndedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return deleted, nil
}
