package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/notify"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Exec       core.TestStarter
	Enumerator core.DeviceEnumerator
	Results    core.TestResultRepository
	Sessions   core.SessionRepository
	Settings   core.SettingRepository
	Hub        *notify.Hub

	Version   string
	StartedAt time.Time
	Logger    *slog.Logger
}

// NewRouter creates and configures the drivebench API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default().With("component", "http")
	}
	startedAt := services.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	driveHandlers := &DriveHandlers{
		Enumerator: services.Enumerator,
		Results:    services.Results,
	}
	testHandlers := &TestHandlers{
		Exec:       services.Exec,
		Enumerator: services.Enumerator,
	}
	bayMapHandlers := &BayMapHandlers{
		Enumerator: services.Enumerator,
		Settings:   services.Settings,
	}
	sessionHandlers := &SessionHandlers{Sessions: services.Sessions, Hub: services.Hub}
	settingHandlers := &SettingHandlers{Settings: services.Settings, Hub: services.Hub}
	systemHandlers := &SystemHandlers{
		Exec:       services.Exec,
		Enumerator: services.Enumerator,
		StartedAt:  startedAt,
		Version:    services.Version,
	}
	eventHandlers := NewEventHandlers(services.Hub, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/drives", driveHandlers.ListDrives)
	mux.HandleFunc("GET /api/drives/{serial}", driveHandlers.GetDrive)

	mux.HandleFunc("POST /api/drives/{serial}/test", testHandlers.StartTest)
	mux.HandleFunc("GET /api/drives/{serial}/test", testHandlers.GetTestProgress)
	mux.HandleFunc("DELETE /api/drives/{serial}/test", testHandlers.StopTest)
	mux.HandleFunc("POST /api/tests/start-all", testHandlers.StartAll)
	mux.HandleFunc("POST /api/tests/stop-all", testHandlers.StopAll)

	mux.HandleFunc("GET /api/bay-map", bayMapHandlers.GetBayMap)
	mux.HandleFunc("GET /api/bay-map/{bay}", bayMapHandlers.GetBay)

	mux.HandleFunc("GET /api/session", sessionHandlers.GetSession)
	mux.HandleFunc("POST /api/session", sessionHandlers.OpenSession)
	mux.HandleFunc("PUT /api/session/po", sessionHandlers.UpdatePONumber)

	mux.HandleFunc("GET /api/settings", settingHandlers.ListSettings)
	mux.HandleFunc("GET /api/settings/{key}", settingHandlers.GetSetting)
	mux.HandleFunc("PUT /api/settings/{key}", settingHandlers.PutSetting)
	mux.HandleFunc("GET /api/config/tests", settingHandlers.GetTestConfig)
	mux.HandleFunc("PUT /api/config/tests", settingHandlers.PutTestConfig)
	mux.HandleFunc("GET /api/config/backplane", settingHandlers.GetBackplaneConfig)
	mux.HandleFunc("PUT /api/config/backplane", settingHandlers.PutBackplaneConfig)

	mux.HandleFunc("GET /api/system/status", systemHandlers.GetStatus)
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	mux.HandleFunc("GET /api/events", eventHandlers.Stream)

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
