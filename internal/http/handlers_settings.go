package httpx

import (
	"net/http"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	apperrors "github.com/compudrive/drivebench/internal/errors"
	"github.com/compudrive/drivebench/internal/notify"
)

// SettingHandlers provides HTTP handlers for raw settings and for the test
// and backplane configuration documents.
type SettingHandlers struct {
	Settings core.SettingRepository
	Hub      *notify.Hub
}

// ListSettings handles GET /api/settings.
func (h *SettingHandlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Settings.All(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

// GetSetting handles GET /api/settings/{key}.
func (h *SettingHandlers) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := h.Settings.Get(r.Context(), key)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

type settingValueRequest struct {
	Value string `json:"value"`
}

// PutSetting handles PUT /api/settings/{key}.
func (h *SettingHandlers) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req settingValueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Settings.Set(r.Context(), key, req.Value); err != nil {
		WriteAppError(w, err)
		return
	}

	h.publish(r, notify.KindSettingsUpdated, map[string]any{"key": key})
	WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// GetTestConfig handles GET /api/config/tests. A built-in default is
// returned when nothing has been saved yet.
func (h *SettingHandlers) GetTestConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Settings.GetTestConfig(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

// PutTestConfig handles PUT /api/config/tests.
func (h *SettingHandlers) PutTestConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.TestConfiguration
	if !DecodeJSON(w, r, &cfg) {
		return
	}

	if err := h.Settings.SaveTestConfig(r.Context(), cfg); err != nil {
		WriteAppError(w, err)
		return
	}

	h.publish(r, notify.KindSettingsUpdated, map[string]any{"key": "test_configuration"})
	WriteJSON(w, http.StatusOK, cfg)
}

// GetBackplaneConfig handles GET /api/config/backplane. Returns 404 until a
// layout is saved; without one the scanner falls back to positional bay
// numbering.
func (h *SettingHandlers) GetBackplaneConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Settings.GetBackplaneConfig(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if cfg == nil {
		WriteAppError(w, apperrors.NotFound("backplane configuration is not set"))
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

// PutBackplaneConfig handles PUT /api/config/backplane.
func (h *SettingHandlers) PutBackplaneConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.BackplaneConfig
	if !DecodeJSON(w, r, &cfg) {
		return
	}

	if err := h.Settings.SaveBackplaneConfig(r.Context(), cfg); err != nil {
		WriteAppError(w, err)
		return
	}

	h.publish(r, notify.KindBackplaneUpdated, map[string]any{
		"total_bays":  cfg.TotalBays,
		"layout_type": cfg.LayoutType,
	})
	WriteJSON(w, http.StatusOK, cfg)
}

func (h *SettingHandlers) publish(r *http.Request, kind notify.Kind, data map[string]any) {
	if h.Hub == nil {
		return
	}
	h.Hub.PublishData(r.Context(), kind, data)
}
