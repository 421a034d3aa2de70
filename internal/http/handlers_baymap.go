package httpx

import (
	"net/http"
	"strconv"

	"github.com/compudrive/drivebench/internal/core"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

// BayMapHandlers provides HTTP handlers for the physical bay layout view.
type BayMapHandlers struct {
	Enumerator core.DeviceEnumerator
	Settings   core.SettingRepository
}

// bayEntry is one slot in the bay map response. Drive is null for empty bays.
type bayEntry struct {
	Bay   int  `json:"bay"`
	Drive any  `json:"drive"`
	Empty bool `json:"empty"`
}

// GetBayMap handles GET /api/bay-map. The map covers the configured
// backplane size; without a backplane configuration it covers the highest
// mapped bay among present drives.
func (h *BayMapHandlers) GetBayMap(w http.ResponseWriter, r *http.Request) {
	drives := h.Enumerator.Drives(r.Context())

	byBay := make(map[int]int, len(drives))
	totalBays := 0
	for i, d := range drives {
		if d.BayNumber <= 0 {
			continue
		}
		byBay[d.BayNumber] = i
		if d.BayNumber > totalBays {
			totalBays = d.BayNumber
		}
	}

	layoutType := ""
	if cfg, err := h.Settings.GetBackplaneConfig(r.Context()); err == nil && cfg != nil {
		layoutType = cfg.LayoutType
		if cfg.TotalBays > totalBays {
			totalBays = cfg.TotalBays
		}
	}

	bays := make([]bayEntry, 0, totalBays)
	for bay := 1; bay <= totalBays; bay++ {
		entry := bayEntry{Bay: bay, Empty: true}
		if i, ok := byBay[bay]; ok {
			entry.Drive = drives[i]
			entry.Empty = false
		}
		bays = append(bays, entry)
	}

	unmapped := make([]any, 0)
	for _, d := range drives {
		if d.BayNumber <= 0 {
			unmapped = append(unmapped, d)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"total_bays":  totalBays,
		"layout_type": layoutType,
		"bays":        bays,
		"unmapped":    unmapped,
	})
}

// GetBay handles GET /api/bay-map/{bay}.
func (h *BayMapHandlers) GetBay(w http.ResponseWriter, r *http.Request) {
	bay, err := strconv.Atoi(r.PathValue("bay"))
	if err != nil || bay < 1 {
		WriteAppError(w, apperrors.Validationf("invalid bay number %q", r.PathValue("bay")))
		return
	}

	for _, d := range h.Enumerator.Drives(r.Context()) {
		if d.BayNumber == bay {
			WriteJSON(w, http.StatusOK, map[string]any{"bay": bay, "drive": d})
			return
		}
	}

	WriteAppError(w, apperrors.NotFoundf("no drive in bay %d", bay))
}
