package httpx

import (
	"net/http"

	"github.com/compudrive/drivebench/internal/core"
	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/notify"
)

// SessionHandlers provides HTTP handlers for the active bench session.
type SessionHandlers struct {
	Sessions core.SessionRepository
	Hub      *notify.Hub
}

// GetSession handles GET /api/session. Returns 404 when no bench session
// has been opened yet.
func (h *SessionHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.Sessions.GetActive(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, session)
}

type sessionRequest struct {
	PONumber string `json:"po_number"`
}

// OpenSession handles POST /api/session. Idempotent: an existing active
// session is returned unchanged, PO number included.
func (h *SessionHandlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.ContentLength != 0 && !DecodeJSON(w, r, &req) {
		return
	}

	session, err := h.Sessions.GetOrCreateActive(r.Context(), req.PONumber)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	h.notifySessionUpdated(r, session)
	WriteJSON(w, http.StatusOK, session)
}

// UpdatePONumber handles PUT /api/session/po.
func (h *SessionHandlers) UpdatePONumber(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	session, err := h.Sessions.UpdatePONumber(r.Context(), req.PONumber)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	h.notifySessionUpdated(r, session)
	WriteJSON(w, http.StatusOK, session)
}

func (h *SessionHandlers) notifySessionUpdated(r *http.Request, session *model.BenchSession) {
	if h.Hub == nil {
		return
	}
	h.Hub.PublishData(r.Context(), notify.KindSessionUpdated, map[string]any{
		"session": session,
	})
}
