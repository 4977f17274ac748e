package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type registerEntityRequest struct {
	Address string `json:"address" validate:"required"`
	Name    string `json:"name" validate:"required"`
}

// RegisterEntityHandler handles POST /api/entities. The central authority
// registers entities directly as active; anyone else may only register
// their own address, which lands in the pending queue.
func (h *Handler) RegisterEntityHandler(w http.ResponseWriter, r *http.Request) {
	var req registerEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "address and name are required")
		return
	}

	e, err := h.Registry.RegisterEntity(r.Context(), caller(r), req.Address, req.Name)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, e)
}

// ApproveEntityHandler handles POST /api/entities/{address}/approve.
func (h *Handler) ApproveEntityHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.ApproveEntity(r.Context(), caller(r), chi.URLParam(r, "address")); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RejectEntityHandler handles POST /api/entities/{address}/reject.
func (h *Handler) RejectEntityHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.RejectEntity(r.Context(), caller(r), chi.URLParam(r, "address")); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeactivateEntityHandler handles POST /api/entities/{address}/deactivate.
func (h *Handler) DeactivateEntityHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.DeactivateEntity(r.Context(), caller(r), chi.URLParam(r, "address")); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetEntityHandler handles GET /api/entities/{address}.
func (h *Handler) GetEntityHandler(w http.ResponseWriter, r *http.Request) {
	e, err := h.Registry.GetEntityDetails(chi.URLParam(r, "address"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, e)
}

// GetEntitiesHandler handles GET /api/entities, listing every registered
// address in registration order.
func (h *Handler) GetEntitiesHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.Registry.GetAllEntityAddresses())
}
