package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

type issueTenderRequest struct {
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description" validate:"required"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	Deadline     int64  `json:"deadline" validate:"required,gt=0"`
	MinBidAmount int64  `json:"minBidAmount" validate:"required,gt=0"`
	MaxBidAmount int64  `json:"maxBidAmount" validate:"required,gt=0"`
}

// IssueTenderHandler handles POST /api/tenders for the calling entity.
func (h *Handler) IssueTenderHandler(w http.ResponseWriter, r *http.Request) {
	var req issueTenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "title, description and positive amounts are required")
		return
	}

	t, err := h.Registry.IssueTender(r.Context(), caller(r), req.Title, req.Description,
		req.Amount, req.Deadline, req.MinBidAmount, req.MaxBidAmount)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, t)
}

// GetTendersHandler handles GET /api/tenders.
func (h *Handler) GetTendersHandler(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	tenders, err := h.Registry.GetTenders(params.Offset, params.Limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, tenders)
}

// GetTenderHandler handles GET /api/tenders/{tenderId}.
func (h *Handler) GetTenderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	t, err := h.Registry.GetTenderDetails(id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, t)
}

type placeBidRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// PlaceBidHandler handles POST /api/tenders/{tenderId}/bids. The bid
// amount is debited from the caller's balance into escrow.
func (h *Handler) PlaceBidHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "a positive amount is required")
		return
	}

	b, err := h.Registry.PlaceBid(r.Context(), caller(r), id, req.Amount)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, b)
}

// GetBidsHandler handles GET /api/tenders/{tenderId}/bids.
func (h *Handler) GetBidsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	bids, err := h.Registry.GetBids(id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, bids)
}

// WithdrawBidHandler handles POST /api/tenders/{tenderId}/bids/withdraw,
// refunding the caller's escrowed deposit.
func (h *Handler) WithdrawBidHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	if err := h.Registry.WithdrawBid(r.Context(), caller(r), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// AwardTenderHandler handles POST /api/tenders/{tenderId}/award. Issuer
// only; pays the winner and refunds every live escrow.
func (h *Handler) AwardTenderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	t, err := h.Registry.AwardTender(r.Context(), caller(r), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, t)
}

// CancelTenderHandler handles POST /api/tenders/{tenderId}/cancel.
func (h *Handler) CancelTenderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	t, err := h.Registry.CancelTender(r.Context(), caller(r), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, t)
}
