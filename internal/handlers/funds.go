package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type issueFundsRequest struct {
	Entity string `json:"entity" validate:"required"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

// IssueFundsHandler handles POST /api/funds/issue. Central authority only.
func (h *Handler) IssueFundsHandler(w http.ResponseWriter, r *http.Request) {
	var req issueFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "entity and a positive amount are required")
		return
	}

	f, err := h.Registry.IssueFunds(r.Context(), caller(r), req.Entity, req.Amount)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, f)
}

// GetIssuedFundsHandler handles GET /api/funds/issued.
func (h *Handler) GetIssuedFundsHandler(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	funds, err := h.Registry.GetIssuedFunds(params.Offset, params.Limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, funds)
}

type recordSpendingRequest struct {
	Purpose      string `json:"purpose" validate:"required"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	DocumentHash string `json:"documentHash"`
}

// RecordSpendingHandler handles POST /api/spending for the calling entity.
func (h *Handler) RecordSpendingHandler(w http.ResponseWriter, r *http.Request) {
	var req recordSpendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "purpose and a positive amount are required")
		return
	}

	rec, err := h.Registry.RecordSpending(r.Context(), caller(r), req.Purpose, req.Amount, req.DocumentHash)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rec)
}

// GetSpendingRecordsHandler handles GET /api/spending.
func (h *Handler) GetSpendingRecordsHandler(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	records, err := h.Registry.GetSpendingRecords(params.Offset, params.Limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, records)
}

// GetEntitySpendingHandler handles GET /api/entities/{address}/spending.
func (h *Handler) GetEntitySpendingHandler(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	records, err := h.Registry.GetEntitySpendingRecords(chi.URLParam(r, "address"), params.Offset, params.Limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, records)
}

type microTransactionRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"required"`
}

// RecordMicroTransactionHandler handles POST /api/spending/{recordId}/micro.
func (h *Handler) RecordMicroTransactionHandler(w http.ResponseWriter, r *http.Request) {
	recordID, err := pathID(r, "recordId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	var req microTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "description and a positive amount are required")
		return
	}

	m, err := h.Registry.RecordMicroTransaction(r.Context(), caller(r), recordID, req.Amount, req.Description)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, m)
}

// GetRecordMicroTransactionsHandler handles GET /api/spending/{recordId}/micro.
func (h *Handler) GetRecordMicroTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	recordID, err := pathID(r, "recordId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	items, err := h.Registry.GetRecordMicroTransactions(recordID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, items)
}

// GetMicroTransactionsHandler handles GET /api/micro-transactions.
func (h *Handler) GetMicroTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	items, err := h.Registry.GetMicroTransactions(params.Offset, params.Limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, items)
}

type fundRequestRequest struct {
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	Reason       string `json:"reason" validate:"required"`
	DocumentHash string `json:"documentHash"`
}

// RequestFundsHandler handles POST /api/fund-requests.
func (h *Handler) RequestFundsHandler(w http.ResponseWriter, r *http.Request) {
	var req fundRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "reason and a positive amount are required")
		return
	}

	fr, err := h.Registry.RequestFunds(r.Context(), caller(r), req.Amount, req.Reason, req.DocumentHash)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, fr)
}

// GetFundRequestsHandler handles GET /api/fund-requests.
func (h *Handler) GetFundRequestsHandler(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	requests, err := h.Registry.GetFundRequests(params.Offset, params.Limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, requests)
}

// GetEntityFundRequestsHandler handles GET /api/entities/{address}/fund-requests.
func (h *Handler) GetEntityFundRequestsHandler(w http.ResponseWriter, r *http.Request) {
	params, err := parsePaginationParams(r)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	requests, err := h.Registry.GetEntityFundRequests(chi.URLParam(r, "address"), params.Offset, params.Limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, requests)
}

// ApproveFundRequestHandler handles POST /api/fund-requests/{requestId}/approve.
func (h *Handler) ApproveFundRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "requestId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	if err := h.Registry.ApproveFundRequest(r.Context(), caller(r), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RejectFundRequestHandler handles POST /api/fund-requests/{requestId}/reject.
func (h *Handler) RejectFundRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "requestId")
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	if err := h.Registry.RejectFundRequest(r.Context(), caller(r), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
