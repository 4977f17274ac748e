package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"spendregistry/internal/registry"
)

// callerHeader carries the address the request acts as. The registry
// enforces every authorization rule against it.
const callerHeader = "X-Caller-Address"

var validate = validator.New()

// Handler exposes the registry over HTTP.
type Handler struct {
	Registry *registry.Registry
	Log      *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(reg *registry.Registry, log *slog.Logger) *Handler {
	return &Handler{Registry: reg, Log: log}
}

// PingHandler answers "ok" for liveness checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// BalanceHandler reports the funds held by the registry itself.
func (h *Handler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]int64{
		"contractBalance": h.Registry.ContractBalance(),
		"escrowHeld":      h.Registry.EscrowHeld(),
		"bonusPool":       h.Registry.BonusPool(),
	})
}

type httpError struct {
	Reason string `json:"reason"`
}

func caller(r *http.Request) string {
	return r.Header.Get(callerHeader)
}

// renderError maps registry sentinel errors onto HTTP status codes.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, registry.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidState), errors.Is(err, registry.ErrAlreadyDone):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		h.Log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, httpError{Reason: err.Error()})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, reason string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, httpError{Reason: reason})
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams reads limit and offset from the query with
// defaults. Non-numeric or out-of-range values are reported to the
// caller instead of silently corrected.
func parsePaginationParams(r *http.Request) (PaginationParams, error) {
	params := PaginationParams{Limit: 20, Offset: 0}

	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 || l > 100 {
			return params, errors.New("limit must be an integer in [1, 100]")
		}
		params.Limit = l
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		o, err := strconv.Atoi(s)
		if err != nil || o < 0 {
			return params, errors.New("offset must be a non-negative integer")
		}
		params.Offset = o
	}
	return params, nil
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + param)
	}
	return id, nil
}
