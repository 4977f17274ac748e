package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type voteRequest struct {
	Rating int64 `json:"rating" validate:"required,min=1,max=5"`
}

// VoteHandler handles POST /api/entities/{address}/vote. One vote per
// caller per entity.
func (h *Handler) VoteHandler(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "rating must be an integer in [1, 5]")
		return
	}

	if err := h.Registry.VoteForEntity(r.Context(), caller(r), chi.URLParam(r, "address"), req.Rating); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// VotingStatusHandler handles GET /api/votes/status. With an entity query
// parameter it reports whether the caller rated that entity; without one
// it reports whether the caller has rated anything.
func (h *Handler) VotingStatusHandler(w http.ResponseWriter, r *http.Request) {
	voted, err := h.Registry.CheckVotingStatus(caller(r), r.URL.Query().Get("entity"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]bool{"hasVoted": voted})
}

// GetEntityRatingHandler handles GET /api/entities/{address}/rating.
func (h *Handler) GetEntityRatingHandler(w http.ResponseWriter, r *http.Request) {
	rating, err := h.Registry.GetEntityHappinessRating(chi.URLParam(r, "address"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, rating)
}

type entityRating struct {
	Address string `json:"address"`
	Rating  int64  `json:"rating"`
	Votes   int64  `json:"votes"`
}

// GetAllRatingsHandler handles GET /api/ratings, listing every rated
// entity in registration order.
func (h *Handler) GetAllRatingsHandler(w http.ResponseWriter, r *http.Request) {
	addresses, ratings, votes := h.Registry.GetAllEntityRatings()
	out := make([]entityRating, 0, len(addresses))
	for i := range addresses {
		out = append(out, entityRating{Address: addresses[i], Rating: ratings[i], Votes: votes[i]})
	}
	render.JSON(w, r, out)
}

// NextBonusHandler handles GET /api/bonus/next.
func (h *Handler) NextBonusHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]int64{"secondsRemaining": h.Registry.GetTimeUntilNextBonus()})
}

type fundBonusPoolRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// FundBonusPoolHandler handles POST /api/bonus/fund. Central authority only.
func (h *Handler) FundBonusPoolHandler(w http.ResponseWriter, r *http.Request) {
	var req fundBonusPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.badRequest(w, r, "a positive amount is required")
		return
	}

	if err := h.Registry.FundBonusPool(r.Context(), caller(r), req.Amount); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DistributeBonusHandler handles POST /api/bonus/distribute. Central
// authority only, once per interval.
func (h *Handler) DistributeBonusHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.DistributeBonus(r.Context(), caller(r)); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
