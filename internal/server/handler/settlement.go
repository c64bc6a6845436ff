package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pitchside/parimutuel/internal/domain"
)

// ResolutionService defines the resolve operation the settlement handler
// requires from the service layer.
type ResolutionService interface {
	Resolve(ctx context.Context, marketID string) (domain.Market, error)
}

// SettlementService defines the claim and fee collection operations the
// settlement handler requires from the service layer.
type SettlementService interface {
	Claim(ctx context.Context, marketID, user string) (uint64, error)
	CollectFees(ctx context.Context, marketID, caller, receiver string) (uint64, error)
}

// SettlementHandler serves resolution, claim, and fee collection endpoints.
type SettlementHandler struct {
	resolution ResolutionService
	settlement SettlementService
	logger     *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given services
// and logger.
func NewSettlementHandler(resolution ResolutionService, settlement SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		resolution: resolution,
		settlement: settlement,
		logger:     logger,
	}
}

// Resolve settles a market against its result feed.
// POST /api/markets/{id}/resolve
func (h *SettlementHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.resolution.Resolve(r.Context(), id)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: resolve market failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// claimRequest is the JSON body for the claim endpoint.
type claimRequest struct {
	User string `json:"user"`
}

// claimResponse reports the amount paid out by a successful claim.
type claimResponse struct {
	MarketID string `json:"market_id"`
	User     string `json:"user"`
	Paid     uint64 `json:"paid"`
}

// Claim pays out a user's share of the pool on a resolved market.
// POST /api/markets/{id}/claims
func (h *SettlementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	paid, err := h.settlement.Claim(r.Context(), id, req.User)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: claim failed",
				slog.String("market_id", id),
				slog.String("user", req.User),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		MarketID: id,
		User:     req.User,
		Paid:     paid,
	})
}

// collectFeesRequest is the JSON body for the fee collection endpoint.
type collectFeesRequest struct {
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
}

// collectFeesResponse reports the amount of fees withdrawn.
type collectFeesResponse struct {
	MarketID  string `json:"market_id"`
	Receiver  string `json:"receiver"`
	Collected uint64 `json:"collected"`
}

// CollectFees withdraws a market's accumulated fees to a receiver account.
// Only the market authority may do this.
// POST /api/markets/{id}/fees/collect
func (h *SettlementHandler) CollectFees(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req collectFeesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Caller == "" || req.Receiver == "" {
		writeError(w, http.StatusBadRequest, "caller and receiver are required")
		return
	}

	collected, err := h.settlement.CollectFees(r.Context(), id, req.Caller, req.Receiver)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: collect fees failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, collectFeesResponse{
		MarketID:  id,
		Receiver:  req.Receiver,
		Collected: collected,
	})
}
