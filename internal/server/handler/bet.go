package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pitchside/parimutuel/internal/domain"
)

// BettingService defines the methods that the bet handler requires from the
// service layer.
type BettingService interface {
	PlaceBet(ctx context.Context, marketID, user string, outcome domain.Outcome, amount uint64) (domain.Position, error)
	GetPosition(ctx context.Context, marketID, user string) (domain.Position, error)
}

// BetHandler serves bet and position HTTP endpoints.
type BetHandler struct {
	betting BettingService
	logger  *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(betting BettingService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		betting: betting,
		logger:  logger,
	}
}

// placeBetRequest is the JSON body for the bet endpoint. Amount is in the
// market asset's base units.
type placeBetRequest struct {
	User    string `json:"user"`
	Outcome string `json:"outcome"`
	Amount  uint64 `json:"amount"`
}

// PlaceBet stakes an amount on one outcome of a market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	pos, err := h.betting.PlaceBet(r.Context(), id, req.User, domain.Outcome(req.Outcome), req.Amount)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.String("market_id", id),
				slog.String("user", req.User),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pos)
}

// GetPosition returns a user's position in a market.
// GET /api/markets/{id}/positions/{user}
func (h *BetHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	user := pathParam(r, "user")
	if id == "" || user == "" {
		writeError(w, http.StatusBadRequest, "missing market id or user")
		return
	}

	pos, err := h.betting.GetPosition(r.Context(), id, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("market_id", id),
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
