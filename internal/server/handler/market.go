package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pitchside/parimutuel/internal/domain"
	"github.com/pitchside/parimutuel/internal/service"
)

// MarketService defines the methods that the market handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, p service.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	UpdateFeed(ctx context.Context, marketID, caller, newFeedID string) error
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the JSON body for the create endpoint. Times are
// RFC 3339 strings.
type createMarketRequest struct {
	Authority      string    `json:"authority"`
	Question       string    `json:"question"`
	HomeTeam       string    `json:"home_team"`
	AwayTeam       string    `json:"away_team"`
	GameKey        string    `json:"game_key"`
	OracleFeed     string    `json:"oracle_feed"`
	Asset          string    `json:"asset"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ResolutionTime time.Time `json:"resolution_time"`
	FeeBps         uint64    `json:"fee_bps"`
}

// CreateMarket opens a new prediction market for a fixture.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Authority == "" || req.GameKey == "" || req.OracleFeed == "" || req.Asset == "" {
		writeError(w, http.StatusBadRequest, "authority, game_key, oracle_feed, and asset are required")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), service.CreateMarketParams{
		Authority:      req.Authority,
		Question:       req.Question,
		HomeTeam:       req.HomeTeam,
		AwayTeam:       req.AwayTeam,
		GameKey:        req.GameKey,
		OracleFeed:     req.OracleFeed,
		Asset:          req.Asset,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		ResolutionTime: req.ResolutionTime,
		FeeBps:         req.FeeBps,
	})
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create market failed",
				slog.String("game_key", req.GameKey),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// updateFeedRequest is the JSON body for the feed update endpoint.
type updateFeedRequest struct {
	Caller     string `json:"caller"`
	OracleFeed string `json:"oracle_feed"`
}

// UpdateFeed repoints an unresolved market at a different result feed. Only
// the market authority may do this.
// PUT /api/markets/{id}/feed
func (h *MarketHandler) UpdateFeed(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req updateFeedRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Caller == "" || req.OracleFeed == "" {
		writeError(w, http.StatusBadRequest, "caller and oracle_feed are required")
		return
	}

	if err := h.markets.UpdateFeed(r.Context(), id, req.Caller, req.OracleFeed); err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: update feed failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id":   id,
		"oracle_feed": req.OracleFeed,
	})
}
