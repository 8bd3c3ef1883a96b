// Package game provides the HTTP handlers bridging external callers
// (frontend, bot webhooks, schedulers) to the simulator: position
// commands, event triggers, top-ups, save/load, and the leaderboard.
//
// All monetary values use shopspring/decimal — never float64 for money.
package game

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/catalog"
	"github.com/leverplay/game-engine/internal/engine"
	"github.com/leverplay/game-engine/internal/ledger"
	"github.com/leverplay/game-engine/internal/metrics"
	"github.com/leverplay/game-engine/internal/model"
	"github.com/leverplay/game-engine/internal/risk"
	"github.com/leverplay/game-engine/internal/sim"
	"github.com/leverplay/game-engine/internal/store"
)

// Service exposes the simulator over HTTP. The simulator serializes all
// mutations internally; handlers stay lock-free.
type Service struct {
	sim   *sim.Simulator
	store store.Store
	wsHub *WSHub // optional hub for real-time broadcasts
}

// NewService creates a new game service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(s *sim.Simulator, st store.Store, hub *WSHub) *Service {
	return &Service{sim: s, store: st, wsHub: hub}
}

// --- Request/Response types ---

// OpenRequest is the JSON body for POST /positions.
type OpenRequest struct {
	Symbol   string           `json:"symbol"`
	Side     string           `json:"side"` // "long" or "short"
	Notional decimal.Decimal  `json:"notional"`
	Leverage int64            `json:"leverage"`
	Stop     *decimal.Decimal `json:"stop,omitempty"`
}

// TopUpRequest is the JSON body for POST /topups.
type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ConfirmTopUpRequest is the JSON body the payment webhook posts to
// /topups/confirm.
type ConfirmTopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Stars  int64           `json:"stars"`
}

// ResetRequest is the JSON body for POST /reset.
type ResetRequest struct {
	StartBalance decimal.Decimal `json:"start_balance"`
}

// ScoreRequest is the JSON body for POST /leaderboard.
type ScoreRequest struct {
	Name string `json:"name"`
}

// --- HTTP Handlers ---

// GetSnapshot handles GET /api/v1/snapshot
func (s *Service) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}

// OpenPosition handles POST /api/v1/positions
func (s *Service) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pos, err := s.sim.OpenPosition(req.Symbol, model.Side(req.Side), req.Notional, req.Leverage, req.Stop)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	metrics.TradesTotal.WithLabelValues(string(pos.Side)).Inc()
	s.trackBalance()

	slog.Info("position opened",
		"id", pos.ID,
		"symbol", pos.Symbol,
		"side", pos.Side,
		"notional", pos.Notional.String(),
		"leverage", pos.Leverage,
		"entry", pos.EntryPrice.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:   "position_opened",
			Symbol: pos.Symbol,
			Side:   string(pos.Side),
			Price:  pos.EntryPrice.String(),
		})
	}

	writeJSON(w, http.StatusCreated, pos)
}

// ClosePosition handles POST /api/v1/positions/close
func (s *Service) ClosePosition(w http.ResponseWriter, r *http.Request) {
	trade, err := s.sim.ClosePosition()
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	s.recordClose(trade)
	writeJSON(w, http.StatusOK, trade)
}

// TriggerEvent handles POST /api/v1/events
func (s *Service) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	applied, err := s.sim.TriggerEvent()
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	metrics.EventsAppliedTotal.Inc()
	slog.Info("market event applied",
		"title", applied.Event.Title,
		"symbol", applied.Symbol,
		"impact", applied.Event.Impact,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:   "market_event",
			Symbol: applied.Symbol,
			Title:  applied.Event.Title,
		})
	}

	writeJSON(w, http.StatusOK, applied)
}

// RequestTopUp handles POST /api/v1/topups
// Registers intent only; the balance moves when the payment webhook
// confirms via /topups/confirm.
func (s *Service) RequestTopUp(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pending, err := s.sim.RequestTopUp(req.Amount)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	slog.Info("top-up requested", "id", pending.ID, "amount", pending.Amount.String())
	writeJSON(w, http.StatusAccepted, pending)
}

// ConfirmTopUp handles POST /api/v1/topups/confirm
// Called by the external payment channel once a purchase settles.
func (s *Service) ConfirmTopUp(w http.ResponseWriter, r *http.Request) {
	var req ConfirmTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Amount.IsPositive() {
		if err := s.sim.CreditTopUp(req.Amount); err != nil {
			writeError(w, err.Error(), errStatus(err))
			return
		}
	}
	if req.Stars > 0 {
		if err := s.sim.CreditStars(req.Stars); err != nil {
			writeError(w, err.Error(), errStatus(err))
			return
		}
	}
	if !req.Amount.IsPositive() && req.Stars <= 0 {
		writeError(w, "amount or stars must be positive", http.StatusBadRequest)
		return
	}

	s.trackBalance()
	slog.Info("top-up credited", "amount", req.Amount.String(), "stars", req.Stars)

	snap := s.sim.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"balance": snap.Balance,
		"stars":   snap.Stars,
	})
}

// Reset handles POST /api/v1/reset
func (s *Service) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.sim.Reset(req.StartBalance); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	s.trackBalance()
	slog.Info("game reset", "start_balance", req.StartBalance.String())
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}

// SaveGame handles POST /api/v1/save
func (s *Service) SaveGame(w http.ResponseWriter, r *http.Request) {
	state := s.sim.State()
	if err := s.store.SaveGame(r.Context(), state.Account.PlayerID, &state); err != nil {
		writeError(w, "failed to save game", http.StatusInternalServerError)
		return
	}

	slog.Info("game saved", "player", state.Account.PlayerID)
	writeJSON(w, http.StatusOK, map[string]any{"saved_at": state.SavedAt})
}

// LoadGame handles POST /api/v1/load
func (s *Service) LoadGame(w http.ResponseWriter, r *http.Request) {
	playerID := s.sim.State().Account.PlayerID

	state, err := s.store.LoadGame(r.Context(), playerID)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	if err := s.sim.Restore(*state); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	s.trackBalance()
	slog.Info("game loaded", "player", playerID, "saved_at", state.SavedAt)
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}

// GetLeaderboard handles GET /api/v1/leaderboard?limit=N
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.store.TopScores(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// PostScore handles POST /api/v1/leaderboard
// Publishes the current balance under the player's identity.
func (s *Service) PostScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	state := s.sim.State()
	name := req.Name
	if name == "" {
		name = state.Account.Name
	}
	if name == "" {
		name = "Anon"
	}

	entry := &model.LeaderboardEntry{
		PlayerID:  state.Account.PlayerID,
		Name:      name,
		Balance:   state.Account.Balance,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertScore(r.Context(), entry); err != nil {
		writeError(w, "failed to post score", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// RecordTick is called by the external scheduler after each simulator
// tick: it updates metrics and broadcasts the auto-close, if any.
func (s *Service) RecordTick(autoClosed *model.ClosedTrade) {
	metrics.TicksTotal.Inc()
	if autoClosed == nil {
		return
	}
	s.recordClose(autoClosed)
}

// recordClose updates metrics/logs and broadcasts a closed trade,
// whatever its cause.
func (s *Service) recordClose(trade *model.ClosedTrade) {
	metrics.ClosesTotal.WithLabelValues(string(trade.Cause)).Inc()
	if trade.Liquidation {
		metrics.LiquidationsTotal.Inc()
	}
	s.trackBalance()

	slog.Info("position closed",
		"id", trade.ID,
		"symbol", trade.Symbol,
		"cause", trade.Cause,
		"exit", trade.ExitPrice.String(),
		"pnl", trade.PnL.String(),
		"roe_pct", trade.ROEPercent.StringFixed(2),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:   "position_closed",
			Symbol: trade.Symbol,
			Side:   string(trade.Side),
			Cause:  string(trade.Cause),
			Price:  trade.ExitPrice.String(),
			PnL:    trade.PnL.String(),
		})
	}
}

// BroadcastPrices pushes the current per-asset prices to WebSocket
// clients. The scheduler calls it after each tick.
func (s *Service) BroadcastPrices() {
	if s.wsHub == nil {
		return
	}
	snap := s.sim.Snapshot()
	for _, a := range snap.Assets {
		s.wsHub.Broadcast(WSMessage{
			Type:   "price_tick",
			Symbol: a.Symbol,
			Price:  a.Price.String(),
		})
	}
}

func (s *Service) trackBalance() {
	metrics.PlayerBalance.Set(s.sim.Snapshot().Balance.InexactFloat64())
}

// errStatus maps domain errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidParameter),
		errors.Is(err, catalog.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientMargin):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrPositionAlreadyOpen),
		errors.Is(err, ledger.ErrNoOpenPosition),
		errors.Is(err, risk.ErrLeverageLimitExceeded),
		errors.Is(err, risk.ErrNotionalLimitExceeded),
		errors.Is(err, risk.ErrMarginFractionExceeded):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnknownAsset),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
