package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/calendar"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/aristath/papertrader/internal/modules/monitor"
	"github.com/aristath/papertrader/internal/modules/scanner"
)

const defaultListLimit = 50

// Handlers holds the API endpoint implementations
type Handlers struct {
	ledger  *ledger.Service
	scanner *scanner.Service
	monitor *monitor.Scheduler
	cal     *calendar.Calendar
	quotes  domain.QuoteSource
	clock   domain.Clock
	log     zerolog.Logger
}

// NewHandlers creates the API handlers
func NewHandlers(ledgerSvc *ledger.Service, scannerSvc *scanner.Service, mon *monitor.Scheduler, cal *calendar.Calendar, quotes domain.QuoteSource, clock domain.Clock, log zerolog.Logger) *Handlers {
	return &Handlers{
		ledger:  ledgerSvc,
		scanner: scannerSvc,
		monitor: mon,
		cal:     cal,
		quotes:  quotes,
		clock:   clock,
		log:     log.With().Str("handler", "api").Logger(),
	}
}

// HandleHealth is the liveness probe
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleGetPortfolio returns the account state with a live valuation
func (h *Handlers) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.ledger.Holdings()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	symbols := make([]string, 0, len(holdings))
	for _, holding := range holdings {
		symbols = append(symbols, holding.Symbol)
	}
	prices := h.scanner.LastPrices(r.Context(), symbols)

	summary, err := h.ledger.Summarize(prices)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	portfolio, err := h.ledger.Portfolio()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"cash":              summary.Cash,
		"holdings_value":    summary.HoldingsValue,
		"total_value":       summary.TotalValue,
		"realized_pl":       summary.RealizedPL,
		"unrealized_pl":     summary.UnrealizedPL,
		"holding_count":     summary.HoldingCount,
		"total_commissions": portfolio.TotalCommissions,
		"updated_at":        portfolio.UpdatedAt.Format(time.RFC3339),
	})
}

// HandleReset wipes the ledger back to the starting cash balance
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Reset(); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleGetSnapshots returns daily valuation history
func (h *Handlers) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 90)
	snapshots, err := h.ledger.SnapshotHistory(days)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snapshots == nil {
		snapshots = []ledger.Snapshot{}
	}
	h.writeJSON(w, http.StatusOK, snapshots)
}

// HandleGetHoldings returns the open positions
func (h *Handlers) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.ledger.Holdings()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]any, 0, len(holdings))
	for _, holding := range holdings {
		result = append(result, map[string]any{
			"symbol":      holding.Symbol,
			"shares":      holding.Shares,
			"avg_cost":    holding.AvgCost,
			"cost_basis":  holding.CostBasis(),
			"take_profit": holding.TakeProfit,
			"stop_loss":   holding.StopLoss,
			"opened_at":   holding.OpenedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

type thresholdsRequest struct {
	TakeProfit *float64 `json:"take_profit"`
	StopLoss   *float64 `json:"stop_loss"`
}

// HandleSetThresholds updates the exit thresholds on a position
func (h *Handlers) HandleSetThresholds(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req thresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ledger.SetThresholds(symbol, req.TakeProfit, req.StopLoss); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleGetTrades returns the trade history
func (h *Handlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)

	var trades []domain.Trade
	var err error
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		trades, err = h.ledger.TradesForSymbol(symbol, limit)
	} else {
		trades, err = h.ledger.TradeHistory(limit)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]any, 0, len(trades))
	for _, trade := range trades {
		result = append(result, tradeJSON(trade))
	}
	h.writeJSON(w, http.StatusOK, result)
}

// tradeJSON shapes a trade for API responses
func tradeJSON(trade domain.Trade) map[string]any {
	row := map[string]any{
		"id":          trade.ID,
		"symbol":      trade.Symbol,
		"action":      trade.Action,
		"shares":      trade.Shares,
		"price":       trade.Price,
		"total":       trade.Total,
		"take_profit": trade.TakeProfit,
		"stop_loss":   trade.StopLoss,
		"executed_at": trade.ExecutedAt.Format(time.RFC3339),
	}
	if trade.ExitType != nil {
		row["exit_type"] = *trade.ExitType
	}
	return row
}

type buyRequest struct {
	Symbol     string   `json:"symbol"`
	Shares     float64  `json:"shares"`
	Price      *float64 `json:"price"` // omitted: buy at the live quote
	TakeProfit *float64 `json:"take_profit"`
	StopLoss   *float64 `json:"stop_loss"`
}

// HandleBuy opens or extends a position
func (h *Handlers) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	price, err := h.resolvePrice(r, req.Symbol, req.Price)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	trade, err := h.ledger.Buy(req.Symbol, req.Shares, price, req.TakeProfit, req.StopLoss)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, tradeJSON(*trade))
}

type sellRequest struct {
	Symbol string   `json:"symbol"`
	Shares float64  `json:"shares"`
	Price  *float64 `json:"price"`
}

// HandleSell closes all or part of a position
func (h *Handlers) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	price, err := h.resolvePrice(r, req.Symbol, req.Price)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	trade, err := h.ledger.Sell(req.Symbol, req.Shares, price)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, tradeJSON(*trade))
}

// HandleGetAlerts returns recent exit alerts plus the unread count
func (h *Handlers) HandleGetAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)

	alerts, err := h.ledger.Alerts(limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	unread, err := h.ledger.UnreadAlertCount()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]any, 0, len(alerts))
	for _, alert := range alerts {
		result = append(result, map[string]any{
			"id":                  alert.ID,
			"type":                alert.Type,
			"symbol":              alert.Symbol,
			"shares":              alert.Shares,
			"exit_price":          alert.ExitPrice,
			"target_price":        alert.TargetPrice,
			"realized_pl":         alert.RealizedPL,
			"realized_pl_percent": alert.RealizedPLPercent,
			"read":                alert.Read,
			"created_at":          alert.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"alerts":       result,
		"unread_count": unread,
	})
}

// HandleMarkAlertRead flags one alert as read
func (h *Handlers) HandleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.MarkAlertRead(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// HandleMarkAllAlertsRead flags every alert as read
func (h *Handlers) HandleMarkAllAlertsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.ledger.MarkAllAlertsRead()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

// HandleScan evaluates the watchlist and returns ranked battle plans
func (h *Handlers) HandleScan(w http.ResponseWriter, r *http.Request) {
	results, err := h.scanner.Scan(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []scanner.ScanResult{}
	}
	h.writeJSON(w, http.StatusOK, results)
}

// HandleBattlePlan evaluates a single symbol
func (h *Handlers) HandleBattlePlan(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	result, err := h.scanner.Evaluate(r.Context(), symbol)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleMarketStatus returns the current session state
func (h *Handlers) HandleMarketStatus(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	status := h.cal.Status(now)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"state":           status.State,
		"is_open":         status.State.IsOpen(),
		"next_transition": status.NextTransition.Format(time.RFC3339),
		"as_of":           now.In(h.cal.Location()).Format(time.RFC3339),
	})
}

// HandleMonitorStatus returns the position monitor state
func (h *Handlers) HandleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	status := h.monitor.Status()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"running":            status.Running,
		"session_state":      status.SessionState,
		"interval_seconds":   status.Interval.Seconds(),
		"watched_count":      status.WatchedCount,
		"last_tick":          status.LastTick.Format(time.RFC3339),
		"last_tick_ms":       status.LastTickDuration.Milliseconds(),
		"failed_fetches":     status.FailedFetches,
		"exits_settled":      status.ExitsSettled,
	})
}

// resolvePrice uses the explicit request price, or fetches the live quote
func (h *Handlers) resolvePrice(r *http.Request, symbol string, price *float64) (float64, error) {
	if price != nil {
		return *price, nil
	}
	quote, err := h.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		return 0, err
	}
	return quote.Price, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
