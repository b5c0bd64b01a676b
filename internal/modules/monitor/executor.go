package monitor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/domain"
)

// Settler settles a threshold exit atomically in the ledger
type Settler interface {
	SettleExit(symbol string, exitType domain.ExitType, exitPrice, targetPrice float64) (*domain.Trade, *domain.Alert, error)
}

// Crossing is a detected threshold breach, ready to settle
type Crossing struct {
	Symbol      string
	Type        domain.ExitType
	ExitPrice   float64 // fill price for the settlement
	TargetPrice float64 // the threshold that triggered
}

// DetectLive checks a live price against a holding's thresholds.
// Take-profit wins when the price crosses both: with a live price the upside
// exit is the one actually available. The fill is booked at the live price.
func DetectLive(h domain.Holding, price float64) *Crossing {
	if h.TakeProfit != nil && price >= *h.TakeProfit {
		return &Crossing{
			Symbol:      h.Symbol,
			Type:        domain.ExitTakeProfit,
			ExitPrice:   price,
			TargetPrice: *h.TakeProfit,
		}
	}
	if h.StopLoss != nil && price <= *h.StopLoss {
		return &Crossing{
			Symbol:      h.Symbol,
			Type:        domain.ExitStopLoss,
			ExitPrice:   price,
			TargetPrice: *h.StopLoss,
		}
	}
	return nil
}

// DetectRetroactive checks a day's high/low range against the thresholds for
// a session the monitor did not watch live. Stop-loss wins when the range
// covers both: without intraday ordering the conservative assumption is that
// the loss came first. The fill is booked at the threshold itself.
func DetectRetroactive(h domain.Holding, dayHigh, dayLow float64) *Crossing {
	if h.StopLoss != nil && dayLow > 0 && dayLow <= *h.StopLoss {
		return &Crossing{
			Symbol:      h.Symbol,
			Type:        domain.ExitStopLoss,
			ExitPrice:   *h.StopLoss,
			TargetPrice: *h.StopLoss,
		}
	}
	if h.TakeProfit != nil && dayHigh >= *h.TakeProfit {
		return &Crossing{
			Symbol:      h.Symbol,
			Type:        domain.ExitTakeProfit,
			ExitPrice:   *h.TakeProfit,
			TargetPrice: *h.TakeProfit,
		}
	}
	return nil
}

// ExitExecutor serializes exit settlements. Detection fans out per symbol,
// but every settlement passes through here one at a time.
type ExitExecutor struct {
	mu      sync.Mutex
	settler Settler
	log     zerolog.Logger
}

// NewExitExecutor creates an exit executor
func NewExitExecutor(settler Settler, log zerolog.Logger) *ExitExecutor {
	return &ExitExecutor{
		settler: settler,
		log:     log.With().Str("component", "exit_executor").Logger(),
	}
}

// Execute settles one crossing. Errors are returned, not retried: the next
// tick re-detects any crossing that failed to settle.
func (e *ExitExecutor) Execute(c Crossing) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	trade, alert, err := e.settler.SettleExit(c.Symbol, c.Type, c.ExitPrice, c.TargetPrice)
	if err != nil {
		e.log.Error().
			Err(err).
			Str("symbol", c.Symbol).
			Str("exit_type", string(c.Type)).
			Msg("Exit settlement failed")
		return err
	}

	e.log.Info().
		Str("symbol", c.Symbol).
		Str("exit_type", string(c.Type)).
		Float64("exit_price", c.ExitPrice).
		Float64("shares", trade.Shares).
		Float64("realized_pl", alert.RealizedPL).
		Msg("Position closed by threshold")
	return nil
}
