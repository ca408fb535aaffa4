// Package broker implements the paper-trading ledger: cash, open positions,
// the trade log, and mark-to-market account snapshots.
package broker

import (
	"sort"
	"time"

	"traderbot/internal/domain"
	"traderbot/internal/util"
)

// PaperBroker is a simple paper-trading ledger. It executes buys and full
// liquidations against quoted prices adjusted by slippage, charges fees in
// basis points, and appends an account snapshot per mark-to-market call.
//
// The ledger deliberately performs no bounds checking on cash: buying past
// the available balance drives cash negative rather than failing. Keeping
// that behaviour is part of the model, not a bug.
//
// A PaperBroker is created fresh per simulation run and is single-writer;
// it must not be shared across concurrent runs.
type PaperBroker struct {
	cash        float64
	feeBps      float64
	slippageBps float64
	positions   map[string]*domain.Position
	trades      []domain.Trade
	snapshots   []domain.AccountSnapshot
}

// NewPaperBroker creates a ledger with the given starting cash balance and
// fee/slippage rates in basis points.
func NewPaperBroker(startingBalance, feeBps, slippageBps float64) *PaperBroker {
	return &PaperBroker{
		cash:        startingBalance,
		feeBps:      feeBps,
		slippageBps: slippageBps,
		positions:   make(map[string]*domain.Position),
	}
}

// ---------------------------------------------------------------------------
// Trading
// ---------------------------------------------------------------------------

// Buy spends pctOfCash of the current cash balance on the symbol at the
// quoted price. The execution price is adjusted adversely by the configured
// slippage, and the fee is charged on the slipped cost. A repeated buy into
// an open position blends into the existing lot with a quantity-weighted
// average price; it never opens a second lot.
func (b *PaperBroker) Buy(ts time.Time, symbol string, price, pctOfCash float64) {
	notional := b.cash * pctOfCash
	execPrice := util.ApplySlippage(price, b.slippageBps, domain.TradeSideBuy)
	qty := notional / execPrice
	cost := qty * execPrice
	fee := cost * b.feeBps / 10000
	b.cash -= cost + fee

	pos, ok := b.positions[symbol]
	if !ok {
		pos = &domain.Position{Symbol: symbol}
		b.positions[symbol] = pos
	}
	totalQty := pos.Qty + qty
	if totalQty != 0 {
		pos.AvgPrice = (pos.Qty*pos.AvgPrice + qty*execPrice) / totalQty
	}
	pos.Qty = totalQty

	b.trades = append(b.trades, domain.Trade{
		Timestamp: ts,
		Symbol:    symbol,
		Side:      domain.TradeSideBuy,
		Qty:       qty,
		Price:     execPrice,
		Fee:       fee,
	})
}

// Liquidate closes the symbol's entire position at the quoted price, with
// slippage against the seller and a fee on the proceeds. It is a no-op when
// no quantity is held.
func (b *PaperBroker) Liquidate(ts time.Time, symbol string, price float64) {
	pos, ok := b.positions[symbol]
	if !ok || pos.Qty <= 0 {
		return
	}
	qty := pos.Qty
	execPrice := util.ApplySlippage(price, b.slippageBps, domain.TradeSideSell)
	proceeds := qty * execPrice
	fee := proceeds * b.feeBps / 10000
	b.cash += proceeds - fee
	pos.Qty = 0

	b.trades = append(b.trades, domain.Trade{
		Timestamp: ts,
		Symbol:    symbol,
		Side:      domain.TradeSideSell,
		Qty:       qty,
		Price:     execPrice,
		Fee:       fee,
	})
}

// ---------------------------------------------------------------------------
// Accounting
// ---------------------------------------------------------------------------

// MarkToMarket values all held positions at the given prices and appends an
// account snapshot. A symbol missing from prices contributes zero. It must be
// called once per simulated timestamp, whether or not any trade occurred.
func (b *PaperBroker) MarkToMarket(ts time.Time, prices map[string]float64) {
	positionsValue := 0.0
	for sym, pos := range b.positions {
		positionsValue += pos.Qty * prices[sym]
	}
	b.snapshots = append(b.snapshots, domain.AccountSnapshot{
		Timestamp:      ts,
		Equity:         b.cash + positionsValue,
		Cash:           b.cash,
		PositionsValue: positionsValue,
	})
}

// Cash returns the current cash balance.
func (b *PaperBroker) Cash() float64 {
	return b.cash
}

// Position returns a copy of the symbol's position. The zero value is
// returned when the symbol has never been bought.
func (b *PaperBroker) Position(symbol string) domain.Position {
	if pos, ok := b.positions[symbol]; ok {
		return *pos
	}
	return domain.Position{Symbol: symbol}
}

// Positions returns copies of all open positions, sorted by symbol.
func (b *PaperBroker) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		if pos.Qty > 0 {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns the append-only trade log.
func (b *PaperBroker) Trades() []domain.Trade {
	return b.trades
}

// Snapshots returns the append-only account snapshot log.
func (b *PaperBroker) Snapshots() []domain.AccountSnapshot {
	return b.snapshots
}
