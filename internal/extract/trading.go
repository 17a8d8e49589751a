package extract

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/dom"
	"github.com/dgnsrekt/pnl_agent/internal/ledger"
)

// TradeRow is one accepted trading row with its figures at the current price.
type TradeRow struct {
	Index         int             `json:"index"`
	Completed     time.Time       `json:"completed,omitzero"`
	SoldUSD       decimal.Decimal `json:"sold_usd"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Source        PriceSource     `json:"source"`
	Cost          decimal.Decimal `json:"cost"`
	Value         decimal.Decimal `json:"value"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
}

type TradeResult struct {
	Rows   []TradeRow     `json:"rows"`
	Events []ledger.Event `json:"events"`
}

var hundred = decimal.NewFromInt(100)

// Trades reads BTC purchases from the trading table. Rows with no positive
// bought quantity are skipped. The unit price is the sold/bought ratio when
// positive, else the historical price at completion, else unresolved (zero).
func (e *Extractor) Trades(ctx context.Context, table dom.Table, current decimal.Decimal) TradeResult {
	idx := TradingColumns(table.Headers, e.profile.Trading)
	var res TradeResult
	for _, row := range table.Rows {
		bought := ParseQuantity(row.Cell(idx.Bought).Text)
		if !bought.IsPositive() {
			continue
		}
		sold := ParseCurrency(row.Cell(idx.Sold).Text).Abs()
		cell := row.Cell(idx.Completed)
		ts, tsOK := ParseTime(cell.Time, cell.Text)

		unit, source := decimal.Zero, SourceUnresolved
		if ratio := sold.Div(bought); ratio.IsPositive() {
			unit, source = ratio, SourceRatio
		} else if p, ok := e.historical(ctx, ts, tsOK); ok {
			unit, source = p, SourceHistorical
		}
		if source == SourceUnresolved {
			e.logger.Warn("extract trade price unresolved", "row", row.Index, "completed", cell.Text)
		}

		cost := unit.Mul(bought)
		value := current.Mul(bought)
		tr := TradeRow{
			Index:     row.Index,
			SoldUSD:   sold,
			Quantity:  bought,
			UnitPrice: unit,
			Source:    source,
			Cost:      cost,
			Value:     value,
			Profit:    value.Sub(cost),
		}
		if tsOK {
			tr.Completed = ts
		}
		if cost.IsPositive() {
			tr.ProfitPercent = tr.Profit.Div(cost).Mul(hundred)
		}
		res.Rows = append(res.Rows, tr)
		res.Events = append(res.Events, ledger.Event{
			Kind:      ledger.KindTrade,
			Timestamp: tr.Completed,
			Quantity:  bought,
			UnitPrice: unit,
		})
	}
	e.logger.Debug("extract trades", "tab", table.Tab, "rows", len(table.Rows), "accepted", len(res.Rows))
	return res
}
