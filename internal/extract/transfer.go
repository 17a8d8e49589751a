package extract

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/dom"
	"github.com/dgnsrekt/pnl_agent/internal/ledger"
)

// TransferRow is one accepted receive or send row.
type TransferRow struct {
	Index     int             `json:"index"`
	Completed time.Time       `json:"completed,omitzero"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Net       decimal.Decimal `json:"net"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Source    PriceSource     `json:"source"`
	ValueUSD  decimal.Decimal `json:"value_usd"`
}

type TransferResult struct {
	Direction Direction      `json:"direction"`
	Rows      []TransferRow  `json:"rows"`
	Events    []ledger.Event `json:"events"`
}

// Transfers reads a receive or send table. Sends move amount plus fee out of
// the wallet; receives bring in the amount. Zero rows are skipped. The unit
// price is the historical price at completion, else current.
func (e *Extractor) Transfers(ctx context.Context, table dom.Table, dir Direction, current decimal.Decimal) TransferResult {
	idx := TransferColumns(table.Headers, e.profile.Transfer)
	res := TransferResult{Direction: dir}
	kind := ledger.KindReceive
	if dir == Send {
		kind = ledger.KindSend
	}
	for _, row := range table.Rows {
		amount := ParseQuantity(row.Cell(idx.Amount).Text).Abs()
		net := amount
		var fee decimal.Decimal
		if dir == Send {
			fee = ParseQuantity(row.Cell(idx.Fee).Text).Abs()
			net = amount.Add(fee)
		}
		if net.IsZero() {
			continue
		}
		cell := row.Cell(idx.Completed)
		ts, tsOK := ParseTime(cell.Time, cell.Text)

		unit, source := current, SourceCurrent
		if p, ok := e.historical(ctx, ts, tsOK); ok {
			unit, source = p, SourceHistorical
		}

		tr := TransferRow{
			Index:     row.Index,
			Amount:    amount,
			Fee:       fee,
			Net:       net,
			UnitPrice: unit,
			Source:    source,
			ValueUSD:  unit.Mul(net),
		}
		if tsOK {
			tr.Completed = ts
		}
		qty := net
		if dir == Send {
			qty = net.Neg()
		}
		res.Rows = append(res.Rows, tr)
		res.Events = append(res.Events, ledger.Event{
			Kind:      kind,
			Timestamp: tr.Completed,
			Quantity:  qty,
			UnitPrice: unit,
		})
	}
	e.logger.Debug("extract transfers", "tab", table.Tab, "direction", dir, "rows", len(table.Rows), "accepted", len(res.Rows))
	return res
}
