// Package ledger replays trade and transfer events into a weighted-average
// cost basis position.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the transaction category an event came from.
type Kind string

const (
	KindTrade   Kind = "trade"
	KindReceive Kind = "receive"
	KindSend    Kind = "send"
)

// Event is one ledger-affecting occurrence. Quantity is signed BTC
// (positive inflow, negative outflow); UnitPrice is USD per BTC and is zero
// when no price could be resolved. A zero Timestamp means unknown.
type Event struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Breakdown totals quantity per category. SentQty is reported positive.
type Breakdown struct {
	TradedQty   decimal.Decimal `json:"traded_qty"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	SentQty     decimal.Decimal `json:"sent_qty"`
}

// Summary is the position derived from an event stream at a current price.
type Summary struct {
	HoldingsQuantity decimal.Decimal `json:"holdings_quantity"`
	TotalBasisUSD    decimal.Decimal `json:"total_basis_usd"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	CurrentValueUSD  decimal.Decimal `json:"current_value_usd"`
	NetProfitUSD     decimal.Decimal `json:"net_profit_usd"`
	ProfitPercent    decimal.Decimal `json:"profit_percent"`
	Breakdown        Breakdown       `json:"breakdown"`
	Events           int             `json:"events"`
}

// Position is the running state of a replay.
type Position struct {
	Holdings decimal.Decimal
	Basis    decimal.Decimal
}

// UnitCost is basis per held unit, zero for an empty book.
func (p Position) UnitCost() decimal.Decimal {
	if !p.Holdings.IsPositive() {
		return decimal.Zero
	}
	return p.Basis.Div(p.Holdings)
}

var hundred = decimal.NewFromInt(100)

// Order returns the events with non-zero quantity in replay order: ascending
// timestamp (unknown sorts as epoch zero), ties by descending quantity so
// inflows land before outflows at the same instant. The input is not modified.
func Order(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Quantity.IsZero() {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := sortKey(out[i].Timestamp), sortKey(out[j].Timestamp)
		if ki != kj {
			return ki < kj
		}
		return out[i].Quantity.GreaterThan(out[j].Quantity)
	})
	return out
}

func sortKey(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixMilli()
}

// Apply replays a single event onto pos.
func (p Position) Apply(ev Event) Position {
	q := ev.Quantity
	if q.IsPositive() {
		p.Holdings = p.Holdings.Add(q)
		p.Basis = p.Basis.Add(ev.UnitPrice.Mul(q))
		return p
	}

	out := q.Abs()
	if !p.Holdings.IsPositive() || !p.Basis.IsPositive() {
		// Nothing to reduce proportionally; charge the outflow at its own
		// valuation and keep the book non-negative.
		p.Holdings = floorZero(p.Holdings.Sub(out))
		p.Basis = floorZero(p.Basis.Sub(ev.UnitPrice.Mul(out)))
		return p
	}

	if out.GreaterThanOrEqual(p.Holdings) {
		p.Holdings = decimal.Zero
		p.Basis = decimal.Zero
		return p
	}
	proportion := out.Div(p.Holdings)
	p.Basis = floorZero(p.Basis.Sub(p.Basis.Mul(proportion)))
	p.Holdings = p.Holdings.Sub(out)
	return p
}

// Replay runs the ordered event stream from an empty book.
func Replay(events []Event) Position {
	var pos Position
	for _, ev := range Order(events) {
		pos = pos.Apply(ev)
	}
	return pos
}

// ComputeSummary replays events and values the remaining holdings at
// currentPrice.
func ComputeSummary(currentPrice decimal.Decimal, events []Event) Summary {
	ordered := Order(events)

	var pos Position
	var bd Breakdown
	for _, ev := range ordered {
		pos = pos.Apply(ev)
		switch ev.Kind {
		case KindTrade:
			bd.TradedQty = bd.TradedQty.Add(ev.Quantity)
		case KindReceive:
			bd.ReceivedQty = bd.ReceivedQty.Add(ev.Quantity)
		case KindSend:
			bd.SentQty = bd.SentQty.Add(ev.Quantity.Abs())
		}
	}

	value := pos.Holdings.Mul(currentPrice)
	profit := value.Sub(pos.Basis)
	percent := decimal.Zero
	if pos.Basis.IsPositive() {
		percent = profit.Div(pos.Basis).Mul(hundred)
	}

	return Summary{
		HoldingsQuantity: pos.Holdings,
		TotalBasisUSD:    pos.Basis,
		CurrentPrice:     currentPrice,
		CurrentValueUSD:  value,
		NetProfitUSD:     profit,
		ProfitPercent:    percent,
		Breakdown:        bd,
		Events:           len(ordered),
	}
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
