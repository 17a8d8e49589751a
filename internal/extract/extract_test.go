package extract

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/dom"
	"github.com/dgnsrekt/pnl_agent/internal/layout"
	"github.com/dgnsrekt/pnl_agent/internal/ledger"
)

type fixedPricer struct {
	prices map[int64]decimal.Decimal
	calls  int
}

func (f *fixedPricer) ResolvePrice(ctx context.Context, ts time.Time) (decimal.Decimal, bool) {
	f.calls++
	p, ok := f.prices[ts.Unix()]
	return p, ok
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestExtractor(p HistoricalPricer) *Extractor {
	return New(p, layout.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func row(i int, cells ...dom.Cell) dom.Row { return dom.Row{Index: i, Cells: cells} }

func text(s string) dom.Cell { return dom.Cell{Text: s} }

func TestTradesPricePriority(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	pricer := &fixedPricer{prices: map[int64]decimal.Decimal{at.Unix(): d("50000")}}
	table := dom.Table{
		Tab:     "Trading",
		Headers: []string{"Type", "Sold", "Bought", "Status", "Completed"},
		Rows: []dom.Row{
			row(0, text("Buy"), text("$300.00"), text("₿0.01"), text("ok"), dom.Cell{Text: "Mar 1", Time: at.Format(time.RFC3339)}),
			row(1, text("Buy"), text("—"), text("₿0.02"), text("ok"), dom.Cell{Time: at.Format(time.RFC3339)}),
			row(2, text("Buy"), text(""), text("₿0.03"), text("ok"), text("whenever")),
			row(3, text("Sell"), text("$10"), text("0"), text("ok"), text("")),
		},
	}
	res := newTestExtractor(pricer).Trades(context.Background(), table, d("40000"))

	if len(res.Rows) != 3 || len(res.Events) != 3 {
		t.Fatalf("rows = %d events = %d; want 3 each", len(res.Rows), len(res.Events))
	}
	wantSources := []PriceSource{SourceRatio, SourceHistorical, SourceUnresolved}
	wantPrices := []string{"30000", "50000", "0"}
	for i, r := range res.Rows {
		if r.Source != wantSources[i] || !r.UnitPrice.Equal(d(wantPrices[i])) {
			t.Errorf("row %d = %s@%s; want %s@%s", i, r.Source, r.UnitPrice, wantSources[i], wantPrices[i])
		}
	}
	// 0.01 bought at 30000, now 40000: +100 on 300.
	if !res.Rows[0].Profit.Equal(d("100")) || res.Rows[0].ProfitPercent.StringFixed(2) != "33.33" {
		t.Fatalf("row 0 profit = %s (%s%%)", res.Rows[0].Profit, res.Rows[0].ProfitPercent)
	}
	if !res.Rows[2].ProfitPercent.IsZero() {
		t.Fatalf("unresolved percent = %s; want 0", res.Rows[2].ProfitPercent)
	}
	if !res.Events[2].Timestamp.IsZero() {
		t.Fatalf("unparsed time should give zero timestamp, got %v", res.Events[2].Timestamp)
	}
	if pricer.calls != 1 {
		t.Fatalf("historical lookups = %d; want 1", pricer.calls)
	}
	if res.Events[0].Kind != ledger.KindTrade || !res.Events[0].Quantity.Equal(d("0.01")) {
		t.Fatalf("event 0 = %+v", res.Events[0])
	}
}

func TestTradesFallbackColumnsWithoutHeaders(t *testing.T) {
	table := dom.Table{Rows: []dom.Row{
		row(0, text("Buy"), text("$500"), text("0.01 BTC"), text(""), text("2024-03-01 10:00:00")),
	}}
	res := newTestExtractor(nil).Trades(context.Background(), table, d("60000"))
	if len(res.Rows) != 1 || !res.Rows[0].UnitPrice.Equal(d("50000")) {
		t.Fatalf("rows = %+v", res.Rows)
	}
	if res.Rows[0].Completed.IsZero() {
		t.Fatal("completed time not parsed from fallback column")
	}
}

func TestTransfersSendAddsFee(t *testing.T) {
	at := time.Date(2024, 4, 2, 8, 30, 0, 0, time.UTC)
	pricer := &fixedPricer{prices: map[int64]decimal.Decimal{at.Unix(): d("65000")}}
	table := dom.Table{
		Tab:     "Send",
		Headers: []string{"To", "Amount", "Network fee", "Status", "Completed"},
		Rows: []dom.Row{
			row(0, text("bc1..."), text("-0.1 BTC"), text("0.0001 BTC"), text("ok"), dom.Cell{Time: at.Format(time.RFC3339)}),
			row(1, text("bc1..."), text("0"), text("0"), text("ok"), text("")),
			row(2, text("bc1..."), text("0.2"), text(""), text("ok"), text("bad date")),
		},
	}
	res := newTestExtractor(pricer).Transfers(context.Background(), table, Send, d("70000"))
	if len(res.Events) != 2 {
		t.Fatalf("events = %d; want 2", len(res.Events))
	}
	if !res.Events[0].Quantity.Equal(d("-0.1001")) || res.Events[0].Kind != ledger.KindSend {
		t.Fatalf("event 0 = %+v", res.Events[0])
	}
	if res.Rows[0].Source != SourceHistorical || !res.Rows[0].UnitPrice.Equal(d("65000")) {
		t.Fatalf("row 0 price = %s@%s", res.Rows[0].Source, res.Rows[0].UnitPrice)
	}
	if res.Rows[1].Source != SourceCurrent || !res.Rows[1].UnitPrice.Equal(d("70000")) {
		t.Fatalf("row 1 price = %s@%s; want current", res.Rows[1].Source, res.Rows[1].UnitPrice)
	}
}

func TestTransfersReceiveIgnoresFee(t *testing.T) {
	table := dom.Table{
		Tab:     "Receive",
		Headers: []string{"From", "Amount", "Fee", "Status", "Completed"},
		Rows:    []dom.Row{row(0, text("x"), text("0.5"), text("0.01"), text(""), text(""))},
	}
	res := newTestExtractor(nil).Transfers(context.Background(), table, Receive, d("100"))
	if len(res.Events) != 1 || !res.Events[0].Quantity.Equal(d("0.5")) || res.Events[0].Kind != ledger.KindReceive {
		t.Fatalf("events = %+v", res.Events)
	}
	if !res.Rows[0].ValueUSD.Equal(d("50")) {
		t.Fatalf("value = %s; want 50", res.Rows[0].ValueUSD)
	}
}
