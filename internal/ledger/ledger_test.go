package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func assertDec(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s = %s; want %s", name, got, want)
	}
}

func TestSingleTradeScenario(t *testing.T) {
	s := ComputeSummary(d("50000"), []Event{
		{Kind: KindTrade, Timestamp: at(0), Quantity: d("1.0"), UnitPrice: d("30000")},
	})
	assertDec(t, "holdings", s.HoldingsQuantity, d("1"))
	assertDec(t, "basis", s.TotalBasisUSD, d("30000"))
	assertDec(t, "value", s.CurrentValueUSD, d("50000"))
	assertDec(t, "profit", s.NetProfitUSD, d("20000"))
	assertDec(t, "percent", s.ProfitPercent.Round(2), d("66.67"))
	if s.Events != 1 {
		t.Fatalf("events = %d; want 1", s.Events)
	}
}

func TestPartialSendRemovesProportionalBasis(t *testing.T) {
	s := ComputeSummary(d("40000"), []Event{
		{Kind: KindTrade, Timestamp: at(0), Quantity: d("2.0"), UnitPrice: d("10000")},
		{Kind: KindSend, Timestamp: at(5), Quantity: d("-1.0"), UnitPrice: d("99999")},
	})
	assertDec(t, "holdings", s.HoldingsQuantity, d("1"))
	assertDec(t, "basis", s.TotalBasisUSD, d("10000"))
	assertDec(t, "sent", s.Breakdown.SentQty, d("1"))
	assertDec(t, "traded", s.Breakdown.TradedQty, d("2"))
}

func TestAllInflowsSumExactly(t *testing.T) {
	events := []Event{
		{Kind: KindTrade, Timestamp: at(3), Quantity: d("0.25"), UnitPrice: d("41000")},
		{Kind: KindReceive, Timestamp: at(1), Quantity: d("0.1"), UnitPrice: d("39000.5")},
		{Kind: KindTrade, Quantity: d("0.05"), UnitPrice: d("20000")},
	}
	pos := Replay(events)
	assertDec(t, "holdings", pos.Holdings, d("0.4"))
	// 10250 + 3900.05 + 1000
	assertDec(t, "basis", pos.Basis, d("15150.05"))
}

func TestFullDisposalZeroesBook(t *testing.T) {
	pos := Replay([]Event{
		{Kind: KindTrade, Timestamp: at(0), Quantity: d("0.3"), UnitPrice: d("31000")},
		{Kind: KindTrade, Timestamp: at(1), Quantity: d("0.4"), UnitPrice: d("33000")},
		{Kind: KindSend, Timestamp: at(2), Quantity: d("-0.7"), UnitPrice: d("35000")},
	})
	assertDec(t, "holdings", pos.Holdings, decimal.Zero)
	assertDec(t, "basis", pos.Basis, decimal.Zero)
}

func TestHalfDisposalKeepsUnitCost(t *testing.T) {
	before := Replay([]Event{
		{Kind: KindTrade, Timestamp: at(0), Quantity: d("1.5"), UnitPrice: d("20000")},
		{Kind: KindTrade, Timestamp: at(1), Quantity: d("0.5"), UnitPrice: d("28000")},
	})
	after := before.Apply(Event{Kind: KindSend, Timestamp: at(2), Quantity: d("-1.0")})
	assertDec(t, "holdings", after.Holdings, before.Holdings.Div(d("2")))
	assertDec(t, "basis", after.Basis, before.Basis.Div(d("2")))
	assertDec(t, "unit cost", after.UnitCost(), before.UnitCost())
}

func TestSameTimestampInflowBeforeOutflow(t *testing.T) {
	ordered := Order([]Event{
		{Kind: KindSend, Timestamp: at(0), Quantity: d("-0.5"), UnitPrice: d("30000")},
		{Kind: KindReceive, Timestamp: at(0), Quantity: d("0.5"), UnitPrice: d("30000")},
	})
	if ordered[0].Kind != KindReceive {
		t.Fatalf("first event = %s; want receive", ordered[0].Kind)
	}

	var pos Position
	for _, ev := range ordered {
		if ev.Quantity.IsNegative() && !pos.Holdings.IsPositive() {
			t.Fatalf("outflow replayed against empty book")
		}
		pos = pos.Apply(ev)
	}
	assertDec(t, "holdings", pos.Holdings, decimal.Zero)
	assertDec(t, "basis", pos.Basis, decimal.Zero)
}

func TestOrderDropsZeroAndSortsMissingTimestampFirst(t *testing.T) {
	ordered := Order([]Event{
		{Kind: KindTrade, Timestamp: at(10), Quantity: d("1")},
		{Kind: KindTrade, Timestamp: at(5), Quantity: d("0")},
		{Kind: KindReceive, Quantity: d("2")},
	})
	if len(ordered) != 2 {
		t.Fatalf("len = %d; want 2", len(ordered))
	}
	if !ordered[0].Timestamp.IsZero() {
		t.Fatalf("first event timestamp = %v; want zero", ordered[0].Timestamp)
	}
}

func TestOutflowOnEmptyBookFloorsAtZero(t *testing.T) {
	pos := Replay([]Event{
		{Kind: KindSend, Timestamp: at(0), Quantity: d("-1"), UnitPrice: d("30000")},
		{Kind: KindTrade, Timestamp: at(1), Quantity: d("0.5"), UnitPrice: d("30000")},
	})
	assertDec(t, "holdings", pos.Holdings, d("0.5"))
	assertDec(t, "basis", pos.Basis, d("15000"))
}

func TestOutflowWithZeroBasisSubtractsQuantity(t *testing.T) {
	// Unresolved inflow: quantity held at zero basis.
	pos := Replay([]Event{
		{Kind: KindTrade, Timestamp: at(0), Quantity: d("1")},
		{Kind: KindSend, Timestamp: at(1), Quantity: d("-0.4"), UnitPrice: d("30000")},
	})
	assertDec(t, "holdings", pos.Holdings, d("0.6"))
	assertDec(t, "basis", pos.Basis, decimal.Zero)
}

func TestOverDisposalFloorsAtZero(t *testing.T) {
	pos := Replay([]Event{
		{Kind: KindTrade, Timestamp: at(0), Quantity: d("1"), UnitPrice: d("10000")},
		{Kind: KindSend, Timestamp: at(1), Quantity: d("-3"), UnitPrice: d("10000")},
	})
	assertDec(t, "holdings", pos.Holdings, decimal.Zero)
	assertDec(t, "basis", pos.Basis, decimal.Zero)
}

func TestZeroBasisPercentIsZero(t *testing.T) {
	s := ComputeSummary(d("50000"), []Event{{Kind: KindReceive, Timestamp: at(0), Quantity: d("1")}})
	assertDec(t, "percent", s.ProfitPercent, decimal.Zero)
	assertDec(t, "profit", s.NetProfitUSD, d("50000"))
}

func TestEmptyStream(t *testing.T) {
	s := ComputeSummary(d("50000"), nil)
	assertDec(t, "holdings", s.HoldingsQuantity, decimal.Zero)
	assertDec(t, "value", s.CurrentValueUSD, decimal.Zero)
	if s.Events != 0 {
		t.Fatalf("events = %d; want 0", s.Events)
	}
}

func TestRandomStreamsNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	kinds := []Kind{KindTrade, KindReceive, KindSend}
	for run := 0; run < 200; run++ {
		var events []Event
		for i := 0; i < 30; i++ {
			kind := kinds[rng.Intn(len(kinds))]
			qty := decimal.NewFromInt(int64(rng.Intn(2000) + 1)).Shift(-3)
			if kind == KindSend || rng.Intn(4) == 0 {
				qty = qty.Neg()
			}
			var ts time.Time
			if rng.Intn(10) > 0 {
				ts = at(rng.Intn(20))
			}
			events = append(events, Event{
				Kind:      kind,
				Timestamp: ts,
				Quantity:  qty,
				UnitPrice: decimal.NewFromInt(int64(rng.Intn(60000))),
			})
		}
		var pos Position
		for _, ev := range Order(events) {
			pos = pos.Apply(ev)
			if pos.Holdings.IsNegative() || pos.Basis.IsNegative() {
				t.Fatalf("run %d: negative book %s / %s after %+v", run, pos.Holdings, pos.Basis, ev)
			}
		}
	}
}
