package main

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/journal"
	"github.com/dgnsrekt/pnl_agent/internal/ledger"
)

func TestReplayMarkdown(t *testing.T) {
	events := []ledger.Event{
		{Kind: ledger.KindTrade, Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("10000")},
		{Kind: ledger.KindReceive, Quantity: decimal.RequireFromString("0.5")},
	}
	rec := journal.Record{
		ID:        "cycle-1",
		StartedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Price:     decimal.RequireFromString("20000"),
		Events:    events,
		Outcome:   "rendered",
	}
	rec.Summary = ledger.ComputeSummary(rec.Price, events)

	md := replayMarkdown(rec, ledger.ComputeSummary(decimal.RequireFromString("30000"), events))

	for _, want := range []string{"# Cycle cycle-1", "**rendered**", "| Holdings |", "## Events", "unknown", "unpriced", "$10,000.00"} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
	if got := strings.Count(md, "\n| ") - 11; got != 2 {
		t.Errorf("event rows = %d, want 2", got)
	}
}

func TestReplayMarkdownWithoutEvents(t *testing.T) {
	rec := journal.Record{ID: "empty", Outcome: "skipped"}
	md := replayMarkdown(rec, ledger.ComputeSummary(decimal.RequireFromString("1"), nil))
	if strings.Contains(md, "## Events") {
		t.Fatalf("unexpected events section:\n%s", md)
	}
}
