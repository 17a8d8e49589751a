package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/journal"
	"github.com/dgnsrekt/pnl_agent/internal/ledger"
	"github.com/dgnsrekt/pnl_agent/internal/present"
)

type replayCmd struct {
	in    string
	id    string
	price string
}

func (*replayCmd) Name() string     { return "replay" }
func (*replayCmd) Synopsis() string { return "recompute a journaled cycle's summary" }
func (*replayCmd) Usage() string {
	return `pnlctl replay -in <cycles.jsonl> [-id <cycle id>] [-price <usd>]

  Replays the events of one journaled cycle through the ledger and prints
  the summary next to the one recorded at the time. Without -id the last
  cycle in the file is used. -price revalues the position at another price.
`
}

func (c *replayCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.in, "in", "", "Journal file to read")
	f.StringVar(&c.id, "id", "", "Cycle id (defaults to the last cycle)")
	f.StringVar(&c.price, "price", "", "Current BTC price override in USD")
}

func (c *replayCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.in == "" {
		fmt.Fprintln(os.Stderr, "Error: -in is required")
		return subcommands.ExitUsageError
	}
	records, err := journal.ReadFile(c.in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	rec, ok := journal.Find(records, c.id)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: cycle %q not found in %s\n", c.id, c.in)
		return subcommands.ExitFailure
	}

	price := rec.Price
	if c.price != "" {
		price, err = decimal.NewFromString(c.price)
		if err != nil || !price.IsPositive() {
			fmt.Fprintf(os.Stderr, "Error: invalid -price %q\n", c.price)
			return subcommands.ExitUsageError
		}
	}
	if !price.IsPositive() {
		fmt.Fprintln(os.Stderr, "Error: cycle has no recorded price, pass -price")
		return subcommands.ExitUsageError
	}

	printMarkdown(replayMarkdown(rec, ledger.ComputeSummary(price, rec.Events)))
	return subcommands.ExitSuccess
}

func replayMarkdown(rec journal.Record, s ledger.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Cycle %s\n\n", rec.ID)
	fmt.Fprintf(&b, "Started %s, outcome **%s**.\n\n", rec.StartedAt.UTC().Format(time.RFC3339), rec.Outcome)

	b.WriteString("| | Replayed | Recorded |\n|---|---:|---:|\n")
	row := func(label, now, then string) {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", label, now, then)
	}
	row("Price", present.USD(s.CurrentPrice), present.USD(rec.Summary.CurrentPrice))
	row("Holdings", present.BTC(s.HoldingsQuantity), present.BTC(rec.Summary.HoldingsQuantity))
	row("Cost basis", present.USD(s.TotalBasisUSD), present.USD(rec.Summary.TotalBasisUSD))
	row("Value", present.USD(s.CurrentValueUSD), present.USD(rec.Summary.CurrentValueUSD))
	row("Net P&L", present.SignedUSD(s.NetProfitUSD), present.SignedUSD(rec.Summary.NetProfitUSD))
	row("Return", present.Percent(s.ProfitPercent), present.Percent(rec.Summary.ProfitPercent))
	row("Traded", present.BTC(s.Breakdown.TradedQty), present.BTC(rec.Summary.Breakdown.TradedQty))
	row("Received", present.BTC(s.Breakdown.ReceivedQty), present.BTC(rec.Summary.Breakdown.ReceivedQty))
	row("Sent", present.BTC(s.Breakdown.SentQty), present.BTC(rec.Summary.Breakdown.SentQty))

	if len(rec.Events) == 0 {
		return b.String()
	}
	b.WriteString("\n## Events\n\n| # | Kind | Completed | Quantity | Unit price |\n|---:|---|---|---:|---:|\n")
	for i, ev := range ledger.Order(rec.Events) {
		when := "unknown"
		if !ev.Timestamp.IsZero() {
			when = ev.Timestamp.UTC().Format("2006-01-02 15:04")
		}
		unit := "unpriced"
		if ev.UnitPrice.IsPositive() {
			unit = present.USD(ev.UnitPrice)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", i+1, ev.Kind, when, present.BTC(ev.Quantity), unit)
	}
	return b.String()
}
