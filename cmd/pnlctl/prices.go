package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/dgnsrekt/pnl_agent/internal/config"
	"github.com/dgnsrekt/pnl_agent/internal/extract"
	"github.com/dgnsrekt/pnl_agent/internal/present"
	"github.com/dgnsrekt/pnl_agent/internal/pricing"
)

type priceCmd struct {
	at string
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "look up the historical BTC price at a time" }
func (*priceCmd) Usage() string {
	return `pnlctl price -at <time>

  Resolves the one-minute candle nearest the given time. Accepts RFC 3339,
  epoch seconds or milliseconds, and the date formats shown on the history page.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.at, "at", "", "Time to price")
}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	ts, ok := extract.ParseTime(c.at, c.at)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: cannot parse -at %q\n", c.at)
		return subcommands.ExitUsageError
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	client := &http.Client{Timeout: cfg.HTTPTimeout}
	resolver := pricing.NewResolver(pricing.NewCandleProvider(client, cfg.CandlesURL))
	price, ok := resolver.ResolvePrice(ctx, ts)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: no price found near %s\n", ts.Format(time.RFC3339))
		return subcommands.ExitFailure
	}
	fmt.Printf("%s\t%s\n", ts.Format(time.RFC3339), present.USD(price))
	return subcommands.ExitSuccess
}

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "fetch the current BTC price" }
func (*quoteCmd) Usage() string {
	return `pnlctl quote

  Asks the price broker for the current BTC-USD price.
`
}

func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	broker := pricing.NewBroker(pricing.NewCurrentProvider(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.QuoteURL, cfg.QuotePath))
	price, ok := broker.Handle(ctx, pricing.Request{Type: pricing.MsgGetBTCPrice}).Decimal()
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: current price unavailable")
		return subcommands.ExitFailure
	}
	fmt.Println(present.USD(price))
	return subcommands.ExitSuccess
}
