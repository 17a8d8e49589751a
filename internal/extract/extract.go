// Package extract turns scraped history tables into ledger events and the
// per-row figures shown next to them.
package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/layout"
)

// PriceSource records where a row's unit price came from.
type PriceSource string

const (
	SourceRatio      PriceSource = "ratio"
	SourceHistorical PriceSource = "historical"
	SourceCurrent    PriceSource = "current"
	SourceUnresolved PriceSource = "unresolved"
)

// HistoricalPricer resolves the BTC price near a timestamp.
type HistoricalPricer interface {
	ResolvePrice(ctx context.Context, ts time.Time) (decimal.Decimal, bool)
}

// Direction selects which transfer table is being read.
type Direction string

const (
	Receive Direction = "receive"
	Send    Direction = "send"
)

// Extractor reads trading and transfer tables using a layout profile.
type Extractor struct {
	pricer  HistoricalPricer
	profile layout.Profile
	logger  *slog.Logger
}

func New(pricer HistoricalPricer, profile layout.Profile, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{pricer: pricer, profile: profile, logger: logger}
}

func (e *Extractor) historical(ctx context.Context, ts time.Time, ok bool) (decimal.Decimal, bool) {
	if !ok || e.pricer == nil {
		return decimal.Zero, false
	}
	price, found := e.pricer.ResolvePrice(ctx, ts)
	if !found || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}
