// Package present turns extractor rows and ledger summaries into the cells
// and banner injected into the history page.
package present

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/dom"
	"github.com/dgnsrekt/pnl_agent/internal/extract"
	"github.com/dgnsrekt/pnl_agent/internal/ledger"
)

const BannerTitle = "BTC P&L"

var hundred = decimal.NewFromInt(100)

// USD formats an amount as US dollars rounded to the cent.
func USD(d decimal.Decimal) string {
	cents := d.Mul(hundred).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

// SignedUSD is USD with an explicit plus sign on gains.
func SignedUSD(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + USD(d)
	}
	return USD(d)
}

// BTC formats a quantity with 8 decimals.
func BTC(d decimal.Decimal) string {
	return d.StringFixed(8) + " BTC"
}

// Percent formats a percentage with 2 decimals and a sign on gains.
func Percent(d decimal.Decimal) string {
	s := d.StringFixed(2) + "%"
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

func tone(d decimal.Decimal) dom.Tone {
	switch {
	case d.IsPositive():
		return dom.ToneGain
	case d.IsNegative():
		return dom.ToneLoss
	default:
		return dom.ToneNone
	}
}

var sourceLabels = map[extract.PriceSource]string{
	extract.SourceRatio:      "trade",
	extract.SourceHistorical: "historical",
	extract.SourceCurrent:    "current (fallback)",
	extract.SourceUnresolved: "unresolved",
}

var TradeHeaders = []string{"Cost basis", "Value now", "P&L", "P&L %"}

// TradeTable annotates trading rows with cost, value and profit.
func TradeTable(tab string, rows []extract.TradeRow) dom.TableAnnotation {
	a := dom.TableAnnotation{Tab: tab, Headers: TradeHeaders}
	for _, r := range rows {
		ra := dom.RowAnnotation{Index: r.Index}
		if r.Source == extract.SourceUnresolved {
			ra.Cells = []dom.AnnotatedCell{
				{Text: "price unavailable", Tone: dom.ToneMute},
				{Text: USD(r.Value)},
				{Text: "n/a", Tone: dom.ToneMute},
				{Text: "n/a", Tone: dom.ToneMute},
			}
		} else {
			ra.Cells = []dom.AnnotatedCell{
				{Text: USD(r.Cost)},
				{Text: USD(r.Value)},
				{Text: SignedUSD(r.Profit), Tone: tone(r.Profit)},
				{Text: Percent(r.ProfitPercent), Tone: tone(r.ProfitPercent)},
			}
		}
		a.Rows = append(a.Rows, ra)
	}
	return a
}

var TransferHeaders = []string{"BTC price", "USD value", "Price source"}

// TransferTable annotates receive and send rows with their valuation.
func TransferTable(tab string, rows []extract.TransferRow) dom.TableAnnotation {
	a := dom.TableAnnotation{Tab: tab, Headers: TransferHeaders}
	for _, r := range rows {
		srcTone := dom.ToneNone
		if r.Source != extract.SourceHistorical {
			srcTone = dom.ToneMute
		}
		a.Rows = append(a.Rows, dom.RowAnnotation{Index: r.Index, Cells: []dom.AnnotatedCell{
			{Text: USD(r.UnitPrice)},
			{Text: USD(r.ValueUSD)},
			{Text: sourceLabels[r.Source], Tone: srcTone},
		}})
	}
	return a
}

// SummaryBanner lays out the ledger summary. unresolved is the number of
// trades whose price could not be determined.
func SummaryBanner(s ledger.Summary, unresolved int) dom.Banner {
	b := dom.Banner{
		Title: BannerTitle,
		Lines: []dom.BannerLine{
			{Label: "Holdings", Value: BTC(s.HoldingsQuantity)},
			{Label: "Cost basis", Value: USD(s.TotalBasisUSD)},
			{Label: "BTC price", Value: USD(s.CurrentPrice)},
			{Label: "Current value", Value: USD(s.CurrentValueUSD)},
			{Label: "Net P&L", Value: SignedUSD(s.NetProfitUSD), Tone: tone(s.NetProfitUSD)},
			{Label: "Return", Value: Percent(s.ProfitPercent), Tone: tone(s.ProfitPercent)},
			{Label: "Bought", Value: BTC(s.Breakdown.TradedQty)},
			{Label: "Received", Value: BTC(s.Breakdown.ReceivedQty)},
			{Label: "Sent", Value: BTC(s.Breakdown.SentQty)},
		},
	}
	if unresolved > 0 {
		b.Note = fmt.Sprintf("%d trade(s) without a resolvable price are counted at zero cost.", unresolved)
	}
	return b
}

// Renderer is the slice of dom.Page the presenter writes to.
type Renderer interface {
	RenderTable(ctx context.Context, a dom.TableAnnotation) error
	RenderBanner(ctx context.Context, b dom.Banner) error
	RemoveBanner(ctx context.Context) error
	SetBusy(ctx context.Context, busy bool) error
}

// View is everything one cycle shows.
type View struct {
	Tables []dom.TableAnnotation
	Banner dom.Banner
}

type Presenter struct {
	page   Renderer
	logger *slog.Logger
}

func NewPresenter(page Renderer, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Presenter{page: page, logger: logger}
}

// Render writes every table annotation, then the banner. A table that cannot
// be annotated is logged and skipped; the banner error is returned.
func (p *Presenter) Render(ctx context.Context, v View) error {
	for _, t := range v.Tables {
		if len(t.Rows) == 0 {
			continue
		}
		if err := p.page.RenderTable(ctx, t); err != nil {
			p.logger.Warn("present table render failed", "tab", t.Tab, "error", err)
		}
	}
	if err := p.page.RenderBanner(ctx, v.Banner); err != nil {
		return fmt.Errorf("render banner: %w", err)
	}
	return nil
}

func (p *Presenter) Clear(ctx context.Context) error {
	return p.page.RemoveBanner(ctx)
}

func (p *Presenter) Busy(ctx context.Context, busy bool) {
	if err := p.page.SetBusy(ctx, busy); err != nil {
		p.logger.Debug("present busy toggle failed", "busy", busy, "error", err)
	}
}
