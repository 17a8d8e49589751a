// Package orchestrator runs refresh cycles: read the history tabs, price the
// events, replay them through the ledger and render the result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/pnl_agent/internal/dom"
	"github.com/dgnsrekt/pnl_agent/internal/extract"
	"github.com/dgnsrekt/pnl_agent/internal/journal"
	"github.com/dgnsrekt/pnl_agent/internal/layout"
	"github.com/dgnsrekt/pnl_agent/internal/ledger"
	"github.com/dgnsrekt/pnl_agent/internal/navigator"
	"github.com/dgnsrekt/pnl_agent/internal/present"
	"github.com/dgnsrekt/pnl_agent/internal/pricing"
)

// ErrPriceUnavailable aborts a cycle before anything is rendered.
var ErrPriceUnavailable = errors.New("current price unavailable")

type Navigator interface {
	ActiveTab(ctx context.Context) string
	EnsureTabReady(ctx context.Context, name string) *navigator.TabContext
	Restore(ctx context.Context, name string)
}

type TableReader interface {
	Table(ctx context.Context, tab string) (dom.Table, error)
}

type PriceBroker interface {
	Handle(ctx context.Context, req pricing.Request) pricing.Response
}

type Recorder interface {
	Record(r journal.Record) error
}

type SummaryNotifier interface {
	Summary(ctx context.Context, s ledger.Summary) error
}

const (
	StatusRendered = "rendered"
	StatusSkipped  = "skipped"
)

// Outcome describes one finished cycle.
type Outcome struct {
	ID          string          `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Status      string          `json:"status"`
	Skipped     bool            `json:"skipped"`
	Reason      string          `json:"reason,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Summary     ledger.Summary  `json:"summary"`
	Trades      int             `json:"trades"`
	Received    int             `json:"received"`
	Sent        int             `json:"sent"`
	Unresolved  int             `json:"unresolved"`
	RenderError string          `json:"render_error,omitempty"`
}

type Deps struct {
	Navigator Navigator
	Tables    TableReader
	Extractor *extract.Extractor
	Broker    PriceBroker
	Presenter *present.Presenter
	Tabs      layout.Tabs
	Journal   Recorder
	Notifier  SummaryNotifier
	Memo      *TransferMemo
	// CycleTimeout bounds one cycle regardless of the caller's context.
	CycleTimeout time.Duration
	Logger       *slog.Logger
}

type flight struct {
	done chan struct{}
	out  Outcome
	err  error
}

// Session serializes refresh cycles for one page.
type Session struct {
	deps   Deps
	memo   *TransferMemo
	logger *slog.Logger

	mu       sync.Mutex
	inflight *flight
	last     *Outcome
}

func NewSession(deps Deps) *Session {
	if deps.Memo == nil {
		deps.Memo = &TransferMemo{}
	}
	if deps.CycleTimeout <= 0 {
		deps.CycleTimeout = 3 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{deps: deps, memo: deps.Memo, logger: logger}
}

func (s *Session) Memo() *TransferMemo { return s.memo }

// Last is the most recent cycle that completed without error.
func (s *Session) Last() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

// Refresh runs a cycle, or joins the one already running and returns its
// result. The cycle itself is not cancelled by ctx; ctx only bounds how long
// this caller waits.
func (s *Session) Refresh(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if f := s.inflight; f != nil {
		s.mu.Unlock()
		s.logger.Debug("orchestrator refresh joined in-flight cycle")
		select {
		case <-f.done:
			return f.out, f.err
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	s.inflight = f
	s.mu.Unlock()

	go func() {
		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.CycleTimeout)
		defer cancel()
		f.out, f.err = s.cycle(cycleCtx)

		s.mu.Lock()
		s.inflight = nil
		if f.err == nil && !f.out.Skipped {
			out := f.out
			s.last = &out
		}
		s.mu.Unlock()
		close(f.done)
	}()

	select {
	case <-f.done:
		return f.out, f.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (s *Session) cycle(ctx context.Context) (out Outcome, err error) {
	d := s.deps
	out = Outcome{ID: journal.NewID(), StartedAt: time.Now().UTC()}
	defer func() { out.FinishedAt = time.Now().UTC() }()

	original := d.Navigator.ActiveTab(ctx)
	if !strings.EqualFold(strings.TrimSpace(original), d.Tabs.Trading) {
		out.Status, out.Skipped = StatusSkipped, true
		out.Reason = fmt.Sprintf("%s tab not active (active: %q)", d.Tabs.Trading, original)
		s.logger.Debug("orchestrator cycle skipped", "id", out.ID, "active", original)
		return out, nil
	}

	navigated := false
	defer func() {
		if navigated {
			d.Navigator.Restore(context.WithoutCancel(ctx), original)
		}
	}()

	resp := d.Broker.Handle(ctx, pricing.Request{Type: pricing.MsgGetBTCPrice})
	price, ok := resp.Decimal()
	if !ok {
		if err := d.Presenter.Clear(ctx); err != nil {
			s.logger.Debug("orchestrator banner removal failed", "error", err)
		}
		s.logger.Warn("orchestrator cycle aborted: current price unavailable", "id", out.ID)
		return out, ErrPriceUnavailable
	}
	out.Price = price

	// The page is only marked busy once there is something to render.
	d.Presenter.Busy(ctx, true)
	defer d.Presenter.Busy(context.WithoutCancel(ctx), false)

	transfers, cached := s.memo.Get()
	if !cached {
		navigated = true
		transfers = TransferSet{
			Receive: s.readTransfers(ctx, d.Tabs.Receive, extract.Receive, price),
			Send:    s.readTransfers(ctx, d.Tabs.Send, extract.Send, price),
		}
		// Reads cut short by the deadline look like empty tabs; they must not
		// be memoized for the rest of the page session.
		if err := ctx.Err(); err != nil {
			s.logger.Warn("orchestrator cycle aborted while reading transfers", "id", out.ID, "error", err)
			return out, fmt.Errorf("read transfers: %w", err)
		}
		s.memo.Seed(transfers)
	}

	var trades extract.TradeResult
	if table, ok := s.readTable(ctx, d.Tabs.Trading); ok {
		trades = d.Extractor.Trades(ctx, table, price)
	}
	if err := ctx.Err(); err != nil {
		s.logger.Warn("orchestrator cycle aborted while reading trades", "id", out.ID, "error", err)
		return out, fmt.Errorf("read trades: %w", err)
	}

	events := append(transfers.Events(), trades.Events...)
	summary := ledger.ComputeSummary(price, events)
	out.Status = StatusRendered
	out.Summary = summary
	out.Trades = len(trades.Rows)
	out.Received = len(transfers.Receive.Rows)
	out.Sent = len(transfers.Send.Rows)
	for _, r := range trades.Rows {
		if r.Source == extract.SourceUnresolved {
			out.Unresolved++
		}
	}

	view := present.View{
		Tables: []dom.TableAnnotation{
			present.TradeTable(d.Tabs.Trading, trades.Rows),
			present.TransferTable(d.Tabs.Receive, transfers.Receive.Rows),
			present.TransferTable(d.Tabs.Send, transfers.Send.Rows),
		},
		Banner: present.SummaryBanner(summary, out.Unresolved),
	}
	if err := d.Presenter.Render(ctx, view); err != nil {
		out.RenderError = err.Error()
		s.logger.Warn("orchestrator render failed", "id", out.ID, "error", err)
	}

	s.logger.Info("orchestrator cycle complete",
		"id", out.ID,
		"price", price.String(),
		"events", summary.Events,
		"holdings", summary.HoldingsQuantity.String(),
		"basis", summary.TotalBasisUSD.StringFixed(2),
		"profit", summary.NetProfitUSD.StringFixed(2),
		"transfers_cached", cached)

	if d.Journal != nil {
		rec := journal.Record{
			ID:         out.ID,
			StartedAt:  out.StartedAt,
			FinishedAt: time.Now().UTC(),
			Price:      price,
			Events:     events,
			Summary:    summary,
			Outcome:    out.Status,
		}
		if err := d.Journal.Record(rec); err != nil {
			s.logger.Warn("orchestrator journal record failed", "id", out.ID, "error", err)
		}
	}
	if d.Notifier != nil {
		if err := d.Notifier.Summary(ctx, summary); err != nil {
			s.logger.Warn("orchestrator notify failed", "id", out.ID, "error", err)
		}
	}
	return out, nil
}

// readTable brings the tab into view and snapshots its table. A tab or table
// that never appears yields false and counts as an empty category.
func (s *Session) readTable(ctx context.Context, tab string) (dom.Table, bool) {
	tc := s.deps.Navigator.EnsureTabReady(ctx, tab)
	if tc == nil {
		s.logger.Warn("orchestrator tab unavailable", "tab", tab)
		return dom.Table{}, false
	}
	table, err := s.deps.Tables.Table(ctx, tab)
	if err != nil {
		s.logger.Warn("orchestrator table read failed", "tab", tab, "error", err)
		return dom.Table{}, false
	}
	return table, true
}

func (s *Session) readTransfers(ctx context.Context, tab string, dir extract.Direction, price decimal.Decimal) extract.TransferResult {
	table, ok := s.readTable(ctx, tab)
	if !ok {
		return extract.TransferResult{Direction: dir}
	}
	return s.deps.Extractor.Transfers(ctx, table, dir, price)
}
