// Package navigator brings a history tab into view and waits for its table
// to finish loading, without the activation being mistaken for a user click.
package navigator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/pnl_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/pnl_agent/internal/dom"
	"github.com/dgnsrekt/pnl_agent/internal/waiter"
)

// Page is the slice of dom.Page the navigator drives.
type Page interface {
	waiter.Probe
	Tabs(ctx context.Context) ([]dom.TabState, error)
	Activate(ctx context.Context, name string) error
	SetSuppressed(ctx context.Context, on bool) error
	ObservePanel(ctx context.Context, tab string) error
}

// MutationFeed hands out per-tab mutation notifications.
type MutationFeed interface {
	Subscribe(tab string) (<-chan struct{}, func())
}

// TabContext describes a tab whose table is loaded.
type TabContext struct {
	Tab     string        `json:"tab"`
	PanelID string        `json:"panel_id"`
	Rows    int           `json:"rows"`
	Wait    waiter.Result `json:"wait"`
}

type Options struct {
	SelectTimeout time.Duration
	PollInterval  time.Duration
	// Clicker, when set, activates visible tabs with a trusted mouse click.
	Clicker cdpcontrol.Clicker
	Feed    MutationFeed
	Logger  *slog.Logger
}

type Navigator struct {
	page   Page
	wait   *waiter.Waiter
	opts   Options
	logger *slog.Logger
}

func New(page Page, w *waiter.Waiter, opts Options) *Navigator {
	if opts.SelectTimeout <= 0 {
		opts.SelectTimeout = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{page: page, wait: w, opts: opts, logger: logger}
}

func findTab(tabs []dom.TabState, name string) (dom.TabState, bool) {
	for _, t := range tabs {
		if strings.EqualFold(strings.TrimSpace(t.Name), strings.TrimSpace(name)) {
			return t, true
		}
	}
	return dom.TabState{}, false
}

func (n *Navigator) lookup(ctx context.Context, name string) (dom.TabState, bool) {
	tabs, err := n.page.Tabs(ctx)
	if err != nil {
		n.logger.Warn("navigator list tabs failed", "error", err)
		return dom.TabState{}, false
	}
	return findTab(tabs, name)
}

// ActiveTab is the name of the selected tab, empty when none is selected or
// the page cannot be read.
func (n *Navigator) ActiveTab(ctx context.Context) string {
	tabs, err := n.page.Tabs(ctx)
	if err != nil {
		n.logger.Warn("navigator list tabs failed", "error", err)
		return ""
	}
	for _, t := range tabs {
		if t.Selected {
			return t.Name
		}
	}
	return ""
}

// EnsureTabReady selects the tab when needed and waits for its table to
// settle. It returns nil when the tab, its panel or its table never appear.
// A tab that is already selected with rows is not clicked again but is still
// paginated to completion.
func (n *Navigator) EnsureTabReady(ctx context.Context, name string) *TabContext {
	tab, ok := n.lookup(ctx, name)
	if !ok {
		n.logger.Warn("navigator tab not found", "tab", name)
		return nil
	}

	if tab.Selected && tab.HasTable && tab.Rows > 0 {
		n.logger.Debug("navigator tab already active", "tab", name, "rows", tab.Rows)
	} else {
		tab, ok = n.activate(ctx, tab)
		if !ok {
			return nil
		}
	}

	if err := n.page.ObservePanel(ctx, name); err != nil {
		n.logger.Debug("navigator observe panel failed", "tab", name, "error", err)
	}
	var notify <-chan struct{}
	if n.opts.Feed != nil {
		ch, cancel := n.opts.Feed.Subscribe(name)
		defer cancel()
		notify = ch
	}
	res := n.wait.Wait(ctx, name, notify)

	final, ok := n.lookup(ctx, name)
	if !ok || !final.HasTable {
		n.logger.Warn("navigator table never materialized", "tab", name, "state", res.State)
		return nil
	}
	tc := &TabContext{Tab: final.Name, PanelID: final.PanelID, Rows: max(res.Rows, final.Rows), Wait: res}
	n.logger.Info("navigator tab ready", "tab", tc.Tab, "rows", tc.Rows, "state", res.State, "iterations", res.Iterations)
	return tc
}

// Restore reselects name. Empty or already selected names are a no-op.
func (n *Navigator) Restore(ctx context.Context, name string) {
	if name == "" {
		return
	}
	tab, ok := n.lookup(ctx, name)
	if !ok || tab.Selected {
		return
	}
	if _, ok := n.activate(ctx, tab); !ok {
		n.logger.Warn("navigator restore failed", "tab", name)
	}
}

// activate clicks the tab with the click hook suppressed and waits for the
// selection to flip.
func (n *Navigator) activate(ctx context.Context, tab dom.TabState) (dom.TabState, bool) {
	if err := n.page.SetSuppressed(ctx, true); err != nil {
		n.logger.Debug("navigator suppress failed", "error", err)
	}
	defer func() {
		if err := n.page.SetSuppressed(context.WithoutCancel(ctx), false); err != nil {
			n.logger.Warn("navigator unsuppress failed", "error", err)
		}
	}()

	if err := n.click(ctx, tab); err != nil {
		n.logger.Warn("navigator activate failed", "tab", tab.Name, "error", err)
		return tab, false
	}

	deadline := time.NewTimer(n.opts.SelectTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(n.opts.PollInterval)
	defer ticker.Stop()
	for {
		if cur, ok := n.lookup(ctx, tab.Name); ok && cur.Selected {
			return cur, true
		}
		select {
		case <-ctx.Done():
			return tab, false
		case <-deadline.C:
			n.logger.Warn("navigator selection did not change", "tab", tab.Name, "timeout", n.opts.SelectTimeout)
			return tab, false
		case <-ticker.C:
		}
	}
}

func (n *Navigator) click(ctx context.Context, tab dom.TabState) error {
	if n.opts.Clicker != nil && tab.Visible {
		err := n.opts.Clicker.Click(ctx, tab.X, tab.Y)
		if err == nil {
			return nil
		}
		n.logger.Debug("navigator trusted click failed, falling back to script", "tab", tab.Name, "error", err)
	}
	return n.page.Activate(ctx, tab.Name)
}
