// Package trigger starts refresh cycles from page events: a user clicking a
// history tab and the page (re)loading.
package trigger

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgnsrekt/pnl_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/pnl_agent/internal/dom"
	"github.com/dgnsrekt/pnl_agent/internal/orchestrator"
)

// Source delivers binding calls and page loads from the history tab.
type Source interface {
	cdpcontrol.BindingSource
	OnPageLoad(ctx context.Context, fn func()) (func(), error)
}

type Hooks interface {
	InstallHooks(ctx context.Context) error
}

type Refresher interface {
	Refresh(ctx context.Context) (orchestrator.Outcome, error)
}

// Resetter drops per-page state when the page reloads.
type Resetter interface {
	Reset()
}

type Trigger struct {
	src       Source
	hooks     Hooks
	refresher Refresher
	hub       *Hub
	reset     Resetter
	logger    *slog.Logger

	ctx           context.Context
	wg            sync.WaitGroup
	unregisterFns []func()
}

func New(src Source, hooks Hooks, refresher Refresher, hub *Hub, reset Resetter, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{src: src, hooks: hooks, refresher: refresher, hub: hub, reset: reset, logger: logger}
}

// Start exposes the bindings, installs the page hooks and subscribes to page
// events. Cycles it starts run under ctx.
func (t *Trigger) Start(ctx context.Context) error {
	t.ctx = ctx
	for _, name := range []string{dom.TriggerBinding, dom.MutationBinding} {
		if err := t.src.AddBinding(ctx, name); err != nil {
			return err
		}
	}
	if err := t.hooks.InstallHooks(ctx); err != nil {
		return err
	}

	t.unregisterFns = append(t.unregisterFns,
		t.src.OnBinding(dom.TriggerBinding, t.onTabClick),
		t.src.OnBinding(dom.MutationBinding, t.onMutation),
	)
	unreg, err := t.src.OnPageLoad(ctx, t.onPageLoad)
	if err != nil {
		t.Stop()
		return err
	}
	t.unregisterFns = append(t.unregisterFns, unreg)

	t.logger.Info("trigger started")
	return nil
}

// Stop unsubscribes and waits for started cycles to return.
func (t *Trigger) Stop() {
	for _, fn := range t.unregisterFns {
		fn()
	}
	t.unregisterFns = nil
	t.wg.Wait()
	t.logger.Info("trigger stopped")
}

func (t *Trigger) onTabClick(payload string) {
	t.fire("tab_click", strings.TrimSpace(payload))
}

func (t *Trigger) onMutation(payload string) {
	if t.hub != nil {
		t.hub.Publish(payload)
	}
}

// onPageLoad runs on the CDP read loop, so page work is handed off.
func (t *Trigger) onPageLoad() {
	if t.reset != nil {
		t.reset.Reset()
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.hooks.InstallHooks(t.ctx); err != nil {
			t.logger.Warn("trigger hook reinstall failed", "error", err)
			return
		}
		t.run("page_load", "")
	}()
}

func (t *Trigger) fire(reason, detail string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(reason, detail)
	}()
}

func (t *Trigger) run(reason, detail string) {
	out, err := t.refresher.Refresh(t.ctx)
	if err != nil {
		t.logger.Warn("trigger refresh failed", "reason", reason, "detail", detail, "error", err)
		return
	}
	t.logger.Debug("trigger refresh done", "reason", reason, "detail", detail, "id", out.ID, "status", out.Status)
}
