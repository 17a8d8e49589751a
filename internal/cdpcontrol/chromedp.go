package cdpcontrol

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ChromedpDriver drives the history tab through chromedp instead of the raw
// socket. Event listeners run on chromedp's event loop and must not block.
type ChromedpDriver struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	info        TabInfo
}

func NewChromedpDriver(cdpURL, tabFilter string, evalTimeout time.Duration) *ChromedpDriver {
	return &ChromedpDriver{
		cdpURL:      cdpURL,
		tabFilter:   strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout: evalTimeout,
	}
}

func (d *ChromedpDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()

	targets, err := newRawCDP(d.cdpURL, nil).listTargets(ctx)
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to list targets", err)
	}
	info, ok := matchTab(targets, d.tabFilter)
	if !ok {
		return newError(CodeTabNotFound, "no page target matches "+d.tabFilter, nil)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), d.cdpURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(target.ID(info.TargetID)))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return newError(CodeCDPUnavailable, "chromedp attach failed", err)
	}

	d.allocCancel = allocCancel
	d.tabCtx = tabCtx
	d.tabCancel = tabCancel
	d.info = info
	slog.Info("cdpcontrol chromedp attached", "target_id", info.TargetID, "url", info.URL)
	return nil
}

func (d *ChromedpDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *ChromedpDriver) closeLocked() {
	if d.tabCancel != nil {
		d.tabCancel()
		d.tabCancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	d.tabCtx = nil
}

func (d *ChromedpDriver) Tab(ctx context.Context) (TabInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tabCtx == nil {
		return TabInfo{}, newError(CodeCDPUnavailable, "chromedp driver not connected", nil)
	}
	return d.info, nil
}

// Eval runs body through chromedp.Evaluate with awaitPromise.
func (d *ChromedpDriver) Eval(ctx context.Context, body string, out any) error {
	tabCtx, err := d.context()
	if err != nil {
		return err
	}

	evalCtx, cancel := context.WithTimeout(tabCtx, d.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var raw string
	err = chromedp.Run(evalCtx, chromedp.Evaluate(WrapAsync(body), &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

// Click dispatches a trusted click through chromedp's input helpers.
func (d *ChromedpDriver) Click(ctx context.Context, x, y float64) error {
	tabCtx, err := d.context()
	if err != nil {
		return err
	}
	clickCtx, cancel := context.WithTimeout(tabCtx, d.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(clickCtx, chromedp.MouseClickXY(x, y)); err != nil {
		return newError(CodeEvalFailure, "failed to dispatch trusted mouse click", err)
	}
	return nil
}

func (d *ChromedpDriver) context() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tabCtx == nil {
		return nil, newError(CodeCDPUnavailable, "chromedp driver not connected", nil)
	}
	return d.tabCtx, nil
}

// AddBinding exposes window.<name> on the attached tab.
func (d *ChromedpDriver) AddBinding(ctx context.Context, name string) error {
	tabCtx, err := d.context()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tabCtx, d.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, runtime.AddBinding(name)); err != nil {
		return newError(CodeEvalFailure, "add binding failed", err)
	}
	return nil
}

// OnBinding subscribes to calls of window.<name>(payload).
func (d *ChromedpDriver) OnBinding(name string, fn func(payload string)) func() {
	tabCtx, err := d.context()
	if err != nil {
		return func() {}
	}
	listenCtx, cancel := context.WithCancel(tabCtx)
	chromedp.ListenTarget(listenCtx, func(ev any) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == name {
			fn(e.Payload)
		}
	})
	return cancel
}

// OnPageLoad subscribes to Page.loadEventFired on the attached tab.
func (d *ChromedpDriver) OnPageLoad(ctx context.Context, fn func()) (func(), error) {
	tabCtx, err := d.context()
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(tabCtx, d.evalTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, page.Enable()); err != nil {
		return nil, newError(CodeEvalFailure, "enable page domain failed", err)
	}
	listenCtx, stop := context.WithCancel(tabCtx)
	chromedp.ListenTarget(listenCtx, func(ev any) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			fn()
		}
	})
	return stop, nil
}
