// Package waiter decides when a paginated, virtualized table has finished
// loading. The page gives no loaded signal, so convergence is detected from
// row growth, load-more controls and mutation quiet time.
package waiter

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/pnl_agent/internal/dom"
)

// State is the waiter's position in Loading -> Stabilizing -> Stable|TimedOut.
type State string

const (
	Loading     State = "loading"
	Stabilizing State = "stabilizing"
	Stable      State = "stable"
	TimedOut    State = "timed_out"
)

// Probe measures and nudges one tab's table.
type Probe interface {
	LoadMore(ctx context.Context, tab string) (dom.LoadMoreResult, error)
	RowCount(ctx context.Context, tab string) (int, error)
	MutationSeq(ctx context.Context, tab string) (uint64, error)
}

type Config struct {
	QuietWindow   time.Duration
	QuietCeiling  time.Duration
	PollInterval  time.Duration
	MaxIterations int
	Timeout       time.Duration
	StablePasses  int
}

func DefaultConfig() Config {
	return Config{
		QuietWindow:   500 * time.Millisecond,
		QuietCeiling:  4 * time.Second,
		PollInterval:  150 * time.Millisecond,
		MaxIterations: 30,
		Timeout:       45 * time.Second,
		StablePasses:  2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QuietWindow <= 0 {
		c.QuietWindow = d.QuietWindow
	}
	if c.QuietCeiling < c.QuietWindow {
		c.QuietCeiling = max(d.QuietCeiling, c.QuietWindow)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.StablePasses <= 0 {
		c.StablePasses = d.StablePasses
	}
	return c
}

// Result is always returned; an empty or slow table is not an error.
type Result struct {
	State      State         `json:"state"`
	Rows       int           `json:"rows"`
	Iterations int           `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed"`
}

type Waiter struct {
	cfg    Config
	probe  Probe
	logger *slog.Logger
}

func New(probe Probe, cfg Config, logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{cfg: cfg.withDefaults(), probe: probe, logger: logger}
}

// Wait drives the tab's table until it is stable or the budget runs out.
// notify, when non-nil, delivers mutation notifications for the tab and
// shortens quiet detection; without it the mutation counter is polled.
func (w *Waiter) Wait(ctx context.Context, tab string, notify <-chan struct{}) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	res := Result{State: Loading}
	if n, err := w.probe.RowCount(ctx, tab); err != nil {
		w.logger.Debug("waiter initial row count failed", "tab", tab, "error", err)
	} else {
		res.Rows = n
	}

	passes := 0
	for res.Iterations < w.cfg.MaxIterations {
		if ctx.Err() != nil {
			break
		}
		res.Iterations++

		more, moreErr := w.probe.LoadMore(ctx, tab)
		if moreErr != nil {
			w.logger.Debug("waiter load-more failed", "tab", tab, "error", moreErr)
		}
		res.State = Stabilizing
		w.quiesce(ctx, tab, notify)

		n, err := w.probe.RowCount(ctx, tab)
		if err != nil || moreErr != nil {
			if err != nil {
				w.logger.Debug("waiter row count failed", "tab", tab, "error", err)
			}
			continue
		}
		if n > res.Rows || more.HasMore {
			passes = 0
		} else {
			passes++
		}
		res.Rows = max(res.Rows, n)
		if passes >= w.cfg.StablePasses {
			res.State = Stable
			res.Elapsed = time.Since(start)
			w.logger.Debug("waiter stable", "tab", tab, "rows", res.Rows, "iterations", res.Iterations, "elapsed", res.Elapsed)
			return res
		}
	}

	res.State = TimedOut
	res.Elapsed = time.Since(start)
	w.logger.Warn("waiter timed out", "tab", tab, "rows", res.Rows, "iterations", res.Iterations, "elapsed", res.Elapsed)
	return res
}

// quiesce returns once no mutation has been seen for QuietWindow, or
// QuietCeiling has elapsed, or ctx is done.
func (w *Waiter) quiesce(ctx context.Context, tab string, notify <-chan struct{}) {
	quiet := time.NewTimer(w.cfg.QuietWindow)
	defer quiet.Stop()
	ceiling := time.NewTimer(w.cfg.QuietCeiling)
	defer ceiling.Stop()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	last, seqErr := w.probe.MutationSeq(ctx, tab)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ceiling.C:
			return
		case <-quiet.C:
			return
		case _, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			quiet.Reset(w.cfg.QuietWindow)
		case <-ticker.C:
			seq, err := w.probe.MutationSeq(ctx, tab)
			if err != nil {
				continue
			}
			if seqErr != nil || seq != last {
				last, seqErr = seq, nil
				quiet.Reset(w.cfg.QuietWindow)
			}
		}
	}
}
