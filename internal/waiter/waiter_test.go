package waiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgnsrekt/pnl_agent/internal/dom"
)

// fakeProbe grows the table by one page per load-more until pages run out.
type fakeProbe struct {
	rows       int
	pages      int
	pageSize   int
	loadCalls  int
	seq        uint64
	failAll    bool
	alwaysMore bool
}

func (f *fakeProbe) LoadMore(ctx context.Context, tab string) (dom.LoadMoreResult, error) {
	f.loadCalls++
	if f.failAll {
		return dom.LoadMoreResult{}, errors.New("eval failed")
	}
	if f.pages > 0 {
		f.pages--
		f.rows += f.pageSize
		f.seq++
		return dom.LoadMoreResult{Clicked: true, HasMore: true, Rows: f.rows}, nil
	}
	return dom.LoadMoreResult{HasMore: f.alwaysMore, Rows: f.rows}, nil
}

func (f *fakeProbe) RowCount(ctx context.Context, tab string) (int, error) {
	if f.failAll {
		return 0, errors.New("eval failed")
	}
	return f.rows, nil
}

func (f *fakeProbe) MutationSeq(ctx context.Context, tab string) (uint64, error) {
	return f.seq, nil
}

func fastConfig() Config {
	return Config{
		QuietWindow:   3 * time.Millisecond,
		QuietCeiling:  20 * time.Millisecond,
		PollInterval:  time.Millisecond,
		MaxIterations: 10,
		Timeout:       2 * time.Second,
		StablePasses:  2,
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWaitPaginatesUntilStable(t *testing.T) {
	p := &fakeProbe{rows: 20, pages: 3, pageSize: 20}
	res := New(p, fastConfig(), quietLogger()).Wait(context.Background(), "Receive", nil)
	if res.State != Stable {
		t.Fatalf("state = %s; want stable", res.State)
	}
	if res.Rows != 80 {
		t.Fatalf("rows = %d; want 80", res.Rows)
	}
	// three growing passes followed by two quiet ones
	if res.Iterations != 5 {
		t.Fatalf("iterations = %d; want 5", res.Iterations)
	}
}

func TestWaitEmptyTableIsStable(t *testing.T) {
	p := &fakeProbe{}
	res := New(p, fastConfig(), quietLogger()).Wait(context.Background(), "Send", nil)
	if res.State != Stable || res.Rows != 0 || res.Iterations != 2 {
		t.Fatalf("result = %+v; want stable with 0 rows after 2 passes", res)
	}
}

func TestWaitEnabledLoadMoreBlocksStability(t *testing.T) {
	p := &fakeProbe{rows: 5, alwaysMore: true}
	cfg := fastConfig()
	cfg.MaxIterations = 4
	res := New(p, cfg, quietLogger()).Wait(context.Background(), "Trading", nil)
	if res.State != TimedOut || res.Iterations != 4 || res.Rows != 5 {
		t.Fatalf("result = %+v; want timed out after 4 iterations", res)
	}
}

func TestWaitProbeErrorsNeverStabilize(t *testing.T) {
	p := &fakeProbe{failAll: true}
	cfg := fastConfig()
	cfg.MaxIterations = 3
	res := New(p, cfg, quietLogger()).Wait(context.Background(), "Trading", nil)
	if res.State != TimedOut || p.loadCalls != 3 {
		t.Fatalf("result = %+v loadCalls = %d", res, p.loadCalls)
	}
}

func TestWaitOverallTimeout(t *testing.T) {
	p := &fakeProbe{rows: 1, alwaysMore: true}
	cfg := fastConfig()
	cfg.MaxIterations = 1000
	cfg.Timeout = 30 * time.Millisecond
	start := time.Now()
	res := New(p, cfg, quietLogger()).Wait(context.Background(), "Trading", nil)
	if res.State != TimedOut {
		t.Fatalf("state = %s; want timed out", res.State)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("wait overran its timeout: %v", time.Since(start))
	}
}

func TestQuiesceCeilingBoundsBusyNotifications(t *testing.T) {
	p := &fakeProbe{}
	cfg := fastConfig()
	cfg.QuietWindow = 10 * time.Millisecond
	cfg.QuietCeiling = 40 * time.Millisecond
	w := New(p, cfg, quietLogger())

	notify := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case notify <- struct{}{}:
				time.Sleep(time.Millisecond)
			}
		}
	}()

	start := time.Now()
	w.quiesce(context.Background(), "Trading", notify)
	elapsed := time.Since(start)
	if elapsed < cfg.QuietCeiling || elapsed > 500*time.Millisecond {
		t.Fatalf("quiesce took %v; want about the %v ceiling", elapsed, cfg.QuietCeiling)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{QuietWindow: 10 * time.Second}.withDefaults()
	if c.QuietCeiling < c.QuietWindow {
		t.Fatalf("ceiling %v below quiet window %v", c.QuietCeiling, c.QuietWindow)
	}
	if c.StablePasses != 2 || c.MaxIterations <= 0 || c.PollInterval <= 0 {
		t.Fatalf("defaults not applied: %+v", c)
	}
}
