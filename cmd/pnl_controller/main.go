package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/pnl_agent/internal/api"
	"github.com/dgnsrekt/pnl_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/pnl_agent/internal/config"
	"github.com/dgnsrekt/pnl_agent/internal/dom"
	"github.com/dgnsrekt/pnl_agent/internal/extract"
	"github.com/dgnsrekt/pnl_agent/internal/journal"
	"github.com/dgnsrekt/pnl_agent/internal/layout"
	"github.com/dgnsrekt/pnl_agent/internal/navigator"
	"github.com/dgnsrekt/pnl_agent/internal/netutil"
	"github.com/dgnsrekt/pnl_agent/internal/notify"
	"github.com/dgnsrekt/pnl_agent/internal/orchestrator"
	"github.com/dgnsrekt/pnl_agent/internal/present"
	"github.com/dgnsrekt/pnl_agent/internal/pricing"
	"github.com/dgnsrekt/pnl_agent/internal/trigger"
	"github.com/dgnsrekt/pnl_agent/internal/waiter"
)

// driver is what both CDP implementations provide.
type driver interface {
	cdpcontrol.Evaluator
	cdpcontrol.Clicker
	trigger.Source
	Connect(ctx context.Context) error
	Close() error
	Tab(ctx context.Context) (cdpcontrol.TabInfo, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load controller config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("controller config loaded",
		"cdp_url", cfg.CDPURL(),
		"driver", cfg.Driver,
		"bind_addr", cfg.BindAddr,
		"tab_url_filter", cfg.TabURLFilter,
		"eval_timeout", cfg.EvalTimeout,
		"port_candidates", cfg.PortCandidates,
		"journal_dir", cfg.JournalDir,
		"layout_file", cfg.LayoutFile,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	profile, err := layout.Load(cfg.LayoutFile)
	if err != nil {
		slog.Error("failed to load page layout", "error", err)
		os.Exit(1)
	}

	ln, err := netutil.Listen(cfg.BindAddr, netutil.Candidates(cfg.BindHost(), cfg.PortCandidates), cfg.AutoFallback)
	if err != nil {
		slog.Error("failed to bind control API", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	var drv driver
	switch cfg.Driver {
	case "chromedp":
		drv = cdpcontrol.NewChromedpDriver(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout)
	default:
		drv = cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout)
	}
	if err := drv.Connect(context.Background()); err != nil {
		slog.Error("failed to connect to history tab", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() { _ = drv.Close() }()

	logger := slog.Default()
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	page := dom.NewPage(drv, profile.LoadMoreLabels)
	hub := trigger.NewHub()
	wait := waiter.New(page, waiter.Config{
		QuietWindow:   cfg.WaitQuietWindow,
		QuietCeiling:  cfg.WaitQuietCeiling,
		PollInterval:  cfg.WaitPollInterval,
		MaxIterations: cfg.WaitMaxIterations,
		Timeout:       cfg.WaitTimeout,
	}, logger)
	nav := navigator.New(page, wait, navigator.Options{
		SelectTimeout: cfg.SelectTimeout,
		Clicker:       drv,
		Feed:          hub,
		Logger:        logger,
	})

	broker := pricing.NewBroker(pricing.NewCurrentProvider(httpClient, cfg.QuoteURL, cfg.QuotePath))
	resolver := pricing.NewResolver(pricing.NewCandleProvider(httpClient, cfg.CandlesURL))

	journalWriter := journal.NewWriter(cfg.JournalDir, 64, 50, logger)
	defer func() { _ = journalWriter.Close() }()

	memo := &orchestrator.TransferMemo{}
	session := orchestrator.NewSession(orchestrator.Deps{
		Navigator:    nav,
		Tables:       page,
		Extractor:    extract.New(resolver, profile, logger),
		Broker:       broker,
		Presenter:    present.NewPresenter(page, logger),
		Tabs:         profile.Tabs,
		Journal:      journalWriter,
		Notifier:     notify.New(httpClient, cfg.NTFYEndpoint),
		Memo:         memo,
		CycleTimeout: cfg.CycleTimeout,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trig := trigger.New(drv, page, session, hub, memo, logger)
	if err := trig.Start(ctx); err != nil {
		slog.Warn("page triggers unavailable, refresh through the API only", "error", err)
	} else {
		defer trig.Stop()
	}

	go func() {
		if _, err := session.Refresh(ctx); err != nil {
			slog.Warn("initial refresh failed", "error", err)
		}
	}()

	h := api.NewServer(api.Deps{Session: session, Broker: broker, Resolver: resolver, Tab: drv})
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		addr := ln.Addr().String()
		slog.Info("controller listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("controller server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("controller shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
