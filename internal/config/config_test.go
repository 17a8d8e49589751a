package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9220" {
		t.Fatalf("CDPURL() = %q", cfg.CDPURL())
	}
	if cfg.Driver != "raw" || !cfg.AutoFallback || cfg.WaitMaxIterations != 30 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.BindHost() != "127.0.0.1" {
		t.Fatalf("BindHost() = %q", cfg.BindHost())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("PNL_CDP_DRIVER", "ChromeDP")
	t.Setenv("PNL_EVAL_TIMEOUT_MS", "200")
	t.Setenv("PNL_WAIT_QUIET_MS", "750ms")
	t.Setenv("PNL_SELECT_TIMEOUT_MS", "2500")
	t.Setenv("PNL_PORT_AUTO_FALLBACK", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPPort != 9333 || cfg.Driver != "chromedp" || cfg.AutoFallback {
		t.Fatalf("overrides = %+v", cfg)
	}
	if cfg.EvalTimeout != time.Second {
		t.Fatalf("EvalTimeout = %v; want clamped to 1s", cfg.EvalTimeout)
	}
	if cfg.WaitQuietWindow != 750*time.Millisecond || cfg.SelectTimeout != 2500*time.Millisecond {
		t.Fatalf("durations = %v %v", cfg.WaitQuietWindow, cfg.SelectTimeout)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PNL_CDP_DRIVER", "puppeteer")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "Driver") {
		t.Fatalf("Load() error = %v; want driver validation failure", err)
	}
}

func TestLoadRejectsBadQuotePath(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PNL_QUOTE_PATH", "data.amount")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil; want quote path validation failure")
	}
}
