package layout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if p.Tabs.Trading != "Trading" {
		t.Fatalf("trading tab = %q; want Trading", p.Tabs.Trading)
	}
}

func TestLoadOverridesKeepsDefaults(t *testing.T) {
	path := writeFile(t, `
tabs:
  trading: Trades
trading:
  sold:
    keywords: [spent]
    fallback: 3
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Tabs.Trading != "Trades" || p.Tabs.Send != "Send" {
		t.Fatalf("tabs = %+v", p.Tabs)
	}
	if p.Trading.Sold.Fallback != 3 || len(p.Trading.Sold.Keywords) != 1 {
		t.Fatalf("sold = %+v", p.Trading.Sold)
	}
	if p.Trading.Bought.Fallback != 2 {
		t.Fatalf("bought fallback = %d; want default 2", p.Trading.Bought.Fallback)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, `
tabs:
  send: ""
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "Send") {
		t.Fatalf("Load() error = %v; want validation failure on Send", err)
	}
}

func TestLoadRejectsNegativeFallback(t *testing.T) {
	path := writeFile(t, `
transfer:
  fee:
    keywords: [fee]
    fallback: -1
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil; want fallback validation failure")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() error = nil; want read failure")
	}
}
