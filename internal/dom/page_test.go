package dom

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dgnsrekt/pnl_agent/internal/cdpcontrol"
)

type recordingEval struct {
	scripts []string
	data    string
	err     error
}

func (r *recordingEval) Eval(ctx context.Context, body string, out any) error {
	r.scripts = append(r.scripts, body)
	if r.err != nil {
		return r.err
	}
	if out == nil || r.data == "" {
		return nil
	}
	return json.Unmarshal([]byte(r.data), out)
}

func (r *recordingEval) last() string { return r.scripts[len(r.scripts)-1] }

func TestTabsDecodes(t *testing.T) {
	ev := &recordingEval{data: `[{"name":"Trading","selected":true,"panel_id":"p1","has_table":true,"rows":4,"x":10,"y":20,"visible":true},{"name":"Send","selected":false}]`}
	tabs, err := NewPage(ev, nil).Tabs(context.Background())
	if err != nil {
		t.Fatalf("Tabs() error = %v", err)
	}
	if len(tabs) != 2 {
		t.Fatalf("len(tabs) = %d; want 2", len(tabs))
	}
	if !tabs[0].Selected || tabs[0].Rows != 4 || tabs[0].PanelID != "p1" {
		t.Fatalf("tabs[0] = %+v", tabs[0])
	}
	if !strings.Contains(ev.last(), "function _tabByName") {
		t.Fatalf("script missing tab helpers")
	}
}

func TestActivateQuotesName(t *testing.T) {
	ev := &recordingEval{}
	if err := NewPage(ev, nil).Activate(context.Background(), `Send "BTC"`); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if !strings.Contains(ev.last(), `_tabByName("Send \"BTC\"")`) {
		t.Fatalf("tab name not quoted: %s", ev.last())
	}
}

func TestLoadMoreUsesLabels(t *testing.T) {
	ev := &recordingEval{data: `{"clicked":true,"scrolled":false,"has_more":true,"rows":50}`}
	res, err := NewPage(ev, []string{" Older Transactions ", ""}).LoadMore(context.Background(), "Receive")
	if err != nil {
		t.Fatalf("LoadMore() error = %v", err)
	}
	if !res.Clicked || !res.HasMore || res.Rows != 50 {
		t.Fatalf("LoadMore() = %+v", res)
	}
	if !strings.Contains(ev.last(), `["older transactions"]`) {
		t.Fatalf("labels not normalised: %s", ev.last())
	}
}

func TestSetSuppressed(t *testing.T) {
	ev := &recordingEval{}
	p := NewPage(ev, nil)
	_ = p.SetSuppressed(context.Background(), true)
	if !strings.Contains(ev.last(), "window.__pnlSuppress = true;") {
		t.Fatalf("unexpected script: %s", ev.last())
	}
	_ = p.SetSuppressed(context.Background(), false)
	if !strings.Contains(ev.last(), "window.__pnlSuppress = false;") {
		t.Fatalf("unexpected script: %s", ev.last())
	}
}

func TestTableDecodes(t *testing.T) {
	ev := &recordingEval{data: `{"tab":"Trading","headers":["Sold","Bought","Completed"],"rows":[{"index":0,"cells":[{"text":"$100.00"},{"text":"₿0.002"},{"text":"Mar 1","time":"2024-03-01T10:00:00Z"}]}]}`}
	table, err := NewPage(ev, nil).Table(context.Background(), "Trading")
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if got := table.Rows[0].Cell(2).Time; got != "2024-03-01T10:00:00Z" {
		t.Fatalf("time attr = %q", got)
	}
	if got := table.Rows[0].Cell(9); got != (Cell{}) {
		t.Fatalf("out of range cell = %+v; want empty", got)
	}
}

func TestRenderTableEmbedsAnnotation(t *testing.T) {
	ev := &recordingEval{}
	a := TableAnnotation{
		Tab:     "Trading",
		Headers: []string{"Profit"},
		Rows:    []RowAnnotation{{Index: 1, Cells: []AnnotatedCell{{Text: "$5.00", Tone: ToneGain}}}},
	}
	if err := NewPage(ev, nil).RenderTable(context.Background(), a); err != nil {
		t.Fatalf("RenderTable() error = %v", err)
	}
	script := ev.last()
	for _, want := range []string{`"tone":"gain"`, CellAttr, ColumnAttr, "el.remove()"} {
		if !strings.Contains(script, want) {
			t.Fatalf("RenderTable script missing %q", want)
		}
	}
}

func TestRenderBannerReplacesByID(t *testing.T) {
	ev := &recordingEval{}
	err := NewPage(ev, nil).RenderBanner(context.Background(), Banner{Title: "BTC P&L", Lines: []BannerLine{{Label: "Holdings", Value: "1.0"}}})
	if err != nil {
		t.Fatalf("RenderBanner() error = %v", err)
	}
	if !strings.Contains(ev.last(), `getElementById("`+BannerID+`")`) {
		t.Fatalf("banner script does not replace by id")
	}
}

func TestEvalErrorsPropagate(t *testing.T) {
	want := cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, "table not found", nil)
	ev := &recordingEval{err: want}
	_, err := NewPage(ev, nil).Table(context.Background(), "Send")
	if !errors.Is(err, want) {
		t.Fatalf("Table() error = %v; want %v", err, want)
	}
}
