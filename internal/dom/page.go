// Package dom reads and annotates the exchange's transaction history page
// through JS evaluated in the tab.
package dom

import (
	"context"
	"strings"

	"github.com/dgnsrekt/pnl_agent/internal/cdpcontrol"
)

const (
	BannerID        = "pnl-summary-banner"
	ColumnAttr      = "data-pnl-col"
	CellAttr        = "data-pnl-cell"
	BusyAttr        = "data-pnl-busy"
	TriggerBinding  = "__pnlTrigger"
	MutationBinding = "__pnlMutation"
)

// DefaultLoadMoreLabels match buttons that append more history rows.
var DefaultLoadMoreLabels = []string{"load more", "show more", "view more", "more results"}

// Page is the typed surface of the history page.
type Page struct {
	ev             cdpcontrol.Evaluator
	loadMoreLabels []string
}

func NewPage(ev cdpcontrol.Evaluator, loadMoreLabels []string) *Page {
	if len(loadMoreLabels) == 0 {
		loadMoreLabels = DefaultLoadMoreLabels
	}
	labels := make([]string, 0, len(loadMoreLabels))
	for _, l := range loadMoreLabels {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			labels = append(labels, l)
		}
	}
	return &Page{ev: ev, loadMoreLabels: labels}
}

// jsTabHelpers resolves tabs, panels and tables by tab name.
const jsTabHelpers = `
function _norm(s) { return String(s || "").replace(/\s+/g, " ").trim().toLowerCase(); }
function _tabs() { return Array.prototype.slice.call(document.querySelectorAll('[role="tab"]')); }
function _tabByName(name) {
  var want = _norm(name); var tabs = _tabs();
  for (var i = 0; i < tabs.length; i++) { if (_norm(tabs[i].textContent) === want) return tabs[i]; }
  for (var j = 0; j < tabs.length; j++) { if (_norm(tabs[j].textContent).indexOf(want) >= 0) return tabs[j]; }
  return null;
}
function _selected(tab) {
  return tab.getAttribute("aria-selected") === "true" || tab.getAttribute("data-state") === "active";
}
function _panelFor(tab) {
  if (!tab) return null;
  var id = tab.getAttribute("aria-controls");
  var panel = id ? document.getElementById(id) : null;
  if (!panel && _selected(tab)) {
    var panels = document.querySelectorAll('[role="tabpanel"]');
    for (var i = 0; i < panels.length; i++) { if (!panels[i].hidden) { panel = panels[i]; break; } }
  }
  return panel;
}
function _tableIn(panel) { return panel ? panel.querySelector("table") : null; }
function _bodyRows(table) {
  if (!table) return [];
  var rows = table.tBodies && table.tBodies.length ? table.tBodies[0].rows : table.querySelectorAll("tr");
  return Array.prototype.filter.call(rows, function(r) { return !r.querySelector("th"); });
}
`

func (p *Page) eval(ctx context.Context, body string, out any) error {
	return p.ev.Eval(ctx, jsTabHelpers+body, out)
}

// Tabs lists the tab control's entries.
func (p *Page) Tabs(ctx context.Context) ([]TabState, error) {
	var out []TabState
	err := p.eval(ctx, `
var out = _tabs().map(function(t) {
  var panel = _panelFor(t); var table = _tableIn(panel); var r = t.getBoundingClientRect();
  return {name: String(t.textContent || "").trim(), selected: _selected(t), panel_id: panel ? (panel.id || "") : "",
    has_table: !!table, rows: _bodyRows(table).length, x: r.left + r.width / 2, y: r.top + r.height / 2,
    visible: r.width > 0 && r.height > 0};
});
`+cdpcontrol.JSOK("out"), &out)
	return out, err
}

// Activate clicks the named tab from page script.
func (p *Page) Activate(ctx context.Context, name string) error {
	return p.eval(ctx, `
var tab = _tabByName(`+cdpcontrol.JSString(name)+`);
if (!tab) { `+cdpcontrol.JSFail(cdpcontrol.CodeTabNotFound, `"tab not found: " + `+cdpcontrol.JSString(name))+` }
tab.scrollIntoView({block: "nearest"});
tab.click();
`+cdpcontrol.JSOK("true"), nil)
}

// SetSuppressed toggles the flag the click hook consults before reporting a
// tab click.
func (p *Page) SetSuppressed(ctx context.Context, on bool) error {
	return p.eval(ctx, `window.__pnlSuppress = `+boolJS(on)+`;
`+cdpcontrol.JSOK("window.__pnlSuppress"), nil)
}

// LoadMore clicks an enabled load-more control in the tab's panel, if any,
// and scrolls the panel and window to the bottom.
func (p *Page) LoadMore(ctx context.Context, tab string) (LoadMoreResult, error) {
	var out LoadMoreResult
	err := p.eval(ctx, `
var labels = `+cdpcontrol.JSJSON(p.loadMoreLabels)+`;
var panel = _panelFor(_tabByName(`+cdpcontrol.JSString(tab)+`));
if (!panel) { `+cdpcontrol.JSFail(cdpcontrol.CodeTabNotFound, `"panel not found"`)+` }
function _loadMore() {
  var buttons = panel.querySelectorAll("button, [role=button], a");
  for (var i = 0; i < buttons.length; i++) {
    var b = buttons[i]; var text = _norm(b.textContent);
    if (b.disabled || b.getAttribute("aria-disabled") === "true" || b.offsetParent === null) continue;
    for (var j = 0; j < labels.length; j++) { if (text.indexOf(labels[j]) >= 0) return b; }
  }
  return null;
}
var out = {clicked: false, scrolled: false, has_more: false, rows: 0};
var btn = _loadMore();
if (btn) { btn.click(); out.clicked = true; }
var scroller = panel;
while (scroller && scroller !== document.body && scroller.scrollHeight <= scroller.clientHeight) { scroller = scroller.parentElement; }
if (scroller && scroller !== document.body) { scroller.scrollTop = scroller.scrollHeight; out.scrolled = true; }
window.scrollTo(0, document.body.scrollHeight);
out.has_more = !!_loadMore();
out.rows = _bodyRows(_tableIn(panel)).length;
`+cdpcontrol.JSOK("out"), &out)
	return out, err
}

// RowCount is the number of body rows in the tab's table, 0 when absent.
func (p *Page) RowCount(ctx context.Context, tab string) (int, error) {
	var out int
	err := p.eval(ctx, `
var out = _bodyRows(_tableIn(_panelFor(_tabByName(`+cdpcontrol.JSString(tab)+`)))).length;
`+cdpcontrol.JSOK("out"), &out)
	return out, err
}

// ObservePanel installs a MutationObserver on the tab's panel that bumps a
// per-tab counter and notifies the mutation binding when it exists.
func (p *Page) ObservePanel(ctx context.Context, tab string) error {
	return p.eval(ctx, `
var name = `+cdpcontrol.JSString(tab)+`;
var panel = _panelFor(_tabByName(name));
if (!panel) { `+cdpcontrol.JSFail(cdpcontrol.CodeTabNotFound, `"panel not found: " + name`)+` }
window.__pnlMut = window.__pnlMut || {};
window.__pnlObs = window.__pnlObs || {};
if (window.__pnlObs[name]) { window.__pnlObs[name].disconnect(); }
window.__pnlMut[name] = window.__pnlMut[name] || 0;
var obs = new MutationObserver(function(records) {
  var structural = records.some(function(r) {
    if (r.type !== "childList") return false;
    var nodes = Array.prototype.slice.call(r.addedNodes).concat(Array.prototype.slice.call(r.removedNodes));
    return nodes.some(function(n) { return !(n.nodeType === 1 && (n.hasAttribute("`+CellAttr+`") || n.hasAttribute("`+ColumnAttr+`"))); });
  });
  if (!structural) return;
  window.__pnlMut[name]++;
  if (typeof window.`+MutationBinding+` === "function") { try { window.`+MutationBinding+`(name); } catch (_) {} }
});
obs.observe(panel, {childList: true, subtree: true});
window.__pnlObs[name] = obs;
`+cdpcontrol.JSOK("true"), nil)
}

// MutationSeq is the observer counter for the tab's panel.
func (p *Page) MutationSeq(ctx context.Context, tab string) (uint64, error) {
	var out uint64
	err := p.eval(ctx, `
var out = (window.__pnlMut && window.__pnlMut[`+cdpcontrol.JSString(tab)+`]) || 0;
`+cdpcontrol.JSOK("out"), &out)
	return out, err
}

// Table snapshots the tab's table; the injected columns are left out.
func (p *Page) Table(ctx context.Context, tab string) (Table, error) {
	var out Table
	err := p.eval(ctx, `
var panel = _panelFor(_tabByName(`+cdpcontrol.JSString(tab)+`));
var table = _tableIn(panel);
if (!table) { `+cdpcontrol.JSFail(cdpcontrol.CodeTabNotFound, `"table not found"`)+` }
function _own(cells) { return Array.prototype.filter.call(cells, function(c) { return !c.hasAttribute("`+CellAttr+`") && !c.hasAttribute("`+ColumnAttr+`"); }); }
var headRow = table.tHead && table.tHead.rows.length ? table.tHead.rows[0] : table.querySelector("tr");
var headers = headRow ? _own(headRow.cells).map(function(c) { return String(c.textContent || "").trim(); }) : [];
var rows = _bodyRows(table).map(function(tr, i) {
  return {index: i, cells: _own(tr.cells).map(function(c) {
    var t = c.querySelector("time");
    var attr = (t && (t.getAttribute("datetime") || t.getAttribute("title"))) || c.getAttribute("data-time") || c.getAttribute("datetime") || "";
    return {text: String(c.innerText || c.textContent || "").trim(), time: attr};
  })};
});
var out = {tab: `+cdpcontrol.JSString(tab)+`, headers: headers, rows: rows};
`+cdpcontrol.JSOK("out"), &out)
	return out, err
}

func boolJS(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
