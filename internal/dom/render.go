package dom

import (
	"context"

	"github.com/dgnsrekt/pnl_agent/internal/cdpcontrol"
)

const jsToneHelper = `
function _tone(el, tone) {
  if (tone === "gain") el.style.color = "#16a34a";
  else if (tone === "loss") el.style.color = "#dc2626";
  else if (tone === "muted") el.style.color = "#9ca3af";
}
`

// RenderTable replaces previously injected header and row cells of the tab's
// table with the annotation.
func (p *Page) RenderTable(ctx context.Context, a TableAnnotation) error {
	return p.eval(ctx, jsToneHelper+`
var a = `+cdpcontrol.JSJSON(a)+`;
var table = _tableIn(_panelFor(_tabByName(a.tab)));
if (!table) { `+cdpcontrol.JSFail(cdpcontrol.CodeTabNotFound, `"table not found"`)+` }
Array.prototype.forEach.call(table.querySelectorAll("[`+ColumnAttr+`],[`+CellAttr+`]"), function(el) { el.remove(); });
var headRow = table.tHead && table.tHead.rows.length ? table.tHead.rows[0] : table.querySelector("tr");
if (headRow) {
  (a.headers || []).forEach(function(h, i) {
    var th = document.createElement("th"); th.setAttribute("`+ColumnAttr+`", String(i)); th.textContent = h;
    headRow.appendChild(th);
  });
}
var rows = _bodyRows(table);
(a.rows || []).forEach(function(ra) {
  var tr = rows[ra.index]; if (!tr) return;
  (ra.cells || []).forEach(function(c, i) {
    var td = document.createElement("td"); td.setAttribute("`+CellAttr+`", String(i)); td.textContent = c.text;
    _tone(td, c.tone); tr.appendChild(td);
  });
});
`+cdpcontrol.JSOK("rows.length"), nil)
}

// RenderBanner replaces the summary banner wholesale.
func (p *Page) RenderBanner(ctx context.Context, b Banner) error {
	return p.eval(ctx, jsToneHelper+`
var b = `+cdpcontrol.JSJSON(b)+`;
var old = document.getElementById("`+BannerID+`"); if (old) old.remove();
var host = document.createElement("section"); host.id = "`+BannerID+`";
host.style.cssText = "margin:8px 0;padding:8px 12px;border:1px solid #e5e7eb;border-radius:6px;font:13px/1.4 system-ui,sans-serif";
var title = document.createElement("strong"); title.textContent = b.title; host.appendChild(title);
var list = document.createElement("dl"); list.style.cssText = "display:grid;grid-template-columns:max-content auto;gap:2px 12px;margin:6px 0 0";
(b.lines || []).forEach(function(l) {
  var dt = document.createElement("dt"); dt.textContent = l.label;
  var dd = document.createElement("dd"); dd.textContent = l.value; dd.style.margin = "0"; _tone(dd, l.tone);
  list.appendChild(dt); list.appendChild(dd);
});
host.appendChild(list);
if (b.note) { var note = document.createElement("small"); note.textContent = b.note; _tone(note, "muted"); host.appendChild(note); }
var anchor = document.querySelector('[role="tablist"]');
if (anchor && anchor.parentNode) { anchor.parentNode.insertBefore(host, anchor); } else { document.body.insertBefore(host, document.body.firstChild); }
`+cdpcontrol.JSOK("true"), nil)
}

// RemoveBanner deletes the summary banner if present.
func (p *Page) RemoveBanner(ctx context.Context) error {
	return p.eval(ctx, `
var old = document.getElementById("`+BannerID+`"); if (old) old.remove();
`+cdpcontrol.JSOK("!!old"), nil)
}

// SetBusy marks the document while a refresh cycle runs.
func (p *Page) SetBusy(ctx context.Context, busy bool) error {
	return p.eval(ctx, `
if (`+boolJS(busy)+`) { document.documentElement.setAttribute("`+BusyAttr+`", "1"); }
else { document.documentElement.removeAttribute("`+BusyAttr+`"); }
`+cdpcontrol.JSOK("true"), nil)
}

// InstallHooks registers a capture-phase click listener on the tab list that
// reports user tab clicks through the trigger binding, unless suppressed.
// Idempotent per document.
func (p *Page) InstallHooks(ctx context.Context) error {
	return p.eval(ctx, `
if (!window.__pnlHooked) {
  document.addEventListener("click", function(ev) {
    var tab = ev.target && ev.target.closest ? ev.target.closest('[role="tab"]') : null;
    if (!tab || window.__pnlSuppress) return;
    if (typeof window.`+TriggerBinding+` === "function") {
      try { window.`+TriggerBinding+`(String(tab.textContent || "").trim()); } catch (_) {}
    }
  }, true);
  window.__pnlHooked = true;
}
`+cdpcontrol.JSOK("true"), nil)
}
