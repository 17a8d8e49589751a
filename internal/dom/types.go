package dom

// TabState is one entry of the page's tab list.
type TabState struct {
	Name     string  `json:"name"`
	Selected bool    `json:"selected"`
	PanelID  string  `json:"panel_id,omitempty"`
	HasTable bool    `json:"has_table"`
	Rows     int     `json:"rows"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Visible  bool    `json:"visible"`
}

// Cell is the displayed text of a table cell plus any machine-readable time
// attribute found on it or a <time> child.
type Cell struct {
	Text string `json:"text"`
	Time string `json:"time,omitempty"`
}

type Row struct {
	Index int    `json:"index"`
	Cells []Cell `json:"cells"`
}

// Cell returns the cell at i, or an empty cell when the row is short.
func (r Row) Cell(i int) Cell {
	if i < 0 || i >= len(r.Cells) {
		return Cell{}
	}
	return r.Cells[i]
}

// Table is a snapshot of a tab panel's table.
type Table struct {
	Tab     string   `json:"tab"`
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// LoadMoreResult reports what a load-more pass did and whether an enabled
// load-more control is still on the page.
type LoadMoreResult struct {
	Clicked  bool `json:"clicked"`
	Scrolled bool `json:"scrolled"`
	HasMore  bool `json:"has_more"`
	Rows     int  `json:"rows"`
}

// Tone colours an injected value.
type Tone string

const (
	ToneNone Tone = ""
	ToneGain Tone = "gain"
	ToneLoss Tone = "loss"
	ToneMute Tone = "muted"
)

type AnnotatedCell struct {
	Text string `json:"text"`
	Tone Tone   `json:"tone,omitempty"`
}

type RowAnnotation struct {
	Index int             `json:"index"`
	Cells []AnnotatedCell `json:"cells"`
}

// TableAnnotation is the set of extra columns injected into a tab's table.
type TableAnnotation struct {
	Tab     string          `json:"tab"`
	Headers []string        `json:"headers"`
	Rows    []RowAnnotation `json:"rows"`
}

type BannerLine struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Tone  Tone   `json:"tone,omitempty"`
}

// Banner is the summary element placed above the tab list.
type Banner struct {
	Title string       `json:"title"`
	Lines []BannerLine `json:"lines"`
	Note  string       `json:"note,omitempty"`
}
