package vahan

// Category is one of the four reporting domains on the dashboard
type Category string

const (
	CategoryRegistration Category = "regn"
	CategoryTransaction  Category = "trans"
	CategoryRevenue      Category = "revenue"
	CategoryPermit       Category = "permit"
)

// Categories lists the reporting domains in their declared visit order
var Categories = []Category{
	CategoryRegistration,
	CategoryTransaction,
	CategoryRevenue,
	CategoryPermit,
}

// Panel is one named metric table within a category. Control is the static
// container id on the page, File the artifact file stem it is stored under.
type Panel struct {
	Control string
	File    string
}

// categoryPanels maps each category to its fixed panel set, in fetch order
var categoryPanels = map[Category][]Panel{
	CategoryRegistration: {
		{Control: "panel_vhClass", File: "class"},
		{Control: "panel_vhCatg", File: "category"},
		{Control: "panel_fuel", File: "fuel"},
		{Control: "panel_norms", File: "standard"},
		{Control: "panel_maker", File: "manufacturer"},
	},
	CategoryTransaction: {
		{Control: "panel_trans", File: "transaction"},
	},
	CategoryRevenue: {
		{Control: "panel_rev_fee", File: "fee"},
		{Control: "panel_rev_tax", File: "tax"},
	},
	CategoryPermit: {
		{Control: "panel_permitType", File: "type"},
		{Control: "panel_permitCatg", File: "category"},
		{Control: "panel_permitPurpose", File: "purpose"},
	},
}

// Panels returns the category's fixed panel set
func (c Category) Panels() []Panel {
	return categoryPanels[c]
}

// DirName returns the artifact directory name for the category
func (c Category) DirName() string {
	switch c {
	case CategoryRegistration:
		return "registration"
	case CategoryTransaction:
		return "transaction"
	case CategoryRevenue:
		return "revenue"
	case CategoryPermit:
		return "permit"
	}
	return string(c)
}

// BoxYearLabel returns the label the server expects alongside a year
// selection for the category. Revenue and permit use abbreviated forms.
func (c Category) BoxYearLabel() string {
	switch c {
	case CategoryRevenue:
		return "rev"
	case CategoryPermit:
		return "per"
	}
	return string(c)
}

// CategoryForDir maps an artifact directory name back to its category
func CategoryForDir(dir string) (Category, bool) {
	for _, c := range Categories {
		if c.DirName() == dir {
			return c, true
		}
	}
	return "", false
}

// Months lists the month markers in calendar order, as the dashboard renders
// them in the header month grid
var Months = []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

// MonthNumber returns the 1-based calendar number of a month marker, or 0 if
// the marker is unknown
func MonthNumber(month string) int {
	for i, m := range Months {
		if m == month {
			return i + 1
		}
	}
	return 0
}

// Control names used as render targets and registry keys. The container ids
// are static; the dynamic j_idt ids they shelter are re-extracted after every
// re-render.
const (
	ControlInitialBlock = "initialBlock"
	ControlComparison   = "comparison"
	ControlPanelHeader  = "panelHeader"
	ControlState        = "state"
	// renderInfoMsg is a static id, usable as a render target without lookup
	RenderInfoMsg = "infoMsg"
)

// MainPagePanels are the dashboard front-page panel shells, including the tax
// defaulter shell which has no category panel of its own
var MainPagePanels = []string{
	"mainpagepnl_regn",
	"mainpagepnl_trans",
	"mainpagepnl_revenue",
	"mainpagepnl_permit",
	"mainpagepnl_taxDef",
}

// CategoryPanelShells are the per-category panel containers carrying the year
// link lists
var CategoryPanelShells = []string{
	"pnl_regn",
	"pnl_trans",
	"pnl_revenue",
	"pnl_permit",
}

// ChartShells are the front-page chart containers, initialized once per
// session so the server considers the view fully rendered
var ChartShells = []string{
	"regnYearWiseCompChart",
	"transYearWiseBestChart",
	"revYearWiseBestChart",
	"perYearWiseBestChart",
	"TotalSitesComp2",
}

// DetailPanels are the metric-detail containers across all four categories
var DetailPanels = []string{
	"panel_vhClass",
	"panel_vhCatg",
	"panel_fuel",
	"panel_norms",
	"panel_maker",
	"panel_trans",
	"panel_rev_fee",
	"panel_rev_tax",
	"panel_permitType",
	"panel_permitCatg",
	"panel_permitPurpose",
}

// ResultPanelMarker is the container class every well-formed panel fragment
// carries; its absence marks a structurally bad fetch.
const ResultPanelMarker = `class="ui-panel ui-widget ui-widget-content ui-corner-all"`

// ExpirySentinel appears in the response body when the server has discarded
// the view state backing our session.
const ExpirySentinel = "javax.faces.application.ViewExpiredException"

// StateSelectorOptionText identifies the state dropdown on the landing page
const StateSelectorOptionText = "All Vahan4 Running States"
