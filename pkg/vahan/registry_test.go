package vahan

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/logger"
)

func parseDoc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestLocateDirectNextPrefersDescendantMarker(t *testing.T) {
	doc := parseDoc(t, `<div id="box"><script id="j_idt10_s"></script></div><script id="j_idt11_s"></script>`)

	id, err := Locate(doc, "box", DirectNext())
	require.NoError(t, err)
	assert.Equal(t, "j_idt10", id)
}

func TestLocateDirectNextFallsThroughToFollowingMarker(t *testing.T) {
	doc := parseDoc(t, `<div id="box"></div><div><script id="j_idt12_s"></script></div>`)

	id, err := Locate(doc, "box", DirectNext())
	require.NoError(t, err)
	assert.Equal(t, "j_idt12", id)
}

func TestLocateFixedOffset(t *testing.T) {
	doc := parseDoc(t, `<div id="chart"></div>
<script id="j_idt20_s"></script>
<script id="j_idt21_s"></script>
<script id="j_idt22_s"></script>`)

	id, err := Locate(doc, "chart", FixedOffset(3))
	require.NoError(t, err)
	assert.Equal(t, "j_idt22", id)
}

func TestLocateLastThenOffset(t *testing.T) {
	doc := parseDoc(t, `<div id="shell">
<script id="j_idt30_s"></script>
<script id="j_idt31_s"></script>
</div>
<script id="j_idt32_s"></script>
<script id="j_idt33_s"></script>`)

	id, err := Locate(doc, "shell", LastThenOffset(2))
	require.NoError(t, err)
	assert.Equal(t, "j_idt33", id)
}

func TestLocateMissingContainer(t *testing.T) {
	doc := parseDoc(t, `<div id="other"></div>`)

	_, err := Locate(doc, "box", DirectNext())
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeExtraction, errs.TypeOf(err))
}

func TestLocateNotEnoughMarkers(t *testing.T) {
	doc := parseDoc(t, `<div id="chart"></div><script id="j_idt20_s"></script>`)

	_, err := Locate(doc, "chart", FixedOffset(3))
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeExtraction, errs.TypeOf(err))
}

func TestExtractControlsRegistersEveryControlClass(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	b.WriteString(`<select id="stateSel_input"><option value="-1">All Vahan4 Running States (1/2)</option></select>`)
	// direct-next container
	b.WriteString(`<div id="initialBlock"><script id="j_idt40_s"></script></div>`)
	// shell: last marker inside, then two forward
	b.WriteString(`<div id="pnl_regn"><script id="j_idt50_s"></script></div>`)
	b.WriteString(`<script id="j_idt51_s"></script><script id="j_idt52_s"></script>`)
	// chart: third marker after start
	b.WriteString(`<div id="regnYearWiseCompChart"></div>`)
	b.WriteString(`<script id="j_idt60_s"></script><script id="j_idt61_s"></script><script id="j_idt62_s"></script>`)
	// detail panel: fourth marker after start
	b.WriteString(`<div id="panel_fuel"></div>`)
	b.WriteString(`<script id="j_idt70_s"></script><script id="j_idt71_s"></script>`)
	b.WriteString(`<script id="j_idt72_s"></script><script id="j_idt73_s"></script>`)
	b.WriteString(`</body></html>`)

	doc := parseDoc(t, b.String())
	session := NewSession()
	ExtractControls(doc, session, logger.GetLogger())

	assert.Equal(t, "stateSel", session.Controls[ControlState])
	assert.Equal(t, "j_idt40", session.Controls[ControlInitialBlock])
	assert.Equal(t, "j_idt52", session.Controls["pnl_regn"])
	assert.Equal(t, "j_idt62", session.Controls["regnYearWiseCompChart"])
	assert.Equal(t, "j_idt73", session.Controls["panel_fuel"])
}

func TestExtractControlsRejectsNonDynamicIDs(t *testing.T) {
	doc := parseDoc(t, `<div id="initialBlock"><script id="staticWidget_s"></script></div>`)
	session := NewSession()
	ExtractControls(doc, session, logger.GetLogger())

	_, ok := session.Controls[ControlInitialBlock]
	assert.False(t, ok)
}

func TestExtractControlsComparisonButtonFallback(t *testing.T) {
	doc := parseDoc(t, `<html><body>
<button class="ui-button ui-widget ui-state-default ui-corner-all ui-button-icon-only"
 onclick="PrimeFaces.ab({s:'j_idt77',u:'comparison dashboardContentsPanel'});"></button>
<script id="j_idt77_s"></script>
</body></html>`)

	session := NewSession()
	ExtractControls(doc, session, logger.GetLogger())

	assert.Equal(t, "j_idt77", session.Controls[ControlComparison])
}

func TestExtractControlsKeepsFirstPanelHeader(t *testing.T) {
	doc := parseDoc(t, `<div id="panelHeader"><script id="j_idt90_s"></script></div>`)

	session := NewSession()
	session.Controls[ControlPanelHeader] = "j_idt80"
	ExtractControls(doc, session, logger.GetLogger())

	assert.Equal(t, "j_idt80", session.Controls[ControlPanelHeader])

	fresh := NewSession()
	ExtractControls(doc, fresh, logger.GetLogger())
	assert.Equal(t, "j_idt90", fresh.Controls[ControlPanelHeader])
}

func TestExtractYearsSkipsAggregateLink(t *testing.T) {
	doc := parseDoc(t, `<div id="pnl_regn">
<a id="j_idt100" class="ui-commandlink ui-widget font-color">Till Today</a>
<a id="j_idt101" class="ui-commandlink ui-widget font-color">2026</a>
<a id="j_idt102" class="ui-commandlink ui-widget font-color">2025</a>
</div>`)

	ids, err := ExtractYears(doc, CategoryRegistration, []string{"2026", "2025"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"2026": "j_idt101",
		"2025": "j_idt102",
	}, ids)
}

func TestExtractYearsIgnoresLinksBeyondTrackedYears(t *testing.T) {
	doc := parseDoc(t, `<div id="pnl_trans">
<a id="j_idt100" class="ui-commandlink ui-widget font-color">Till Today</a>
<a id="j_idt101" class="ui-commandlink ui-widget font-color">2026</a>
<a id="j_idt102" class="ui-commandlink ui-widget font-color">2025</a>
</div>`)

	ids, err := ExtractYears(doc, CategoryTransaction, []string{"2026"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2026": "j_idt101"}, ids)
}

func TestExtractYearsMissingPanel(t *testing.T) {
	doc := parseDoc(t, `<div id="pnl_regn"></div>`)

	_, err := ExtractYears(doc, CategoryPermit, []string{"2026"})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeExtraction, errs.TypeOf(err))
}

func TestExtractMonthsPairsGridCellsPositionally(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<div class="ui-grid-col-1 link_month">Month</div>`)
	for i := range Months[:10] {
		b.WriteString(`<div class="ui-grid-col-1 link_month"><a id="j_idt1`)
		b.WriteString(string(rune('0' + i)))
		b.WriteString(`"></a></div>`)
	}

	ids := ExtractMonths(parseDoc(t, b.String()))
	assert.Len(t, ids, 10)
	assert.Equal(t, "j_idt10", ids["JAN"])
	assert.Equal(t, "j_idt19", ids["OCT"])
	_, ok := ids["NOV"]
	assert.False(t, ok)
}

func TestExtractMonthsSkipsCellsWithoutLinks(t *testing.T) {
	doc := parseDoc(t, `<div class="ui-grid-col-1 link_month">Month</div>
<div class="ui-grid-col-1 link_month"><a id="j_idt10"></a></div>
<div class="ui-grid-col-1 link_month"></div>
<div class="ui-grid-col-1 link_month"><a id="j_idt12"></a></div>`)

	ids := ExtractMonths(doc)
	assert.Equal(t, map[string]string{
		"JAN": "j_idt10",
		"MAR": "j_idt12",
	}, ids)
}

func TestExtractRTOOptions(t *testing.T) {
	doc := parseDoc(t, `<select id="selectedRto_input">
<option value="-1">Select Office</option>
<option value="5">Bengaluru Central RTO - KA01(1/2)</option>
<option value="">broken</option>
<option value="7">Rajajinagar RTO - KA02(2/2)</option>
</select>`)

	options := ExtractRTOOptions(doc)
	require.Len(t, options, 2)
	assert.Equal(t, RTOOption{Code: "5", Name: "Bengaluru Central RTO - KA01(1/2)"}, options[0])
	assert.Equal(t, RTOOption{Code: "7", Name: "Rajajinagar RTO - KA02(2/2)"}, options[1])
}
