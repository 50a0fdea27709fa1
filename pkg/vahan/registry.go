package vahan

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/logger"
)

// The server re-renders controls with fresh dynamic ids (j_idt...) on every
// view change. Each static container shelters a script marker that encodes
// the true dynamic id; which marker depends on the control class, expressed
// here as a small closed strategy set so each traversal is independently
// testable against fixture fragments.

type strategyKind int

const (
	strategyDirectNext strategyKind = iota
	strategyFixedOffset
	strategyLastThenOffset
)

// Strategy selects which script marker encodes a container's dynamic id
type Strategy struct {
	kind   strategyKind
	offset int
}

// DirectNext takes the first script marker at or after the container
func DirectNext() Strategy {
	return Strategy{kind: strategyDirectNext}
}

// FixedOffset takes the nth script marker after the container start
func FixedOffset(n int) Strategy {
	return Strategy{kind: strategyFixedOffset, offset: n}
}

// LastThenOffset takes the last script marker inside the container, then
// walks n markers forward from it
func LastThenOffset(n int) Strategy {
	return Strategy{kind: strategyLastThenOffset, offset: n}
}

// Locate finds the dynamic id encoded by the script marker the strategy
// selects, relative to the container with the given static id. The marker's
// own id carries an "_s" suffix which is stripped.
func Locate(doc *goquery.Document, containerID string, strat Strategy) (string, error) {
	sel := doc.Find("#" + containerID)
	if sel.Length() == 0 {
		return "", errs.Newf(errs.ErrorTypeExtraction, "container %q not found", containerID)
	}
	container := sel.Get(0)

	inside, from := scriptMarkers(doc, container)

	var marker *html.Node
	switch strat.kind {
	case strategyDirectNext:
		if len(from) > 0 {
			marker = from[0]
		}
	case strategyFixedOffset:
		if strat.offset >= 1 && len(from) >= strat.offset {
			marker = from[strat.offset-1]
		}
	case strategyLastThenOffset:
		if len(inside) > 0 {
			last := inside[len(inside)-1]
			idx := indexOfNode(from, last)
			if idx >= 0 && idx+strat.offset < len(from) {
				marker = from[idx+strat.offset]
			}
		}
	}

	if marker == nil {
		return "", errs.Newf(errs.ErrorTypeExtraction, "no script marker for container %q", containerID)
	}

	id := nodeAttr(marker, "id")
	if id == "" {
		return "", errs.Newf(errs.ErrorTypeExtraction, "script marker for container %q has no id", containerID)
	}
	return strings.TrimSuffix(id, "_s"), nil
}

// scriptMarkers collects every script node at or after the container start in
// document order (descendants first, then following content), plus the subset
// inside the container itself.
func scriptMarkers(doc *goquery.Document, container *html.Node) (inside, from []*html.Node) {
	seen := false
	depth := 0

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		entered := n == container
		if entered {
			seen = true
		}
		if seen && !entered && n.Type == html.ElementNode && n.Data == "script" {
			from = append(from, n)
			if depth > 0 {
				inside = append(inside, n)
			}
		}
		if entered {
			depth++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if entered {
			depth--
		}
	}
	walk(doc.Get(0))
	return inside, from
}

func indexOfNode(nodes []*html.Node, target *html.Node) int {
	for i, n := range nodes {
		if n == target {
			return i
		}
	}
	return -1
}

func nodeAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// dynamicIDPrefix is what every framework-generated control id starts with
const dynamicIDPrefix = "j_idt"

// controlStrategies pairs each container class with its marker traversal
var controlStrategies = []struct {
	containers []string
	strat      Strategy
}{
	{[]string{ControlInitialBlock, ControlComparison}, DirectNext()},
	{MainPagePanels, LastThenOffset(2)},
	{CategoryPanelShells, LastThenOffset(2)},
	{ChartShells, FixedOffset(3)},
	{DetailPanels, FixedOffset(4)},
}

// ExtractControls rebuilds the control id registry from a rendered page or
// fragment, updating the session in place. Individual misses are tolerated
// here; the navigation layer raises session drift when a control it needs
// was never registered.
func ExtractControls(doc *goquery.Document, s *Session, log logger.Logger) {
	// State selector keeps its own id scheme: the select wrapping the
	// all-states option, with the framework's "_input" suffix stripped.
	doc.Find("option").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		if !strings.Contains(opt.Text(), StateSelectorOptionText) {
			return true
		}
		if id, ok := opt.Parent().Attr("id"); ok && id != "" {
			s.Controls[ControlState] = strings.TrimSuffix(id, "_input")
			return false
		}
		return true
	})

	for _, group := range controlStrategies {
		for _, name := range group.containers {
			id, err := Locate(doc, name, group.strat)
			if err != nil || !strings.HasPrefix(id, dynamicIDPrefix) {
				continue
			}
			s.Controls[name] = id
			log.DebugWithFields("registered control id", map[string]interface{}{
				"control": name,
				"id":      id,
			})
		}
	}

	// The comparison toggle is sometimes rendered as a bare refresh button
	// rather than a marked container
	if _, ok := s.Controls[ControlComparison]; !ok {
		if id := locateComparisonButton(doc); id != "" {
			s.Controls[ControlComparison] = id
			log.DebugWithFields("registered control id", map[string]interface{}{
				"control": ControlComparison,
				"id":      id,
			})
		}
	}

	// The header panel keeps whatever id was registered first; re-renders do
	// not replace it
	if _, ok := s.Controls[ControlPanelHeader]; !ok {
		if id, err := Locate(doc, ControlPanelHeader, DirectNext()); err == nil {
			s.Controls[ControlPanelHeader] = id
		}
	}
}

// locateComparisonButton finds the comparison toggle via its refresh-button
// onclick handler
func locateComparisonButton(doc *goquery.Document) string {
	var found string
	doc.Find("button.ui-button.ui-widget.ui-state-default.ui-corner-all.ui-button-icon-only").
		EachWithBreak(func(_ int, btn *goquery.Selection) bool {
			onclick, _ := btn.Attr("onclick")
			if !strings.Contains(onclick, "comparison") || !strings.Contains(onclick, "dashboardContentsPanel") {
				return true
			}
			_, from := scriptMarkers(doc, btn.Get(0))
			if len(from) == 0 {
				return true
			}
			id := strings.TrimSuffix(nodeAttr(from[0], "id"), "_s")
			if strings.HasPrefix(id, dynamicIDPrefix) {
				found = id
				return false
			}
			return true
		})
	return found
}

// ExtractYears pulls the per-category year-link ids out of a rendered
// category panel. The first link is the "till today" aggregate and is
// skipped; the remainder pair positionally with the tracked year list,
// newest first.
func ExtractYears(doc *goquery.Document, category Category, years []string) (map[string]string, error) {
	panel := doc.Find("div#pnl_" + string(category)).First()
	if panel.Length() == 0 {
		return nil, errs.Newf(errs.ErrorTypeExtraction, "category panel pnl_%s not found", category)
	}

	links := panel.Find("a.ui-commandlink.ui-widget.font-color")
	ids := make(map[string]string)
	links.Each(func(i int, link *goquery.Selection) {
		if i == 0 {
			return // "till today" link
		}
		if i-1 >= len(years) {
			return
		}
		if id, ok := link.Attr("id"); ok && id != "" {
			ids[years[i-1]] = id
		}
	})
	return ids, nil
}

// ExtractMonths pulls the month-link ids out of a rendered header fragment.
// The first grid cell is a label and is skipped; the remainder pair
// positionally with the fixed month list. Fewer than twelve resolved months
// is a legitimate no-data condition, not an error; the caller synthesizes
// placeholders for the gaps.
func ExtractMonths(doc *goquery.Document) map[string]string {
	ids := make(map[string]string)
	doc.Find("div.ui-grid-col-1.link_month").Each(func(i int, cell *goquery.Selection) {
		if i == 0 {
			return
		}
		if i-1 >= len(Months) {
			return
		}
		if id, ok := cell.Find("a").First().Attr("id"); ok && id != "" {
			ids[Months[i-1]] = id
		}
	})
	return ids
}

// RTOOption is one sub-region entry from the post-state-selection dropdown
type RTOOption struct {
	Code string
	Name string
}

// ExtractRTOOptions parses the RTO dropdown rendered after a state
// selection, skipping the leading placeholder option
func ExtractRTOOptions(doc *goquery.Document) []RTOOption {
	var options []RTOOption
	doc.Find("option").Each(func(i int, opt *goquery.Selection) {
		if i == 0 {
			return // placeholder
		}
		code, _ := opt.Attr("value")
		name := strings.TrimSpace(opt.Text())
		if code == "" {
			return
		}
		options = append(options, RTOOption{Code: code, Name: name})
	})
	return options
}
