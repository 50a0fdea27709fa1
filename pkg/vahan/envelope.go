package vahan

import (
	"encoding/xml"
	"strings"

	"github.com/PuerkitoBio/goquery"
	errs "vahanfetch/pkg/errors"
)

// Fragment is the HTML payload of one partial-response exchange
type Fragment struct {
	// HTML is the first update's rendered markup
	HTML string
}

// Document parses the fragment markup for traversal
func (f *Fragment) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.HTML))
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeExtraction, "failed to parse fragment: %v", err)
	}
	return doc, nil
}

// HasResultPanel reports whether the fragment carries the expected result
// container
func (f *Fragment) HasResultPanel() bool {
	return strings.Contains(f.HTML, ResultPanelMarker)
}

// partialResponse is the XML envelope wrapping every exchange response. The
// first update node carries the refreshed markup; the view-state update is
// handled separately via the CDATA scan.
type partialResponse struct {
	XMLName xml.Name `xml:"partial-response"`
	Changes struct {
		Updates []struct {
			ID   string `xml:"id,attr"`
			Body string `xml:",chardata"`
		} `xml:"update"`
	} `xml:"changes"`
}

// parseEnvelope extracts the fragment from a raw partial-response body
func parseEnvelope(body string) (*Fragment, error) {
	var env partialResponse
	if err := xml.Unmarshal([]byte(body), &env); err != nil {
		return nil, errs.Newf(errs.ErrorTypeExtraction, "malformed partial response: %v", err)
	}
	if len(env.Changes.Updates) == 0 {
		return &Fragment{}, nil
	}
	return &Fragment{HTML: env.Changes.Updates[0].Body}, nil
}

// extractViewState locates the CDATA-delimited token payload in the raw
// response. The last CDATA block in a partial response is always the view
// state update.
func extractViewState(body string) (string, bool) {
	start := strings.LastIndex(body, "[CDATA[")
	end := strings.LastIndex(body, "]]")
	if start < 0 || end <= start {
		return "", false
	}
	return body[start+len("[CDATA[") : end], true
}
