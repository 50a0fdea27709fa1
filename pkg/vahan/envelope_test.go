package vahan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "vahanfetch/pkg/errors"
)

func TestParseEnvelopeTakesFirstUpdate(t *testing.T) {
	body := `<?xml version='1.0' encoding='UTF-8'?>
<partial-response><changes>
<update id="panel"><![CDATA[<div class="first">a</div>]]></update>
<update id="other"><![CDATA[<div>b</div>]]></update>
</changes></partial-response>`

	frag, err := parseEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, `<div class="first">a</div>`, frag.HTML)
}

func TestParseEnvelopeEmptyChanges(t *testing.T) {
	frag, err := parseEnvelope(`<partial-response><changes></changes></partial-response>`)
	require.NoError(t, err)
	assert.Empty(t, frag.HTML)
}

func TestParseEnvelopeMalformed(t *testing.T) {
	_, err := parseEnvelope(`<partial-response><changes>`)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeExtraction, errs.TypeOf(err))
}

func TestExtractViewStateUsesLastCDATABlock(t *testing.T) {
	body := `<partial-response><changes>
<update id="panel"><![CDATA[<div>markup</div>]]></update>
<update id="j_id1:javax.faces.ViewState:0"><![CDATA[-123:456]]></update>
</changes></partial-response>`

	token, ok := extractViewState(body)
	require.True(t, ok)
	assert.Equal(t, "-123:456", token)
}

func TestExtractViewStateAbsent(t *testing.T) {
	_, ok := extractViewState(`<partial-response><changes></changes></partial-response>`)
	assert.False(t, ok)
}

func TestFragmentHasResultPanel(t *testing.T) {
	with := &Fragment{HTML: `<div class="ui-panel ui-widget ui-widget-content ui-corner-all">x</div>`}
	without := &Fragment{HTML: `<div class="ui-panel">x</div>`}

	assert.True(t, with.HasResultPanel())
	assert.False(t, without.HasResultPanel())
}

func TestFragmentDocument(t *testing.T) {
	frag := &Fragment{HTML: `<table><tr><td>42</td></tr></table>`}
	doc, err := frag.Document()
	require.NoError(t, err)
	assert.Equal(t, "42", doc.Find("td").First().Text())
}
