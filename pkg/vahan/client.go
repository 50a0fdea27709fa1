package vahan

import (
	"bytes"
	"context"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"vahanfetch/pkg/config"
	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/logger"
	"vahanfetch/pkg/ratelimit"
	"vahanfetch/pkg/retry"
)

// transportRetryAttempts bounds the low-level retry around one HTTP call.
// Failures that outlive it escalate to full session recovery.
const transportRetryAttempts = 3

// Client owns the transport session toward the dashboard. It issues the
// form-encoded partial-ajax exchanges the component framework expects and
// keeps the session's view state fresh from each response.
type Client struct {
	cfg     config.DashboardConfig
	http    *resty.Client
	limiter ratelimit.Limiter
	backoff retry.BackoffStrategy
	log     logger.Logger
}

// NewClient creates a dashboard client. The limiter paces every exchange; a
// nil limiter disables pacing.
func NewClient(cfg config.DashboardConfig, limiter ratelimit.Limiter, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	c := &Client{
		cfg:     cfg,
		limiter: limiter,
		backoff: retry.DefaultExponentialBackoff(),
		log:     log,
	}
	c.Reset()
	return c
}

// Reset tears the transport down completely: fresh connection pool, empty
// cookie jar. Cheap enough to perform on every recoverable failure.
func (c *Client) Reset() {
	client := resty.New()
	client.SetBaseURL(c.cfg.BaseURL)
	jar, err := cookiejar.New(nil)
	if err == nil {
		client.SetCookieJar(jar)
	}
	client.SetTimeout(c.cfg.RequestTimeout)
	client.SetHeader("User-Agent", c.cfg.UserAgent)
	c.http = client
}

// Initialize establishes a session: fetches the landing page and extracts
// the initial view state. The returned document is the fully rendered page
// the id registry is built from.
func (c *Client) Initialize(ctx context.Context) (*Session, *goquery.Document, error) {
	c.pace()

	start := time.Now()
	var res *resty.Response
	err := c.withTransportRetry(ctx, func() error {
		r, rerr := c.http.R().SetContext(ctx).Get("")
		if rerr != nil {
			return errs.Newf(errs.ErrorTypeTransport, "landing page fetch failed: %v", rerr)
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if res.StatusCode() != 200 {
		return nil, nil, errs.Newf(errs.ErrorTypeTransport, "landing page returned status %d", res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, nil, errs.Newf(errs.ErrorTypeExtraction, "failed to parse landing page: %v", err)
	}

	viewState := doc.Find(`input[name="javax.faces.ViewState"]`).AttrOr("value", "")
	if viewState == "" {
		return nil, nil, errs.New(errs.ErrorTypeExtraction, "view state missing from landing page")
	}

	session := NewSession()
	session.ViewState = viewState

	c.log.DebugWithFields("session established", map[string]interface{}{
		"duration": time.Since(start),
	})

	return session, doc, nil
}

// Exchange issues one partial-ajax exchange, merging updates into the fixed
// boilerplate parameter set plus the current view state. On success the
// session's view state is refreshed from the response and the rendered
// fragment returned. The expiry sentinel fails fast before any extraction.
func (c *Client) Exchange(ctx context.Context, s *Session, updates map[string]string) (*Fragment, error) {
	c.pace()

	form := c.boilerplate(s)
	for k, v := range updates {
		form[k] = v
	}

	start := time.Now()
	var res *resty.Response
	err := c.withTransportRetry(ctx, func() error {
		r, rerr := c.http.R().
			SetContext(ctx).
			SetFormData(form).
			Post("")
		if rerr != nil {
			return errs.Newf(errs.ErrorTypeTransport, "exchange failed: %v", rerr)
		}
		res = r
		return nil
	})
	duration := time.Since(start)
	if err != nil {
		c.log.ErrorWithFields("exchange failed", map[string]interface{}{
			"source":   updates["javax.faces.source"],
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, err
	}

	body := string(res.Body())

	if strings.Contains(body, ExpirySentinel) {
		return nil, errs.New(errs.ErrorTypeSessionExpired, "server reported expired view state")
	}

	// Token refresh is best effort: a response without a CDATA payload keeps
	// the current token, and the next expiry forces full recovery anyway.
	if viewState, ok := extractViewState(body); ok {
		s.ViewState = viewState
	} else {
		c.log.WarnWithFields("could not extract view state from response", map[string]interface{}{
			"source": updates["javax.faces.source"],
		})
	}

	c.log.DebugWithFields("exchange completed", map[string]interface{}{
		"source":   updates["javax.faces.source"],
		"status":   res.StatusCode(),
		"duration": duration,
	})

	return parseEnvelope(body)
}

// BaseExchange issues an exchange with the standard source/render parameter
// shape shared by panel and chart initialization requests.
func (c *Client) BaseExchange(ctx context.Context, s *Session, source, render, state, rto string) (*Fragment, error) {
	updates := map[string]string{
		"javax.faces.source":          source,
		"javax.faces.partial.execute": "@all",
		"javax.faces.partial.render":  render,
		source:                        source,
		"selectedRto_input":           rto,
	}
	if id, ok := s.Control(ControlState); ok {
		updates[id+"_input"] = state
	}
	return c.Exchange(ctx, s, updates)
}

// boilerplate is the fixed parameter set the component framework expects on
// every exchange
func (c *Client) boilerplate(s *Session) map[string]string {
	form := map[string]string{
		"javax.faces.partial.ajax":      "true",
		"masterLayout_formlogin":        "masterLayout_formlogin",
		"j_idt17_focus":                 "",
		"j_idt17_input":                 "M",
		"j_idt30_focus":                 "",
		"j_idt30_input":                 "A",
		"selectedRto_focus":             "",
		"selectedRto_input":             "-1",
		"selectedType_focus":            "",
		"selectedType_filter":           "",
		"regnYearWiseCompChart_active":  "0",
		"transYearWiseBestChart_active": "0",
		"revYearWiseBestChart_active":   "0",
		"perYearWiseBestChart_active":   "0",
		"TotalSitesComp2_active":        "0",
		"javax.faces.ViewState":         s.ViewState,
	}
	if id, ok := s.Control(ControlState); ok {
		form[id+"_focus"] = ""
		form[id+"_input"] = "-1"
	}
	return form
}

// withTransportRetry retries a single HTTP call on transport failures with
// bounded exponential backoff. Only transport errors are retried here;
// everything else belongs to the session-recovery layer.
func (c *Client) withTransportRetry(ctx context.Context, op retry.Operation) error {
	return retry.Do(op, &retry.Config{
		MaxAttempts: transportRetryAttempts,
		Backoff:     c.backoff,
		RetryIf: func(err error) bool {
			return errs.TypeOf(err) == errs.ErrorTypeTransport
		},
		Context: ctx,
		Logger:  c.log,
	})
}

func (c *Client) pace() {
	if c.limiter != nil {
		c.limiter.Wait()
	}
}
