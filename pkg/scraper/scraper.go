package scraper

import (
	"context"
	"strconv"
	"time"

	"vahanfetch/pkg/artifact"
	"vahanfetch/pkg/config"
	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/ledger"
	"vahanfetch/pkg/logger"
	"vahanfetch/pkg/ratelimit"
	"vahanfetch/pkg/retry"
	"vahanfetch/pkg/vahan"
)

// stateRetryDelay spaces out state-level retries after a failure the
// session-recovery wrapper would not replay
var stateRetryDelay = 2 * time.Second

// Scraper walks the dashboard hierarchy state by state and persists every
// panel fragment. It owns the one live session; navigation is strictly
// sequential because server-side view state is bound to a single token.
type Scraper struct {
	client    DashboardClient
	ledger    *ledger.Store
	artifacts *artifact.Store
	config    *config.Config
	logger    logger.Logger

	session *vahan.Session
	now     func() time.Time
}

// New creates a scraper wired from configuration
func New(cfg *config.Config) (*Scraper, error) {
	log := logger.GetLogger()

	var limiter ratelimit.Limiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	}

	return &Scraper{
		client:    vahan.NewClient(cfg.Dashboard, limiter, log),
		ledger:    ledger.NewStore(cfg.Output.LedgerPath, cfg.Fetch.Years, log),
		artifacts: artifact.NewStore(cfg.Output.RawDirectory, log),
		config:    cfg,
		logger:    log,
		now:       time.Now,
	}, nil
}

// Ledger exposes the completion ledger for operational commands
func (s *Scraper) Ledger() *ledger.Store {
	return s.ledger
}

// Artifacts exposes the artifact store for operational commands
func (s *Scraper) Artifacts() *artifact.Store {
	return s.artifacts
}

// Run fetches every configured state. The ledger is loaded and reconciled
// against the artifact tree before any network activity, so a lost or stale
// ledger file never causes refetching of work already on disk.
func (s *Scraper) Run(ctx context.Context) error {
	if err := s.ledger.Load(); err != nil {
		return err
	}
	scanned, err := s.artifacts.Scan()
	if err != nil {
		return err
	}
	if err := s.ledger.Reconcile(scanned); err != nil {
		return err
	}

	s.logger.InfoWithFields("starting fetch run", map[string]interface{}{
		"states":    len(s.config.Fetch.States),
		"fetch_all": s.config.Fetch.FetchAll,
	})

	for _, state := range s.config.Fetch.States {
		state := state
		for {
			err := retry.WithSessionRecovery(ctx, s.logger,
				func() error { return s.reestablishSession(ctx) },
				func() error { return s.fetchState(ctx, state) },
			)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return err
			}
			// The run must survive anything but cancellation: failures the
			// session-recovery wrapper will not replay are logged and the
			// state taken from the top with a fresh session.
			s.logger.ErrorWithFields("state fetch failed, retrying with fresh session", map[string]interface{}{
				"state": state,
				"error": err.Error(),
			})
			s.session = nil
			s.client.Reset()
			if werr := retry.Wait(ctx, stateRetryDelay); werr != nil {
				return werr
			}
		}
		// Next state starts from a fresh session
		s.session = nil
	}

	s.logger.Info("fetch run complete")
	return s.ledger.Flush()
}

// ensureSession initializes a session if none is live
func (s *Scraper) ensureSession(ctx context.Context) error {
	if s.session != nil {
		return nil
	}
	return s.initialize(ctx)
}

// reestablishSession tears down the transport and initializes from scratch
func (s *Scraper) reestablishSession(ctx context.Context) error {
	s.client.Reset()
	s.session = nil
	return s.ensureSession(ctx)
}

// initialize renders the landing page, harvests the control registry, and
// walks the server through its expected warm-up sequence: the initial block,
// the five front-page panels, the four category shells (whose fragments carry
// the year links), and the five charts. Only after this does the server
// accept hierarchy selections.
func (s *Scraper) initialize(ctx context.Context) error {
	session, page, err := s.client.Initialize(ctx)
	if err != nil {
		return err
	}
	vahan.ExtractControls(page, session, s.logger)

	initID, err := session.RequireControl(vahan.ControlInitialBlock)
	if err != nil {
		return err
	}
	if _, err := s.client.BaseExchange(ctx, session, initID, vahan.ControlInitialBlock, "-1", "-1"); err != nil {
		return err
	}

	for _, name := range vahan.MainPagePanels {
		id, ok := session.Control(name)
		if !ok {
			s.logger.WarnWithFields("no id registered for main panel", map[string]interface{}{
				"panel": name,
			})
			continue
		}
		if _, err := s.client.BaseExchange(ctx, session, id, name, "-1", "-1"); err != nil {
			return err
		}
	}

	for _, category := range vahan.Categories {
		shell := "pnl_" + string(category)
		id, err := session.RequireControl(shell)
		if err != nil {
			return err
		}
		frag, err := s.client.BaseExchange(ctx, session, id, shell, "-1", "-1")
		if err != nil {
			return err
		}
		doc, err := frag.Document()
		if err != nil {
			return err
		}
		years, err := vahan.ExtractYears(doc, category, s.config.Fetch.Years)
		if err != nil {
			return err
		}
		session.Years[category] = years
	}

	for _, chart := range vahan.ChartShells {
		id, ok := session.Control(chart)
		if !ok {
			s.logger.WarnWithFields("no id registered for chart", map[string]interface{}{
				"chart": chart,
			})
			continue
		}
		if _, err := s.client.BaseExchange(ctx, session, id, chart, "-1", "-1"); err != nil {
			return err
		}
	}

	s.session = session
	s.logger.Debug("session initialized")
	return nil
}

// fetchState selects a state, records its sub-region names, and works
// through every sub-region not already ledger-complete
func (s *Scraper) fetchState(ctx context.Context, state string) error {
	if err := s.ensureSession(ctx); err != nil {
		return err
	}

	rtos, err := s.selectState(ctx, state)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(rtos))
	for _, rto := range rtos {
		names = append(names, rto.Name)
	}
	if err := s.artifacts.AppendRTONames(names); err != nil {
		return err
	}

	s.logger.InfoWithFields("state selected", map[string]interface{}{
		"state":       state,
		"sub_regions": len(rtos),
	})

	for _, rto := range rtos {
		if s.ledger.IsComplete(ledger.Key{State: state, RTO: rto.Code}) {
			s.logger.InfoWithFields("sub-region already complete", map[string]interface{}{
				"state": state,
				"rto":   rto.Code,
			})
			continue
		}

		rto := rto
		err := retry.WithSessionRecovery(ctx, s.logger,
			func() error { return s.reestablishState(ctx, state) },
			func() error { return s.fetchRTO(ctx, state, rto.Code) },
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// selectState issues the state-change exchange and returns the sub-region
// options rendered into the refreshed dropdown
func (s *Scraper) selectState(ctx context.Context, state string) ([]vahan.RTOOption, error) {
	stateID, err := s.session.RequireControl(vahan.ControlState)
	if err != nil {
		return nil, err
	}

	frag, err := s.client.Exchange(ctx, s.session, map[string]string{
		"javax.faces.source":          stateID,
		"javax.faces.partial.execute": stateID,
		"javax.faces.partial.render":  "selectedRto",
		"javax.faces.behavior.event":  "change",
		"javax.faces.partial.event":   "change",
		stateID + "_input":            state,
	})
	if err != nil {
		return nil, err
	}
	doc, err := frag.Document()
	if err != nil {
		return nil, err
	}

	rtos := vahan.ExtractRTOOptions(doc)
	if len(rtos) == 0 {
		return nil, errs.Newf(errs.ErrorTypeExtraction, "no sub-regions rendered for state %s", state)
	}
	return rtos, nil
}

func (s *Scraper) reestablishState(ctx context.Context, state string) error {
	if err := s.reestablishSession(ctx); err != nil {
		return err
	}
	_, err := s.selectState(ctx, state)
	return err
}

// fetchRTO binds the sub-region, opens the comparison view to expose year
// data, and works through every (category, year) pair not ledger-complete
func (s *Scraper) fetchRTO(ctx context.Context, state, rto string) error {
	if err := s.selectRTO(ctx, state, rto); err != nil {
		return err
	}

	currentYear := strconv.Itoa(s.now().Year())

	for _, category := range vahan.Categories {
		if s.ledger.IsComplete(ledger.Key{State: state, RTO: rto, Category: category}) {
			s.logger.InfoWithFields("category already complete", map[string]interface{}{
				"state":    state,
				"rto":      rto,
				"category": category,
			})
			continue
		}

		for _, year := range s.config.Fetch.Years {
			if !s.config.Fetch.FetchAll && year != currentYear {
				continue
			}
			if s.ledger.IsComplete(ledger.Key{State: state, RTO: rto, Category: category, Year: year}) {
				s.logger.InfoWithFields("year already complete", map[string]interface{}{
					"state":    state,
					"rto":      rto,
					"category": category,
					"year":     year,
				})
				continue
			}

			category, year := category, year
			err := retry.WithSessionRecovery(ctx, s.logger,
				func() error { return s.reestablishRTO(ctx, state, rto) },
				func() error { return s.fetchYear(ctx, state, rto, category, year) },
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// selectRTO issues the sub-region change and opens the comparison view
func (s *Scraper) selectRTO(ctx context.Context, state, rto string) error {
	stateID, err := s.session.RequireControl(vahan.ControlState)
	if err != nil {
		return err
	}

	_, err = s.client.Exchange(ctx, s.session, map[string]string{
		"javax.faces.source":          "selectedRto",
		"javax.faces.partial.execute": "selectedRto",
		"javax.faces.behavior.event":  "change",
		"javax.faces.partial.event":   "change",
		stateID + "_input":            state,
		"selectedRto_input":           rto,
	})
	if err != nil {
		return err
	}

	comparisonID, err := s.session.RequireControl(vahan.ControlComparison)
	if err != nil {
		return err
	}
	_, err = s.client.Exchange(ctx, s.session, map[string]string{
		"javax.faces.source":          comparisonID,
		"javax.faces.partial.execute": "@all",
		"javax.faces.partial.render":  "comparison dashboardContentsPanel mainpagepnl",
		comparisonID:                  comparisonID,
		stateID + "_input":            state,
		"selectedRto_input":           rto,
	})
	return err
}

func (s *Scraper) reestablishRTO(ctx context.Context, state, rto string) error {
	if err := s.reestablishState(ctx, state); err != nil {
		return err
	}
	return s.selectRTO(ctx, state, rto)
}

// fetchYear selects the year, rebuilds the control registry from the
// re-rendered page, initializes the category's panels (which yields the
// month grid), and applies the per-month fetch policy. The ledger is flushed
// when the year finishes, the crash-safety boundary of a run.
func (s *Scraper) fetchYear(ctx context.Context, state, rto string, category vahan.Category, year string) error {
	if _, ok := s.session.Years[category][year]; !ok {
		s.logger.WarnWithFields("no year link rendered, skipping", map[string]interface{}{
			"state":    state,
			"rto":      rto,
			"category": category,
			"year":     year,
		})
		return nil
	}

	if err := s.selectYear(ctx, state, rto, category, year); err != nil {
		return err
	}
	if err := s.fillMissingMonths(state, rto, year); err != nil {
		return err
	}

	yearNum, _ := strconv.Atoi(year)
	currentYear := s.now().Year()
	currentMonth := int(s.now().Month())

	for _, month := range vahan.Months {
		if _, ok := s.session.Months[month]; !ok {
			continue // placeholder already written
		}
		num := vahan.MonthNumber(month)
		leaf := ledger.LeafKey(state, rto, category, year, month)

		if yearNum == currentYear && num > currentMonth {
			// Future month: the server cannot have data yet
			if s.ledger.IsComplete(leaf) {
				continue
			}
			if err := s.writePlaceholderLeaf(leaf); err != nil {
				return err
			}
			continue
		}

		if !s.config.Fetch.FetchAll && !(yearNum == currentYear && num == currentMonth-1) {
			s.logger.DebugWithFields("skipping month outside latest-month mode", map[string]interface{}{
				"year":  year,
				"month": month,
			})
			continue
		}

		if s.ledger.IsComplete(leaf) {
			s.logger.InfoWithFields("month already complete", map[string]interface{}{
				"key": leaf.String(),
			})
			continue
		}

		month := month
		err := retry.WithSessionRecovery(ctx, s.logger,
			func() error { return s.reestablishYear(ctx, state, rto, category, year) },
			func() error { return s.fetchMonth(ctx, state, rto, category, year, month) },
		)
		if err != nil {
			return err
		}
	}

	return s.ledger.Flush()
}

// selectYear issues the year selection and rebuilds the session's dynamic
// state for it: control ids re-extracted from the refreshed page, panels
// initialized, month grid harvested
func (s *Scraper) selectYear(ctx context.Context, state, rto string, category vahan.Category, year string) error {
	yearID, ok := s.session.Years[category][year]
	if !ok {
		return errs.Newf(errs.ErrorTypeExtraction, "no year link for %s %s", category, year)
	}
	stateID, err := s.session.RequireControl(vahan.ControlState)
	if err != nil {
		return err
	}

	frag, err := s.client.Exchange(ctx, s.session, map[string]string{
		"javax.faces.source":          yearID,
		"javax.faces.partial.execute": "@all",
		"javax.faces.partial.render":  vahan.RenderInfoMsg,
		yearID:                        yearID,
		"BoxYearLabel":                category.BoxYearLabel(),
		stateID + "_input":            state,
		"selectedRto_input":           rto,
	})
	if err != nil {
		return err
	}

	// The year selection re-renders with fresh dynamic ids
	doc, err := frag.Document()
	if err != nil {
		return err
	}
	vahan.ExtractControls(doc, s.session, s.logger)

	s.session.ClearMonths()
	return s.initializeYearPanels(ctx, state, rto, category)
}

// initializeYearPanels renders the header panel, whose fragment carries the
// month grid, then the category's detail panels. A missing panel id is
// session drift and triggers full recovery.
func (s *Scraper) initializeYearPanels(ctx context.Context, state, rto string, category vahan.Category) error {
	headerID, err := s.session.RequireControl(vahan.ControlPanelHeader)
	if err != nil {
		return err
	}
	frag, err := s.client.BaseExchange(ctx, s.session, headerID, vahan.ControlPanelHeader, state, rto)
	if err != nil {
		return err
	}
	doc, err := frag.Document()
	if err != nil {
		return err
	}
	s.session.Months = vahan.ExtractMonths(doc)

	for _, panel := range category.Panels() {
		id, err := s.session.RequireControl(panel.Control)
		if err != nil {
			return err
		}
		if _, err := s.client.BaseExchange(ctx, s.session, id, panel.Control, state, rto); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) reestablishYear(ctx context.Context, state, rto string, category vahan.Category, year string) error {
	if err := s.reestablishRTO(ctx, state, rto); err != nil {
		return err
	}
	return s.selectYear(ctx, state, rto, category, year)
}

// fillMissingMonths synthesizes placeholders for months the header grid did
// not expose. The grid is category-independent, so an unresolved month is
// settled for all four categories at once, with no network requests.
func (s *Scraper) fillMissingMonths(state, rto, year string) error {
	for _, month := range vahan.Months {
		if _, ok := s.session.Months[month]; ok {
			continue
		}
		s.logger.DebugWithFields("month not exposed, writing placeholders", map[string]interface{}{
			"state": state,
			"rto":   rto,
			"year":  year,
			"month": month,
		})
		for _, category := range vahan.Categories {
			leaf := ledger.LeafKey(state, rto, category, year, month)
			if s.ledger.IsComplete(leaf) {
				continue
			}
			if err := s.writePlaceholderLeaf(leaf); err != nil {
				return err
			}
		}
	}
	return nil
}

// writePlaceholderLeaf persists the no-data body for every panel of the
// leaf's category and marks it complete
func (s *Scraper) writePlaceholderLeaf(leaf ledger.Key) error {
	for _, panel := range leaf.Category.Panels() {
		if err := s.artifacts.WritePlaceholder(leaf, panel); err != nil {
			return err
		}
	}
	return s.ledger.MarkComplete(leaf)
}

// fetchMonth selects the month and fetches each of the category's panels.
// A panel whose fragment lacks the result container is skipped rather than
// retried; the leaf is marked complete only when every panel landed.
func (s *Scraper) fetchMonth(ctx context.Context, state, rto string, category vahan.Category, year, month string) error {
	leaf := ledger.LeafKey(state, rto, category, year, month)

	monthID, ok := s.session.Months[month]
	if !ok {
		// The grid no longer exposes this month after a replay
		return s.writePlaceholderLeaf(leaf)
	}
	stateID, err := s.session.RequireControl(vahan.ControlState)
	if err != nil {
		return err
	}

	_, err = s.client.Exchange(ctx, s.session, map[string]string{
		"javax.faces.source":            monthID,
		"javax.faces.partial.execute":   "@all",
		"javax.faces.partial.render":    vahan.RenderInfoMsg,
		monthID:                         monthID,
		"year":                          year,
		"month":                         month,
		stateID + "_input":              state,
		"selectedRto_input":             rto,
		"datatable_VhClass_scrollState": "0,0",
		"datatable_Catg_scrollState":    "0,0",
		"datatable_fuel_scrollState":    "0,0",
		"datatable_norms_scrollState":   "0,0",
		"datatable_maker_scrollState":   "0,0",
	})
	if err != nil {
		return err
	}

	fetched := 0
	panels := category.Panels()
	for _, panel := range panels {
		id, err := s.session.RequireControl(panel.Control)
		if err != nil {
			return err
		}
		frag, err := s.client.BaseExchange(ctx, s.session, id, panel.Control, state, rto)
		if err != nil {
			return err
		}
		if !frag.HasResultPanel() {
			s.logger.WarnWithFields("panel fragment malformed, skipping", map[string]interface{}{
				"key":   leaf.String(),
				"panel": panel.File,
			})
			continue
		}
		if err := s.artifacts.Write(leaf, panel, frag.HTML); err != nil {
			if errs.TypeOf(err) == errs.ErrorTypeStructural {
				s.logger.WarnWithFields("panel rejected by artifact store", map[string]interface{}{
					"key":   leaf.String(),
					"panel": panel.File,
				})
				continue
			}
			return err
		}
		fetched++
	}

	if fetched == len(panels) {
		if err := s.ledger.MarkComplete(leaf); err != nil {
			return err
		}
		s.logger.InfoWithFields("month complete", map[string]interface{}{
			"key": leaf.String(),
		})
	} else {
		s.logger.WarnWithFields("month partially fetched", map[string]interface{}{
			"key":     leaf.String(),
			"fetched": fetched,
			"panels":  len(panels),
		})
	}
	return nil
}
