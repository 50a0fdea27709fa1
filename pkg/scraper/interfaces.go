package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"vahanfetch/pkg/vahan"
)

// DashboardClient is the transport surface the orchestrator drives. It is
// satisfied by vahan.Client and by test doubles.
type DashboardClient interface {
	// Reset tears the transport down completely
	Reset()
	// Initialize establishes a session and returns the rendered landing page
	Initialize(ctx context.Context) (*vahan.Session, *goquery.Document, error)
	// Exchange issues one partial-ajax exchange
	Exchange(ctx context.Context, s *vahan.Session, updates map[string]string) (*vahan.Fragment, error)
	// BaseExchange issues an exchange with the standard source/render shape
	BaseExchange(ctx context.Context, s *vahan.Session, source, render, state, rto string) (*vahan.Fragment, error)
}
