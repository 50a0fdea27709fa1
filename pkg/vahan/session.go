package vahan

import (
	errs "vahanfetch/pkg/errors"
)

// Session is the ephemeral state bound to one server-side view: the current
// view state token plus every dynamic control id extracted from rendered
// pages. It is rebuilt from scratch on every (re)initialization and wholly
// invalidated on expiry. The orchestrator owns it; nothing here is global.
type Session struct {
	// ViewState is the opaque token echoed on every exchange and replaced on
	// each response
	ViewState string
	// Controls maps static container names to the dynamic ids currently
	// backing them
	Controls map[string]string
	// Years maps category -> year -> year-link id
	Years map[Category]map[string]string
	// Months maps month marker -> month-link id for the currently selected
	// (rto, category, year) context
	Months map[string]string
}

// NewSession returns an empty session
func NewSession() *Session {
	years := make(map[Category]map[string]string, len(Categories))
	for _, c := range Categories {
		years[c] = make(map[string]string)
	}
	return &Session{
		Controls: make(map[string]string),
		Years:    years,
		Months:   make(map[string]string),
	}
}

// Control returns the dynamic id registered for a container name
func (s *Session) Control(name string) (string, bool) {
	id, ok := s.Controls[name]
	return id, ok
}

// RequireControl returns the dynamic id for a container name, or a
// session-drift failure if the id was never extracted. A missing required
// control means the server re-rendered with ids we have not seen, which the
// recovery wrapper cures with a full reset.
func (s *Session) RequireControl(name string) (string, error) {
	id, ok := s.Controls[name]
	if !ok {
		return "", errs.Newf(errs.ErrorTypeSessionExpired, "no id registered for control %q", name)
	}
	return id, nil
}

// ClearMonths drops the month-selector ids. They are only valid for the
// (rto, category, year) context that produced them.
func (s *Session) ClearMonths() {
	s.Months = make(map[string]string)
}
