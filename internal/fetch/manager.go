package fetch

import (
	"sort"
	"time"

	"calext/internal/config"
	"calext/internal/ical"
	appLog "calext/internal/log"
	"calext/internal/model"
	"calext/internal/store"
)

// Manager owns one Fetcher per configured calendar source and feeds
// their results into the store through the parse/expand pipeline.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	fetchers map[string]*Fetcher
	now      func() time.Time
}

func NewManager(cfg *config.Config, st *store.Store) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    st,
		fetchers: make(map[string]*Fetcher, len(cfg.Calendars)),
		now:      time.Now,
	}
	for _, src := range cfg.Calendars {
		m.fetchers[src.ID] = New(m.optionsFor(src))
	}
	return m
}

func (m *Manager) optionsFor(src config.CalendarConfig) Options {
	id := src.ID
	return Options{
		URL:                 src.URL,
		PollInterval:        src.PollInterval(),
		Auth:                authFor(src.Auth),
		UserAgent:           m.cfg.UserAgent,
		AuthFailureCooldown: m.cfg.AuthFailureCooldown(),
		RateLimitCooldown:   m.cfg.RateLimitCooldown(),
		ClientErrorCooldown: m.cfg.ClientErrorCooldown(),
		OnSuccess: func(body string) {
			m.ingest(id, body)
		},
		OnError: func(err error) {
			appLog.Error("feed fetch failed", err, "calendar", id)
			m.store.SetError(id, err)
		},
	}
}

func authFor(a *config.AuthConfig) *Auth {
	if a == nil {
		return nil
	}
	switch AuthMethod(a.Method) {
	case AuthBasic, AuthBearer:
		return &Auth{Method: AuthMethod(a.Method), User: a.User, Pass: a.Pass}
	}
	appLog.Warn("unknown auth method, requests go unauthenticated", "method", a.Method)
	return nil
}

// Start launches every source's poll loop.
func (m *Manager) Start() {
	for id, f := range m.fetchers {
		appLog.Info("starting feed poller", "calendar", id)
		f.Start()
	}
}

// Stop halts every poll loop. Idempotent.
func (m *Manager) Stop() {
	for _, f := range m.fetchers {
		f.Stop()
	}
}

// Window is the rolling expansion window around the current time.
func (m *Manager) Window() model.Window {
	now := m.now()
	return model.Window{
		From: now.AddDate(0, 0, -m.cfg.LookbackDays),
		To:   now.AddDate(0, 0, m.cfg.HorizonDays),
	}
}

// ingest runs a fetched body through the pipeline and publishes the
// result. A parse failure records the error but leaves the previous
// good snapshot in place.
func (m *Manager) ingest(id, body string) {
	records, err := ical.ParseAndExpand(body, m.Window(), m.cfg.MaxIterations)
	if err != nil {
		appLog.Error("feed parse failed", err, "calendar", id)
		m.store.SetError(id, err)
		return
	}
	m.store.SetSnapshot(id, body, records)
	appLog.Info("feed refreshed", "calendar", id, "events", len(records))
}

// RefreshWindow re-expands every cached feed body against the current
// rolling window. Driven by the refresh cron in cmd/calext so long-
// running processes keep covering the right date range without waiting
// for the next network poll.
func (m *Manager) RefreshWindow() {
	bodies := m.store.Bodies()
	appLog.Info("rolling expansion window", "sources", len(bodies))
	for id, body := range bodies {
		m.ingest(id, body)
	}
}

// RunOnce fetches every source a single time, synchronously, feeding
// results through the normal callbacks. Used by the -once CLI mode.
func (m *Manager) RunOnce() {
	for id, f := range m.fetchers {
		body, _, err := f.fetchOnce()
		if err != nil {
			appLog.Error("feed fetch failed", err, "calendar", id)
			m.store.SetError(id, err)
			continue
		}
		m.ingest(id, body)
	}
}

// SourceStatus is the per-source view exposed by the API.
type SourceStatus struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`

	EventCount int    `json:"event_count"`
	FetchedAt  string `json:"fetched_at,omitempty"`
	LastError  string `json:"last_error,omitempty"`

	Suspended      bool   `json:"suspended"`
	SuspendedUntil string `json:"suspended_until,omitempty"`
	SuspendReason  string `json:"suspend_reason,omitempty"`
}

// Statuses reports fetch and suspension state for every source, sorted
// by source ID.
func (m *Manager) Statuses() []SourceStatus {
	out := make([]SourceStatus, 0, len(m.cfg.Calendars))
	for _, src := range m.cfg.Calendars {
		st := SourceStatus{ID: src.ID, Name: src.Name, URL: src.URL}

		if snap, ok := m.store.Snapshot(src.ID); ok {
			st.EventCount = len(snap.Records)
			if !snap.FetchedAt.IsZero() {
				st.FetchedAt = snap.FetchedAt.Format(time.RFC3339)
			}
			st.LastError = snap.LastError
		}
		if f, ok := m.fetchers[src.ID]; ok {
			if until, reason := f.Suspension(); !until.IsZero() && m.now().Before(until) {
				st.Suspended = true
				st.SuspendedUntil = until.Format(time.RFC3339)
				st.SuspendReason = reason
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
