package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calext/internal/config"
	"calext/internal/fetch"
	"calext/internal/model"
	"calext/internal/store"
)

func testServer(t *testing.T, cfg *config.Config) (*httptest.Server, *store.Store) {
	t.Helper()

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Normalize()

	st := store.New()
	mgr := fetch.NewManager(cfg, st)
	srv := httptest.NewServer(NewServer(cfg, st, mgr).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventsEndpoint(t *testing.T) {
	srv, st := testServer(t, nil)

	start := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	st.SetSnapshot("work", "", []model.EventRecord{{
		UID:        "ev-1",
		Summary:    "Meeting",
		Start:      start,
		End:        start.Add(time.Hour),
		Duration:   3600,
		Categories: []string{},
		Attendees:  []model.Attendee{},
	}})

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []model.EventRecord `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "Meeting", body.Events[0].Summary)
}

func TestEventsEndpointRejectsBadWindow(t *testing.T) {
	srv, _ := testServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/events?from=not-a-time")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBasicAuthProtectsAPI(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	srv, _ := testServer(t, cfg)

	t.Run("health stays open", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("api requires credentials", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/events")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("api accepts valid credentials", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/events", nil)
		require.NoError(t, err)
		req.SetBasicAuth("admin", "secret")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestCalendarsEndpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Calendars = []config.CalendarConfig{
		{ID: "work", Name: "Work", URL: "https://example.com/work.ics"},
	}
	srv, _ := testServer(t, cfg)

	resp, err := http.Get(srv.URL + "/api/calendars")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses []fetch.SourceStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "work", statuses[0].ID)
	assert.False(t, statuses[0].Suspended)
}

func TestDateInfoEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/dateinfo?start=2026-03-15T09:00:00Z&now=2026-03-15T12:00:00Z")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info struct {
		IsToday bool `json:"isToday"`
		Weekday int  `json:"weekday"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.True(t, info.IsToday)
	assert.Equal(t, 7, info.Weekday, "2026-03-15 is a Sunday")
}

func TestDateInfoRequiresStart(t *testing.T) {
	srv, _ := testServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/dateinfo")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
