package fetch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calext/internal/config"
	"calext/internal/store"
)

func managerConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Calendars = []config.CalendarConfig{
		{ID: "work", Name: "Work", URL: "https://example.com/work.ics"},
	}
	cfg.Normalize()
	return cfg
}

func icsBody(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func TestIngestPublishesSnapshot(t *testing.T) {
	st := store.New()
	m := NewManager(managerConfig(), st)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	m.ingest("work", icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:ev-1",
		"SUMMARY:Meeting",
		"DTSTART:20260301T100000Z",
		"DTEND:20260301T110000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	))

	snap, ok := st.Snapshot("work")
	require.True(t, ok)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "Meeting", snap.Records[0].Summary)
	assert.Empty(t, snap.LastError)
}

func TestIngestKeepsPreviousSnapshotOnParseFailure(t *testing.T) {
	st := store.New()
	m := NewManager(managerConfig(), st)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	m.ingest("work", icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:ev-1",
		"SUMMARY:Meeting",
		"DTSTART:20260301T100000Z",
		"DTEND:20260301T110000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	))
	m.ingest("work", "THIS IS NOT ICS")

	snap, ok := st.Snapshot("work")
	require.True(t, ok)
	require.Len(t, snap.Records, 1, "failed cycle retains the previous good result")
	assert.Equal(t, "Failed to parse iCal data", snap.LastError)
}

func TestRefreshWindowReexpandsCachedBodies(t *testing.T) {
	st := store.New()
	m := NewManager(managerConfig(), st)

	// First ingest with a window that covers the event.
	m.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	m.ingest("work", icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:ev-1",
		"SUMMARY:Meeting",
		"DTSTART:20260301T100000Z",
		"DTEND:20260301T110000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	))
	snap, _ := st.Snapshot("work")
	require.Len(t, snap.Records, 1)

	// Rolling far past the event drops it from the fresh expansion
	// without another network fetch.
	m.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	m.RefreshWindow()

	snap, _ = st.Snapshot("work")
	assert.Empty(t, snap.Records)
}

func TestStatusesReportSuspension(t *testing.T) {
	st := store.New()
	m := NewManager(managerConfig(), st)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	f := m.fetchers["work"]
	require.NotNil(t, f)
	f.mu.Lock()
	f.suspendUntil = now.Add(time.Hour)
	f.suspendReason = "rate limit"
	f.mu.Unlock()

	statuses := m.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "work", statuses[0].ID)
	assert.True(t, statuses[0].Suspended)
	assert.Equal(t, "rate limit", statuses[0].SuspendReason)
}

func TestAuthForRejectsUnknownMethod(t *testing.T) {
	assert.Nil(t, authFor(nil))
	assert.Nil(t, authFor(&config.AuthConfig{Method: "digest"}))

	a := authFor(&config.AuthConfig{Method: "basic", User: "u", Pass: "p"})
	require.NotNil(t, a)
	assert.Equal(t, AuthBasic, a.Method)
}
