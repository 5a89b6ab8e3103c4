package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calext/internal/model"
)

func record(uid string, start time.Time, dur time.Duration) model.EventRecord {
	return model.EventRecord{
		UID:        uid,
		Start:      start,
		End:        start.Add(dur),
		Duration:   int64(dur / time.Second),
		Categories: []string{},
		Attendees:  []model.Attendee{},
	}
}

func TestSetErrorKeepsRecords(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.SetSnapshot("a", "body", []model.EventRecord{record("ev-1", base, time.Hour)})
	s.SetError("a", errors.New("boom"))

	snap, ok := s.Snapshot("a")
	require.True(t, ok)
	assert.Len(t, snap.Records, 1)
	assert.Equal(t, "body", snap.Body)
	assert.Equal(t, "boom", snap.LastError)
}

func TestSetSnapshotClearsError(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.SetError("a", errors.New("boom"))
	s.SetSnapshot("a", "body", []model.EventRecord{record("ev-1", base, time.Hour)})

	snap, ok := s.Snapshot("a")
	require.True(t, ok)
	assert.Empty(t, snap.LastError)
}

func TestEventsMergesAndSorts(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s.SetSnapshot("b", "", []model.EventRecord{
		record("b-1", base.Add(2*time.Hour), time.Hour),
		record("b-2", base.Add(30*time.Hour), time.Hour),
	})
	s.SetSnapshot("a", "", []model.EventRecord{
		record("a-1", base.Add(time.Hour), time.Hour),
	})

	w := model.Window{From: base, To: base.Add(24 * time.Hour)}
	events := s.Events(w)

	require.Len(t, events, 2, "window filters out b-2")
	assert.Equal(t, "a-1", events[0].UID)
	assert.Equal(t, "b-1", events[1].UID)
}

func TestBodiesSkipsEmpty(t *testing.T) {
	s := New()
	s.SetSnapshot("a", "payload", nil)
	s.SetError("b", errors.New("never fetched"))

	bodies := s.Bodies()
	assert.Equal(t, map[string]string{"a": "payload"}, bodies)
}
