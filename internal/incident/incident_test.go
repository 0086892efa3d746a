package incident

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

type fakeStore struct {
	inserted []*Incident
	insertFn func(*Incident) error
	listed   []*Incident

	lastLimit int
	lastSince time.Time
}

func (f *fakeStore) InsertIncident(inc *Incident) error {
	if f.insertFn != nil {
		return f.insertFn(inc)
	}
	f.inserted = append(f.inserted, inc)
	return nil
}

func (f *fakeStore) ListIncidents(_ string, limit int, since time.Time) ([]*Incident, error) {
	f.lastLimit = limit
	f.lastSince = since
	return f.listed, nil
}

func TestRecordAssignsID(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store)

	inc := &Incident{
		GuildID:        "g1",
		AttackerID:     "attacker",
		ViolationType:  models.CategoryBan,
		ViolationCount: 4,
		DetectedAt:     time.Now(),
		RestoreSource:  SourceLiveDetection,
	}
	require.NoError(t, r.Record(inc))
	assert.NotEmpty(t, inc.ID, "record must assign an ID")
	require.Len(t, store.inserted, 1)

	// A second record gets a distinct ID.
	inc2 := &Incident{GuildID: "g1", RestoreSource: SourceManualBackup}
	require.NoError(t, r.Record(inc2))
	assert.NotEqual(t, inc.ID, inc2.ID)
}

func TestRecordKeepsExistingID(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store)

	inc := &Incident{ID: "fixed", GuildID: "g1"}
	require.NoError(t, r.Record(inc))
	assert.Equal(t, "fixed", inc.ID)
}

func TestRecordSurfacesPersistError(t *testing.T) {
	store := &fakeStore{insertFn: func(*Incident) error { return errors.New("disk full") }}
	r := NewRecorder(store)

	err := r.Record(&Incident{GuildID: "g1"})
	assert.Error(t, err)
}

func TestRecentDefaultsLimit(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store)

	_, err := r.Recent("g1", 0, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 10, store.lastLimit, "non-positive limit falls back to 10")

	_, err = r.Recent("g1", 3, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, store.lastLimit)
}
