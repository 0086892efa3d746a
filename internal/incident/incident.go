// Package incident records one row per detect-contain-repair cycle and
// serves read-only queries for the command surface.
package incident

import (
	"time"

	"github.com/google/uuid"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

// RestoreSource distinguishes automatic post-detection restores from
// operator-initiated backup restores.
const (
	SourceLiveDetection = "live-detection"
	SourceManualBackup  = "manual-backup"
)

// Incident is immutable once recorded.
type Incident struct {
	ID             string
	GuildID        string
	AttackerID     string
	ViolationType  models.Category
	ViolationCount int
	DetectedAt     time.Time
	ResponseTimeMs int64
	RestoreSource  string
	ItemsRestored  int
	ItemsSkipped   int
	Warnings       []string
	BackupAgeHours float64
}

// Store is the persistence surface, implemented by the database package.
type Store interface {
	InsertIncident(inc *Incident) error
	ListIncidents(guildID string, limit int, since time.Time) ([]*Incident, error)
}

type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record persists one incident, assigning an ID when absent. A persistence
// failure is logged and returned for surfacing; containment and restore
// work that already happened is never rolled back.
func (r *Recorder) Record(inc *Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = time.Now()
	}
	if err := r.store.InsertIncident(inc); err != nil {
		logging.Error("incident: persist failed guild=%s attacker=%s: %v",
			inc.GuildID, inc.AttackerID, err)
		return err
	}
	logging.Info("incident: recorded id=%s guild=%s type=%s count=%d responseMs=%d",
		inc.ID, inc.GuildID, inc.ViolationType, inc.ViolationCount, inc.ResponseTimeMs)
	return nil
}

// Recent returns up to limit incidents for a guild ordered most recent
// first. A zero since means no lower time bound.
func (r *Recorder) Recent(guildID string, limit int, since time.Time) ([]*Incident, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.store.ListIncidents(guildID, limit, since)
}
