package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/config"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/database"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/detector"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/incident"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/quarantine"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/restore"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/snapshot"
)

// ActorBlocker removes an attacker from the guild. Implementations go
// through the dedicated HTTP pool so a gateway stall cannot delay the ban.
type ActorBlocker interface {
	Ban(ctx context.Context, guildID, userID, reason string) error
}

// EventPublisher pushes incident lifecycle events to observers.
// Implementations must not block the caller.
type EventPublisher interface {
	Publish(guildID, eventType string, payload interface{})
}

// Engine consumes threat signals and drives the response pipeline:
// block the attacker, quarantine the guild, restore deleted objects,
// record the incident.
type Engine struct {
	reg        *guildstate.Registry
	det        *detector.Detector
	quarantine *quarantine.Controller
	restorer   *restore.Engine
	snapshots  *snapshot.Store
	recorder   *incident.Recorder
	db         *database.Database
	blocker    ActorBlocker
	publisher  EventPublisher

	onIncident       func()
	onRestoreLatency func(ns uint64)
	heartbeat        func()

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

const heartbeatInterval = 10 * time.Second

func New(
	reg *guildstate.Registry,
	det *detector.Detector,
	qc *quarantine.Controller,
	re *restore.Engine,
	snaps *snapshot.Store,
	rec *incident.Recorder,
	db *database.Database,
) *Engine {
	return &Engine{
		reg:        reg,
		det:        det,
		quarantine: qc,
		restorer:   re,
		snapshots:  snaps,
		recorder:   rec,
		db:         db,
		stop:       make(chan struct{}),
	}
}

// SetBlocker installs the attacker-removal executor. Optional: without
// one, containment relies on quarantine alone.
func (e *Engine) SetBlocker(b ActorBlocker) { e.blocker = b }

// SetPublisher installs the observer push channel. Optional.
func (e *Engine) SetPublisher(p EventPublisher) { e.publisher = p }

// SetIncidentHook installs a counter callback fired once per handled signal.
func (e *Engine) SetIncidentHook(fn func()) { e.onIncident = fn }

// SetRestoreLatencyHook installs a callback fed each restore's wall time.
func (e *Engine) SetRestoreLatencyHook(fn func(ns uint64)) { e.onRestoreLatency = fn }

// SetHeartbeat installs a liveness callback fired from the consumer loop
// itself, so a stalled loop stops beating. Set before Start.
func (e *Engine) SetHeartbeat(fn func()) { e.heartbeat = fn }

// Start launches the signal consumer loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
	logging.Info("response engine started")
}

// Stop shuts the consumer down and waits for in-flight responses.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stop) })
	e.wg.Wait()
	logging.Info("response engine stopped")
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	e.beat()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.beat()
		case sig, ok := <-e.det.Signals():
			if !ok {
				return
			}
			e.respond(sig)
			e.beat()
		}
	}
}

func (e *Engine) beat() {
	if e.heartbeat != nil {
		e.heartbeat()
	}
}

// respond executes the full response to one threat signal. Each phase is
// best-effort: a failure is recorded as a warning and the pipeline keeps
// going, so a partial response still contains what it can.
func (e *Engine) respond(sig models.ThreatSignal) {
	if e.onIncident != nil {
		e.onIncident()
	}

	st, ok := e.reg.Get(sig.GuildID)
	if !ok {
		logging.Error("signal for unknown guild %s dropped", sig.GuildID)
		return
	}

	st.IncidentStarted()
	defer st.IncidentFinished()

	logging.Critical("threat detected: guild=%s actor=%s category=%s count=%d",
		sig.GuildID, sig.ActorID, sig.Category, sig.Count)
	e.publish(sig.GuildID, "threat_detected", sig)

	var warnings []string

	// Phase 1: remove the attacker. Runs before quarantine so an actor
	// mid-spree loses their session as early as possible.
	reason := fmt.Sprintf("protection triggered: %s x%d", sig.Category, sig.Count)
	st.Block(sig.ActorID, reason, sig.DetectedAt)
	if err := e.db.AddBlockedUser(sig.GuildID, sig.ActorID, reason, sig.DetectedAt); err != nil {
		logging.Error("guild %s: persist blocked actor %s: %v", sig.GuildID, sig.ActorID, err)
	}
	if e.blocker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := e.blocker.Ban(ctx, sig.GuildID, sig.ActorID, reason); err != nil {
			warnings = append(warnings, fmt.Sprintf("ban failed for %s: %v", sig.ActorID, err))
			logging.Error("guild %s: ban %s failed: %v", sig.GuildID, sig.ActorID, err)
		}
		cancel()
	}

	// Phase 2: quarantine. Strips dangerous permissions guild-wide so
	// accomplices on other roles are cut off while we repair.
	qres, err := e.quarantine.Activate(sig.GuildID, sig.ActorID)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("quarantine: %v", err))
		logging.Error("guild %s: quarantine activation failed: %v", sig.GuildID, err)
	} else if !qres.AlreadyActive {
		logging.Info("guild %s: quarantine active, %d role(s) locked, %d skipped",
			sig.GuildID, qres.RolesModified, qres.RolesSkipped)
	}
	warnings = append(warnings, qres.Warnings...)

	// Phase 3: restore missing channels and roles from the last snapshot.
	// Must run after quarantine so nothing is re-deleted while we recreate.
	var rres restore.Result
	if e.snapshots.Has(sig.GuildID) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		restoreStart := time.Now()
		st.LockRepair()
		rres, err = e.restorer.Restore(ctx, sig.GuildID)
		st.UnlockRepair()
		cancel()
		if e.onRestoreLatency != nil {
			e.onRestoreLatency(uint64(time.Since(restoreStart).Nanoseconds()))
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("restore: %v", err))
			logging.Error("guild %s: restore failed: %v", sig.GuildID, err)
		}
		warnings = append(warnings, rres.Warnings...)
	} else {
		warnings = append(warnings, "no snapshot available, nothing restored")
		logging.Warn("guild %s: no snapshot, skipping restore", sig.GuildID)
	}

	// Phase 4: record. The incident is written even when earlier phases
	// partially failed; the warnings list carries what went wrong.
	age, _ := e.snapshots.Age(sig.GuildID)
	inc := &incident.Incident{
		GuildID:        sig.GuildID,
		AttackerID:     sig.ActorID,
		ViolationType:  sig.Category,
		ViolationCount: sig.Count,
		DetectedAt:     sig.DetectedAt,
		ResponseTimeMs: time.Since(sig.DetectedAt).Milliseconds(),
		RestoreSource:  incident.SourceLiveDetection,
		ItemsRestored:  rres.ItemsRestored,
		ItemsSkipped:   rres.ItemsSkipped,
		Warnings:       warnings,
		BackupAgeHours: age.Hours(),
	}
	if err := e.recorder.Record(inc); err != nil {
		logging.Error("guild %s: incident not persisted: %v", sig.GuildID, err)
	}

	logging.Info("guild %s: response complete in %dms (restored=%d skipped=%d warnings=%d)",
		sig.GuildID, inc.ResponseTimeMs, inc.ItemsRestored, inc.ItemsSkipped, len(warnings))
	e.publish(sig.GuildID, "incident_recorded", inc)
}

func (e *Engine) publish(guildID, eventType string, payload interface{}) {
	if e.publisher != nil {
		e.publisher.Publish(guildID, eventType, payload)
	}
}

// persistGuildConfig writes the guild's current in-memory state back to
// the database.
func (e *Engine) persistGuildConfig(st *guildstate.State) error {
	overrides := make(map[models.Category]database.LimitRow)
	for cat, l := range st.Limits() {
		overrides[cat] = database.LimitRow{
			Max:           l.Max,
			WindowSeconds: int(l.Window / time.Second),
		}
	}
	limits, err := database.EncodeLimits(overrides)
	if err != nil {
		return err
	}
	return e.db.UpsertGuildConfig(&database.GuildConfig{
		GuildID:      st.GuildID,
		Enabled:      st.Enabled(),
		OwnerID:      st.OwnerID(),
		LogChannelID: st.LogChannelID(),
		Limits:       limits,
	})
}

// ===== Command surface =====

// GuildStatus is the operator-facing view of one guild's protection state.
type GuildStatus struct {
	GuildID          string
	Enabled          bool
	OwnerID          string
	SnapshotChannels int
	SnapshotRoles    int
	SnapshotAge      time.Duration
	QuarantineActive bool
	WhitelistSize    int
	ActiveIncidents  int
	Limits           map[models.Category]config.Limit
}

// Enable turns protection on for a guild: creates its state, captures an
// initial snapshot, and persists the config. Snapshot failure is returned
// but does not roll back enablement.
func (e *Engine) Enable(guildID, ownerID string) error {
	st := e.reg.Create(guildID)
	st.SetEnabled(true)
	if ownerID != "" {
		st.SetOwnerID(ownerID)
	}
	st.StartWorker(e.det.Handle)

	if err := e.persistGuildConfig(st); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	logging.Info("guild %s: protection enabled", guildID)

	st.LockRepair()
	err := e.snapshots.Refresh(guildID)
	st.UnlockRepair()
	if err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}
	ch, rl := e.snapshots.Counts(guildID)
	logging.Info("guild %s: initial snapshot captured (%d channels, %d roles)", guildID, ch, rl)
	return nil
}

// Disable turns protection off. Existing snapshots and incident history
// are kept.
func (e *Engine) Disable(guildID string) error {
	st, ok := e.reg.Get(guildID)
	if !ok {
		return fmt.Errorf("guild %s has no protection state", guildID)
	}
	st.SetEnabled(false)
	if err := e.persistGuildConfig(st); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	logging.Info("guild %s: protection disabled", guildID)
	return nil
}

// Status reports the guild's current protection state.
func (e *Engine) Status(guildID string) (GuildStatus, error) {
	st, ok := e.reg.Get(guildID)
	if !ok {
		return GuildStatus{GuildID: guildID}, nil
	}
	ch, rl := e.snapshots.Counts(guildID)
	age, _ := e.snapshots.Age(guildID)
	_, qActive := st.Quarantine()
	return GuildStatus{
		GuildID:          guildID,
		Enabled:          st.Enabled(),
		OwnerID:          st.OwnerID(),
		SnapshotChannels: ch,
		SnapshotRoles:    rl,
		SnapshotAge:      age,
		QuarantineActive: qActive,
		WhitelistSize:    len(st.Whitelist()),
		ActiveIncidents:  st.ActiveIncidents(),
		Limits:           st.Limits(),
	}, nil
}

// QuarantineEnable manually activates the guild-wide lockdown.
func (e *Engine) QuarantineEnable(guildID, actor string) (quarantine.Result, error) {
	return e.quarantine.Activate(guildID, actor)
}

// QuarantineDisable lifts the lockdown, restores role permissions, lifts
// in-memory blocks, and clears the detectors' state for lifted actors so
// a resolved incident does not instantly re-trigger. A rejected deactivate
// (no quarantine active) leaves blocks and detector state untouched.
func (e *Engine) QuarantineDisable(guildID, actor string) (quarantine.Result, error) {
	res, err := e.quarantine.Deactivate(guildID, actor)
	if err != nil {
		return res, err
	}

	for _, userID := range res.BlocksLifted {
		e.det.ResolveActor(guildID, userID)
		if dberr := e.db.RemoveBlockedUser(guildID, userID); dberr != nil {
			logging.Error("guild %s: unblock %s not persisted: %v", guildID, userID, dberr)
		}
	}
	if len(res.BlocksLifted) > 0 {
		logging.Info("guild %s: %d block(s) lifted with quarantine", guildID, len(res.BlocksLifted))
	}
	return res, nil
}

// QuarantineStatus reports lockdown state for a guild.
func (e *Engine) QuarantineStatus(guildID string) (guildstate.QuarantineState, bool, error) {
	return e.quarantine.Status(guildID)
}

// WhitelistAdd exempts a user from detection for this guild.
func (e *Engine) WhitelistAdd(guildID, userID, addedBy string) error {
	st, ok := e.reg.Get(guildID)
	if !ok {
		return fmt.Errorf("guild %s has no protection state", guildID)
	}
	st.AddWhitelist(userID)
	if err := e.db.AddWhitelist(guildID, userID, addedBy); err != nil {
		return fmt.Errorf("persist whitelist: %w", err)
	}
	logging.Info("guild %s: %s whitelisted by %s", guildID, userID, addedBy)
	return nil
}

// WhitelistRemove revokes a user's exemption.
func (e *Engine) WhitelistRemove(guildID, userID string) error {
	st, ok := e.reg.Get(guildID)
	if !ok {
		return fmt.Errorf("guild %s has no protection state", guildID)
	}
	st.RemoveWhitelist(userID)
	if err := e.db.RemoveWhitelist(guildID, userID); err != nil {
		return fmt.Errorf("persist whitelist: %w", err)
	}
	logging.Info("guild %s: %s removed from whitelist", guildID, userID)
	return nil
}

// RefreshSnapshot captures a fresh snapshot of the guild's live structure.
// Holds the repair lock so a refresh cannot swap the baseline while a
// restore is replaying the old one.
func (e *Engine) RefreshSnapshot(guildID string) error {
	st, ok := e.reg.Get(guildID)
	if !ok {
		return fmt.Errorf("guild %s has no protection state", guildID)
	}

	st.LockRepair()
	err := e.snapshots.Refresh(guildID)
	st.UnlockRepair()
	if err != nil {
		return err
	}
	ch, rl := e.snapshots.Counts(guildID)
	logging.Info("guild %s: snapshot refreshed (%d channels, %d roles)", guildID, ch, rl)
	return nil
}

// RestoreFromBackup runs a manual restore from the last snapshot and
// records it as a manual-backup incident. Serialized against automatic
// repair through the guild's repair lock.
func (e *Engine) RestoreFromBackup(ctx context.Context, guildID, requestedBy string) (restore.Result, error) {
	st, ok := e.reg.Get(guildID)
	if !ok {
		return restore.Result{}, fmt.Errorf("guild %s has no protection state", guildID)
	}
	if !e.snapshots.Has(guildID) {
		return restore.Result{}, fmt.Errorf("guild %s has no snapshot to restore from", guildID)
	}

	start := time.Now()
	st.LockRepair()
	res, err := e.restorer.Restore(ctx, guildID)
	st.UnlockRepair()
	if err != nil {
		return res, err
	}

	age, _ := e.snapshots.Age(guildID)
	inc := &incident.Incident{
		GuildID:        guildID,
		AttackerID:     requestedBy,
		ViolationType:  models.CategoryNone,
		DetectedAt:     start,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		RestoreSource:  incident.SourceManualBackup,
		ItemsRestored:  res.ItemsRestored,
		ItemsSkipped:   res.ItemsSkipped,
		Warnings:       res.Warnings,
		BackupAgeHours: age.Hours(),
	}
	if rerr := e.recorder.Record(inc); rerr != nil {
		logging.Error("guild %s: manual restore not recorded: %v", guildID, rerr)
	}
	e.publish(guildID, "manual_restore", inc)
	return res, nil
}

// SetThreshold overrides one category's detection limit for a guild.
func (e *Engine) SetThreshold(guildID string, cat models.Category, max int, window time.Duration) error {
	if max < 1 {
		return fmt.Errorf("threshold must be at least 1")
	}
	if window < time.Second {
		return fmt.Errorf("window must be at least 1s")
	}
	st, ok := e.reg.Get(guildID)
	if !ok {
		return fmt.Errorf("guild %s has no protection state", guildID)
	}
	st.SetLimit(cat, config.Limit{Max: max, Window: window})
	if err := e.persistGuildConfig(st); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	logging.Info("guild %s: threshold %s set to %d per %s", guildID, cat, max, window)
	return nil
}

// RecentIncidents returns the guild's newest incidents, most recent first.
func (e *Engine) RecentIncidents(guildID string, limit int) ([]*incident.Incident, error) {
	return e.recorder.Recent(guildID, limit, time.Time{})
}
