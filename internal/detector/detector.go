// Package detector consumes normalized gateway events, classifies them into
// monitored categories and raises threat signals when a guild's configured
// limit is exceeded. Detection never blocks the gateway pipeline: events are
// queued per guild and malformed ones are dropped with a log line.
package detector

import (
	"sync"
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/ratewindow"
)

// Classify maps a raw event onto its monitored category. Events outside the
// monitored set, member adds of human users, and role updates that do not
// gain dangerous bits all map to CategoryNone.
func Classify(ev models.GatewayEvent) models.Category {
	switch ev.Type {
	case models.EventTypeChannelDelete:
		return models.CategoryChannelDelete
	case models.EventTypeChannelCreate:
		return models.CategoryChannelCreate
	case models.EventTypeRoleDelete:
		return models.CategoryRoleDelete
	case models.EventTypeRoleCreate:
		return models.CategoryRoleCreate
	case models.EventTypeBan:
		return models.CategoryBan
	case models.EventTypeKick:
		return models.CategoryKick
	case models.EventTypeWebhookCreate:
		return models.CategoryWebhookCreate
	case models.EventTypeRoleUpdate:
		gained := ev.NewPermissions.Gained(ev.OldPermissions)
		if gained.HasAny(permset.Dangerous) {
			return models.CategoryPermissionGrant
		}
		return models.CategoryNone
	case models.EventTypeMemberAdd:
		if ev.TargetIsBot {
			return models.CategoryBotAdd
		}
		return models.CategoryNone
	default:
		return models.CategoryNone
	}
}

type latchKey struct {
	guildID string
	actorID string
	cat     models.Category
}

// Detector is the violation detector. One instance serves all guilds; the
// per-guild workers owned by the registry call Handle in arrival order.
type Detector struct {
	reg     *guildstate.Registry
	tracker *ratewindow.Tracker
	signals chan models.ThreatSignal
	botID   string

	// latches suppress re-triggering for an actor+category after a breach
	// until the window fully elapses or the quarantine episode resolves.
	latchMu sync.Mutex
	latches map[latchKey]time.Time

	onEvent  func() // metrics hooks, may be nil
	onSignal func()
	onDrop   func()
}

func New(reg *guildstate.Registry, tracker *ratewindow.Tracker) *Detector {
	return &Detector{
		reg:     reg,
		tracker: tracker,
		signals: make(chan models.ThreatSignal, 256),
		latches: make(map[latchKey]time.Time),
	}
}

// SetBotID tells the detector which account it must never flag.
func (d *Detector) SetBotID(id string) {
	d.botID = id
}

// SetHooks installs optional counters invoked per processed event, per
// raised signal, and per dropped event.
func (d *Detector) SetHooks(onEvent, onSignal, onDrop func()) {
	d.onEvent = onEvent
	d.onSignal = onSignal
	d.onDrop = onDrop
}

// Signals is the stream of raised threat signals, consumed by the engine.
func (d *Detector) Signals() <-chan models.ThreatSignal {
	return d.signals
}

// Dispatch routes an event to its guild worker. Unprotected guilds and
// saturated queues drop the event; detection must never push back on the
// gateway.
func (d *Detector) Dispatch(ev models.GatewayEvent) {
	state, ok := d.reg.Get(ev.GuildID)
	if !ok {
		return
	}
	if !state.Enqueue(ev) {
		if d.onDrop != nil {
			d.onDrop()
		}
		logging.Warn("detector: guild %s queue full, dropping %s event", ev.GuildID, ev.Type)
	}
}

// Handle processes one event. It is called from the guild worker goroutine,
// so events for one guild arrive here in order.
func (d *Detector) Handle(ev models.GatewayEvent) {
	if d.onEvent != nil {
		d.onEvent()
	}

	if ev.GuildID == "" || ev.ActorID == "" {
		logging.Warn("detector: dropping malformed %s event (guild=%q actor=%q)", ev.Type, ev.GuildID, ev.ActorID)
		return
	}

	state, ok := d.reg.Get(ev.GuildID)
	if !ok || !state.Enabled() {
		return
	}

	// Whitelist bypass comes before any rate accounting so whitelisted
	// admins never pollute the windows.
	if state.IsWhitelisted(ev.ActorID) {
		return
	}
	if ev.ActorID == d.botID || ev.ActorID == state.OwnerID() {
		return
	}

	cat := Classify(ev)
	if cat == models.CategoryNone {
		return
	}

	limit := state.Limit(cat)
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	count, firstSeen := d.tracker.Record(ev.GuildID, ev.ActorID, cat, now, limit.Window)
	if count <= limit.Max {
		return
	}

	if !d.tryLatch(ev.GuildID, ev.ActorID, cat, now, limit.Window) {
		return
	}

	sig := models.ThreatSignal{
		GuildID:     ev.GuildID,
		ActorID:     ev.ActorID,
		Category:    cat,
		Count:       count,
		FirstSeenAt: firstSeen,
		DetectedAt:  now,
	}

	if d.onSignal != nil {
		d.onSignal()
	}
	logging.Warn("detector: threat signal guild=%s actor=%s category=%s count=%d",
		sig.GuildID, sig.ActorID, sig.Category, sig.Count)

	select {
	case d.signals <- sig:
	default:
		// The engine is badly behind. Drop rather than stall the worker;
		// the condition itself is logged loudly.
		logging.Critical("detector: signal channel full, dropping signal for guild %s", sig.GuildID)
	}
}

// tryLatch arms the one-shot suppression for actor+category. Returns false
// when a live latch already exists, meaning this breach was signalled before.
func (d *Detector) tryLatch(guildID, actorID string, cat models.Category, now time.Time, window time.Duration) bool {
	k := latchKey{guildID: guildID, actorID: actorID, cat: cat}

	d.latchMu.Lock()
	defer d.latchMu.Unlock()

	if expiry, ok := d.latches[k]; ok && now.Before(expiry) {
		// Still inside the suppressed burst. Slide the expiry so the
		// latch only releases after a full quiet window.
		d.latches[k] = now.Add(window)
		return false
	}
	d.latches[k] = now.Add(window)
	return true
}

// ResolveActor clears latches and rate windows for an actor, letting
// detection re-arm. Called when that actor's quarantine episode resolves.
func (d *Detector) ResolveActor(guildID, actorID string) {
	d.latchMu.Lock()
	for k := range d.latches {
		if k.guildID == guildID && k.actorID == actorID {
			delete(d.latches, k)
		}
	}
	d.latchMu.Unlock()
	d.tracker.ResetActor(guildID, actorID)
}
