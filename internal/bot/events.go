package bot

import (
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/database"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/detector"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
)

// Discord audit log action types used for actor attribution.
const (
	auditChannelCreate = 10
	auditChannelDelete = 12
	auditMemberKick    = 20
	auditMemberBanAdd  = 22
	auditBotAdd        = 28
	auditRoleCreate    = 30
	auditRoleUpdate    = 31
	auditRoleDelete    = 32
	auditWebhookCreate = 50
)

type auditEntry struct {
	actorID  string
	targetID string
	storedAt time.Time
}

// auditCache holds recent audit entries keyed by guild and action so
// structure events arriving moments later can be attributed without an
// API round-trip.
type auditCache struct {
	mu      sync.Mutex
	entries map[string]auditEntry
	ttl     time.Duration
}

func newAuditCache(ttl time.Duration) *auditCache {
	return &auditCache{entries: make(map[string]auditEntry), ttl: ttl}
}

func (c *auditCache) key(guildID string, action int) string {
	return guildID + ":" + strconv.Itoa(action)
}

func (c *auditCache) store(guildID string, action int, actorID, targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.entries[c.key(guildID, action)] = auditEntry{actorID: actorID, targetID: targetID, storedAt: now}
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}

func (c *auditCache) get(guildID string, action int) (auditEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[c.key(guildID, action)]
	if !ok || time.Since(e.storedAt) > c.ttl {
		return auditEntry{}, false
	}
	return e, true
}

// Events wires gateway events into the detection pipeline.
type Events struct {
	s     *Session
	det   *detector.Detector
	reg   *guildstate.Registry
	db    *database.Database
	cache *auditCache

	// last known permission bits per role, for permission-grant detection
	permMu    sync.Mutex
	rolePerms map[string]int64
}

func NewEvents(s *Session, det *detector.Detector, reg *guildstate.Registry, db *database.Database, cacheTTL time.Duration) *Events {
	return &Events{
		s:         s,
		det:       det,
		reg:       reg,
		db:        db,
		cache:     newAuditCache(cacheTTL),
		rolePerms: make(map[string]int64),
	}
}

func (e *Events) permKey(guildID, roleID string) string { return guildID + ":" + roleID }

func (e *Events) rememberRolePerms(guildID, roleID string, perms int64) {
	e.permMu.Lock()
	e.rolePerms[e.permKey(guildID, roleID)] = perms
	e.permMu.Unlock()
}

func (e *Events) lastRolePerms(guildID, roleID string) int64 {
	e.permMu.Lock()
	defer e.permMu.Unlock()
	return e.rolePerms[e.permKey(guildID, roleID)]
}

// actorFor resolves who performed an action, preferring the audit cache
// and falling back to one audit log fetch.
func (e *Events) actorFor(guildID string, action int) string {
	if entry, ok := e.cache.get(guildID, action); ok {
		return entry.actorID
	}

	audit, err := e.s.discord.GuildAuditLog(guildID, "", "", action, 1)
	if err != nil {
		logging.Warn("audit log fetch failed for guild %s action %d: %v", guildID, action, err)
		return ""
	}
	if len(audit.AuditLogEntries) == 0 {
		return ""
	}
	entry := audit.AuditLogEntries[0]
	e.cache.store(guildID, action, entry.UserID, entry.TargetID)
	return entry.UserID
}

func (e *Events) dispatch(ev models.GatewayEvent) {
	if ev.ActorID == "" {
		logging.Debug("guild %s: %s without attributable actor, ignored", ev.GuildID, ev.Type)
		return
	}
	ev.Timestamp = time.Now()
	e.det.Dispatch(ev)
}

// Attach registers all gateway handlers.
func (e *Events) Attach() {
	dg := e.s.discord

	dg.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		e.onGuildCreate(g)
	})

	// Audit entries usually land before the matching structure event;
	// caching them makes attribution a map lookup instead of a REST call.
	dg.AddHandler(func(_ *discordgo.Session, a *discordgo.GuildAuditLogEntryCreate) {
		if a.GuildID == "" || a.ActionType == nil {
			return
		}
		e.cache.store(a.GuildID, int(*a.ActionType), a.UserID, a.TargetID)
	})

	dg.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelCreate) {
		if c.GuildID == "" {
			return
		}
		e.dispatch(models.GatewayEvent{
			Type:     models.EventTypeChannelCreate,
			GuildID:  c.GuildID,
			ActorID:  e.actorFor(c.GuildID, auditChannelCreate),
			TargetID: c.ID,
		})
	})

	dg.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelDelete) {
		if c.GuildID == "" {
			return
		}
		e.dispatch(models.GatewayEvent{
			Type:     models.EventTypeChannelDelete,
			GuildID:  c.GuildID,
			ActorID:  e.actorFor(c.GuildID, auditChannelDelete),
			TargetID: c.ID,
		})
	})

	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleCreate) {
		e.rememberRolePerms(r.GuildID, r.Role.ID, r.Role.Permissions)
		e.dispatch(models.GatewayEvent{
			Type:     models.EventTypeRoleCreate,
			GuildID:  r.GuildID,
			ActorID:  e.actorFor(r.GuildID, auditRoleCreate),
			TargetID: r.Role.ID,
		})
	})

	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleDelete) {
		e.dispatch(models.GatewayEvent{
			Type:     models.EventTypeRoleDelete,
			GuildID:  r.GuildID,
			ActorID:  e.actorFor(r.GuildID, auditRoleDelete),
			TargetID: r.RoleID,
		})
	})

	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleUpdate) {
		old := e.lastRolePerms(r.GuildID, r.Role.ID)
		e.rememberRolePerms(r.GuildID, r.Role.ID, r.Role.Permissions)
		e.dispatch(models.GatewayEvent{
			Type:           models.EventTypeRoleUpdate,
			GuildID:        r.GuildID,
			ActorID:        e.actorFor(r.GuildID, auditRoleUpdate),
			TargetID:       r.Role.ID,
			OldPermissions: permset.Permissions(old),
			NewPermissions: permset.Permissions(r.Role.Permissions),
		})
	})

	dg.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanAdd) {
		e.dispatch(models.GatewayEvent{
			Type:     models.EventTypeBan,
			GuildID:  b.GuildID,
			ActorID:  e.actorFor(b.GuildID, auditMemberBanAdd),
			TargetID: b.User.ID,
		})
	})

	// MemberRemove fires for leaves, kicks, and bans alike. Only a kick
	// audit entry naming this member makes it a kick.
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
		entry, ok := e.cache.get(m.GuildID, auditMemberKick)
		if !ok || entry.targetID != m.User.ID {
			return
		}
		e.dispatch(models.GatewayEvent{
			Type:     models.EventTypeKick,
			GuildID:  m.GuildID,
			ActorID:  entry.actorID,
			TargetID: m.User.ID,
		})
	})

	dg.AddHandler(func(_ *discordgo.Session, w *discordgo.WebhooksUpdate) {
		entry, ok := e.cache.get(w.GuildID, auditWebhookCreate)
		if !ok {
			return
		}
		e.dispatch(models.GatewayEvent{
			Type:     models.EventTypeWebhookCreate,
			GuildID:  w.GuildID,
			ActorID:  entry.actorID,
			TargetID: w.ChannelID,
		})
	})

	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if !m.User.Bot {
			return
		}
		e.dispatch(models.GatewayEvent{
			Type:        models.EventTypeMemberAdd,
			GuildID:     m.GuildID,
			ActorID:     e.actorFor(m.GuildID, auditBotAdd),
			TargetID:    m.User.ID,
			TargetIsBot: true,
		})
	})

	// A manual unban lifts our block too, so the user gets a clean slate.
	dg.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanRemove) {
		st, ok := e.reg.Get(b.GuildID)
		if !ok {
			return
		}
		if st.IsBlocked(b.User.ID) {
			st.Unblock(b.User.ID)
			e.det.ResolveActor(b.GuildID, b.User.ID)
			if err := e.db.RemoveBlockedUser(b.GuildID, b.User.ID); err != nil {
				logging.Warn("guild %s: unban cleanup for %s: %v", b.GuildID, b.User.ID, err)
			}
			logging.Info("guild %s: block lifted for %s after manual unban", b.GuildID, b.User.ID)
		}
	})
}

// onGuildCreate seeds caches and resumes the guild's worker when
// protection was already enabled before a reconnect.
func (e *Events) onGuildCreate(g *discordgo.GuildCreate) {
	for _, role := range g.Roles {
		e.rememberRolePerms(g.ID, role.ID, role.Permissions)
	}

	st, ok := e.reg.Get(g.ID)
	if !ok {
		return
	}
	if st.OwnerID() == "" && g.OwnerID != "" {
		st.SetOwnerID(g.OwnerID)
	}
	if st.Enabled() {
		st.StartWorker(e.det.Handle)
		logging.Info("guild %s: protection worker resumed (%s)", g.ID, g.Name)
	}
}
