// Package snapshot keeps last-known-good copies of a guild's channels and
// roles, used as the restoration baseline after an attack. Snapshots are
// refreshed on protection enable, on explicit command, and optionally on a
// timer. They are deliberately not refreshed on entity create/delete: an
// attacker's deletions must stay diff-able against the pre-attack baseline.
package snapshot

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
)

type ChannelSnapshot struct {
	ID         string
	Name       string
	Type       discordgo.ChannelType
	Position   int
	ParentID   string
	Overwrites []*discordgo.PermissionOverwrite
	CapturedAt time.Time
}

type RoleSnapshot struct {
	ID          string
	Name        string
	Color       int
	Position    int
	Permissions permset.Permissions
	Hoist       bool
	Mentionable bool
	Managed     bool
	CapturedAt  time.Time
}

// Diff lists entities present in the snapshot but absent from live state,
// sorted by original position ascending so restoration approximates the
// snapshot's ordering. LiveChannelNames/LiveRoleNames carry the live name
// sets so the restore engine can detect collisions without a second fetch.
type Diff struct {
	MissingChannels  []ChannelSnapshot
	MissingRoles     []RoleSnapshot
	LiveChannelNames map[string]discordgo.ChannelType
	LiveRoleNames    map[string]struct{}
}

// Fetcher is the live-state source, implemented by the bot session.
type Fetcher interface {
	GuildChannels(guildID string) ([]*discordgo.Channel, error)
	GuildRoles(guildID string) ([]*discordgo.Role, error)
}

type guildSnapshot struct {
	channels   map[string]ChannelSnapshot
	roles      map[string]RoleSnapshot
	capturedAt time.Time
}

type Store struct {
	fetcher Fetcher

	mu     sync.RWMutex
	guilds map[string]*guildSnapshot
}

func NewStore(fetcher Fetcher) *Store {
	return &Store{
		fetcher: fetcher,
		guilds:  make(map[string]*guildSnapshot),
	}
}

// Refresh fetches current channels and roles and replaces the guild's
// snapshot maps in a single swap. A half-fetched state is never published:
// if either fetch fails the previous snapshot stays intact.
func (s *Store) Refresh(guildID string) error {
	channels, err := s.fetcher.GuildChannels(guildID)
	if err != nil {
		return fmt.Errorf("snapshot refresh: fetch channels: %w", err)
	}
	roles, err := s.fetcher.GuildRoles(guildID)
	if err != nil {
		return fmt.Errorf("snapshot refresh: fetch roles: %w", err)
	}

	now := time.Now()
	snap := &guildSnapshot{
		channels:   make(map[string]ChannelSnapshot, len(channels)),
		roles:      make(map[string]RoleSnapshot, len(roles)),
		capturedAt: now,
	}

	for _, ch := range channels {
		snap.channels[ch.ID] = ChannelSnapshot{
			ID:         ch.ID,
			Name:       ch.Name,
			Type:       ch.Type,
			Position:   ch.Position,
			ParentID:   ch.ParentID,
			Overwrites: ch.PermissionOverwrites,
			CapturedAt: now,
		}
	}
	for _, role := range roles {
		snap.roles[role.ID] = RoleSnapshot{
			ID:          role.ID,
			Name:        role.Name,
			Color:       role.Color,
			Position:    role.Position,
			Permissions: permset.Permissions(role.Permissions),
			Hoist:       role.Hoist,
			Mentionable: role.Mentionable,
			Managed:     role.Managed,
			CapturedAt:  now,
		}
	}

	s.mu.Lock()
	s.guilds[guildID] = snap
	s.mu.Unlock()
	return nil
}

// ComputeDiff compares snapshot keys against live guild state.
func (s *Store) ComputeDiff(guildID string) (*Diff, error) {
	s.mu.RLock()
	snap, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("snapshot diff: no snapshot for guild %s", guildID)
	}

	liveChannels, err := s.fetcher.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("snapshot diff: fetch channels: %w", err)
	}
	liveRoles, err := s.fetcher.GuildRoles(guildID)
	if err != nil {
		return nil, fmt.Errorf("snapshot diff: fetch roles: %w", err)
	}

	diff := &Diff{
		LiveChannelNames: make(map[string]discordgo.ChannelType, len(liveChannels)),
		LiveRoleNames:    make(map[string]struct{}, len(liveRoles)),
	}

	liveChannelIDs := make(map[string]struct{}, len(liveChannels))
	for _, ch := range liveChannels {
		liveChannelIDs[ch.ID] = struct{}{}
		diff.LiveChannelNames[ch.Name] = ch.Type
	}
	liveRoleIDs := make(map[string]struct{}, len(liveRoles))
	for _, role := range liveRoles {
		liveRoleIDs[role.ID] = struct{}{}
		diff.LiveRoleNames[role.Name] = struct{}{}
	}

	for id, ch := range snap.channels {
		if _, alive := liveChannelIDs[id]; !alive {
			diff.MissingChannels = append(diff.MissingChannels, ch)
		}
	}
	for id, role := range snap.roles {
		if _, alive := liveRoleIDs[id]; !alive {
			if role.Managed {
				// Integration roles cannot be recreated by anyone but
				// their integration.
				continue
			}
			diff.MissingRoles = append(diff.MissingRoles, role)
		}
	}

	sort.Slice(diff.MissingChannels, func(i, j int) bool {
		return diff.MissingChannels[i].Position < diff.MissingChannels[j].Position
	})
	sort.Slice(diff.MissingRoles, func(i, j int) bool {
		return diff.MissingRoles[i].Position < diff.MissingRoles[j].Position
	})

	return diff, nil
}

// Has reports whether a snapshot exists for the guild.
func (s *Store) Has(guildID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.guilds[guildID]
	return ok
}

// Age returns how old the guild's snapshot is.
func (s *Store) Age(guildID string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.guilds[guildID]
	if !ok {
		return 0, false
	}
	return time.Since(snap.capturedAt), true
}

// Role returns one role snapshot by ID.
func (s *Store) Role(guildID, roleID string) (RoleSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.guilds[guildID]
	if !ok {
		return RoleSnapshot{}, false
	}
	role, ok := snap.roles[roleID]
	return role, ok
}

// Counts reports how many channels and roles the snapshot holds.
func (s *Store) Counts(guildID string) (channels, roles int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.guilds[guildID]
	if !ok {
		return 0, 0
	}
	return len(snap.channels), len(snap.roles)
}
