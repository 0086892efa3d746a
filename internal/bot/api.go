package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/restore"
)

// API adapts the discordgo session to the narrow surfaces the snapshot
// store, quarantine controller, and restore engine depend on.
type API struct {
	s *Session
}

func NewAPI(s *Session) *API {
	return &API{s: s}
}

func (a *API) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return a.s.discord.GuildChannels(guildID)
}

func (a *API) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	return a.s.discord.GuildRoles(guildID)
}

func (a *API) EditRolePermissions(guildID, roleID string, perms permset.Permissions) error {
	p := int64(perms)
	_, err := a.s.discord.GuildRoleEdit(guildID, roleID, &discordgo.RoleParams{
		Permissions: &p,
	})
	return err
}

// BotRolePosition resolves the highest role position held by the bot
// itself. Role edits only succeed against roles strictly below it.
func (a *API) BotRolePosition(guildID string) (int, error) {
	member, err := a.s.discord.State.Member(guildID, a.s.botID)
	if err != nil {
		member, err = a.s.discord.GuildMember(guildID, a.s.botID)
		if err != nil {
			return 0, fmt.Errorf("resolve bot member: %w", err)
		}
	}

	roles, err := a.GuildRoles(guildID)
	if err != nil {
		return 0, fmt.Errorf("resolve guild roles: %w", err)
	}
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}

	highest := 0
	for _, roleID := range member.Roles {
		if r, ok := byID[roleID]; ok && r.Position > highest {
			highest = r.Position
		}
	}
	return highest, nil
}

func (a *API) CreateRole(ctx context.Context, guildID string, p restore.RoleCreate) (string, error) {
	perms := int64(p.Permissions)
	role, err := a.s.discord.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        p.Name,
		Color:       &p.Color,
		Hoist:       &p.Hoist,
		Permissions: &perms,
		Mentionable: &p.Mentionable,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return role.ID, nil
}

func (a *API) CreateChannel(ctx context.Context, guildID string, p restore.ChannelCreate) (string, error) {
	ch, err := a.s.discord.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 p.Name,
		Type:                 p.Type,
		Position:             p.Position,
		ParentID:             p.ParentID,
		PermissionOverwrites: p.Overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}
