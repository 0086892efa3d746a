package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/bot"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/engine"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
)

// Handler routes slash-command interactions onto the engine.
type Handler struct {
	session *bot.Session
	eng     *engine.Engine
}

// Setup registers command definitions and the interaction handler.
func Setup(session *bot.Session, eng *engine.Engine) (*Handler, error) {
	h := &Handler{session: session, eng: eng}
	session.Discord().AddHandler(h.handleInteraction)
	if err := session.RegisterCommands(Definitions()); err != nil {
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}
	return h, nil
}

func (h *Handler) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" {
		respond(s, i, "These commands only work inside a server.")
		return
	}
	if !h.authorized(s, i) {
		respond(s, i, "You need Administrator permission to use this.")
		return
	}

	data := i.ApplicationCommandData()
	var err error
	switch data.Name {
	case "antinuke":
		err = h.handleAntinuke(s, i, data)
	case "quarantine":
		err = h.handleQuarantine(s, i, data)
	case "whitelist":
		err = h.handleWhitelist(s, i, data)
	case "restore":
		err = h.handleRestore(s, i, data)
	case "settings":
		err = h.handleSettings(s, i, data)
	case "incidents":
		err = h.handleIncidents(s, i, data)
	}
	if err != nil {
		logging.Error("command /%s failed in guild %s: %v", data.Name, i.GuildID, err)
		respond(s, i, fmt.Sprintf("Command failed: %v", err))
	}
}

// authorized restricts management commands to the guild owner and
// administrators.
func (h *Handler) authorized(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if guild, err := s.State.Guild(i.GuildID); err == nil && guild.OwnerID == i.Member.User.ID {
		return true
	}
	return i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logging.Warn("interaction response failed: %v", err)
	}
}

// deferRespond acknowledges immediately for operations that can exceed the
// 3 second interaction deadline.
func deferRespond(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: msg,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		logging.Warn("followup failed: %v", err)
	}
}
