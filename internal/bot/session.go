package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
)

// Session wraps the gateway connection. Structure-changing events arrive
// here and are attributed to an actor before entering the detection
// pipeline.
type Session struct {
	discord *discordgo.Session
	botID   string
}

func New(token string) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentGuildModeration |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildWebhooks

	dg.StateEnabled = true
	return &Session{discord: dg}, nil
}

// Open connects to the gateway and records the bot's own user ID.
func (s *Session) Open() error {
	if err := s.discord.Open(); err != nil {
		return fmt.Errorf("failed to open gateway connection: %w", err)
	}
	if s.discord.State.User != nil {
		s.botID = s.discord.State.User.ID
	}
	logging.Info("gateway connected, bot id %s", s.botID)
	return nil
}

func (s *Session) Close() error {
	if s.discord != nil {
		return s.discord.Close()
	}
	return nil
}

// BotID returns the bot's own user ID, empty before Open.
func (s *Session) BotID() string { return s.botID }

// Discord exposes the raw session for the command layer.
func (s *Session) Discord() *discordgo.Session { return s.discord }

// RegisterCommands registers slash commands globally.
func (s *Session) RegisterCommands(commands []*discordgo.ApplicationCommand) error {
	for _, cmd := range commands {
		if _, err := s.discord.ApplicationCommandCreate(s.discord.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("failed to register /%s: %w", cmd.Name, err)
		}
		logging.Info("registered command /%s", cmd.Name)
	}
	return nil
}
