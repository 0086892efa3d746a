package notifier

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/incident"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

// DiscordSink posts incident embeds to each guild's configured log
// channel. Sends run on their own goroutine so a slow channel send never
// sits on the response path.
type DiscordSink struct {
	session *discordgo.Session
	reg     *guildstate.Registry
}

func NewDiscordSink(session *discordgo.Session, reg *guildstate.Registry) *DiscordSink {
	return &DiscordSink{session: session, reg: reg}
}

func (d *DiscordSink) Publish(guildID, eventType string, payload interface{}) {
	st, ok := d.reg.Get(guildID)
	if !ok {
		return
	}
	channelID := st.LogChannelID()
	if channelID == "" {
		return
	}

	var embed *discordgo.MessageEmbed
	switch ev := payload.(type) {
	case models.ThreatSignal:
		embed = threatEmbed(ev)
	case *incident.Incident:
		embed = incidentEmbed(ev)
	default:
		return
	}

	go d.session.ChannelMessageSendEmbed(channelID, embed)
}

func threatEmbed(sig models.ThreatSignal) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Threat Detected",
		Color: 0xED4245,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Actor", Value: fmt.Sprintf("<@%s> (`%s`)", sig.ActorID, sig.ActorID), Inline: true},
			{Name: "Violation", Value: fmt.Sprintf("%s x%d", sig.Category, sig.Count), Inline: true},
			{Name: "Detected", Value: fmt.Sprintf("<t:%d:F>", sig.DetectedAt.Unix()), Inline: false},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func incidentEmbed(inc *incident.Incident) *discordgo.MessageEmbed {
	summary := fmt.Sprintf("restored %d, skipped %d", inc.ItemsRestored, inc.ItemsSkipped)
	if len(inc.Warnings) > 0 {
		summary += fmt.Sprintf(", %d warning(s)", len(inc.Warnings))
	}
	return &discordgo.MessageEmbed{
		Title: "Incident Resolved",
		Color: 0x57F287,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Incident", Value: fmt.Sprintf("`%s`", inc.ID), Inline: false},
			{Name: "Attacker", Value: fmt.Sprintf("<@%s>", inc.AttackerID), Inline: true},
			{Name: "Response Time", Value: fmt.Sprintf("%d ms", inc.ResponseTimeMs), Inline: true},
			{Name: "Restore", Value: summary, Inline: false},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// Fanout forwards each event to every sink.
type Fanout []interface {
	Publish(guildID, eventType string, payload interface{})
}

func (f Fanout) Publish(guildID, eventType string, payload interface{}) {
	for _, sink := range f {
		sink.Publish(guildID, eventType, payload)
	}
}
