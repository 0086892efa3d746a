package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

// Definitions returns every slash command the protection engine exposes.
func Definitions() []*discordgo.ApplicationCommand {
	categoryChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.AllCategories()))
	for _, cat := range models.AllCategories() {
		categoryChoices = append(categoryChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  cat.String(),
			Value: cat.String(),
		})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "antinuke",
			Description: "Server protection controls",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "enable",
					Description: "Enable protection and capture an initial snapshot",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "disable",
					Description: "Disable protection (snapshots and history are kept)",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "status",
					Description: "Show protection status for this server",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{
			Name:        "quarantine",
			Description: "Guild-wide permission lockdown",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "enable",
					Description: "Strip dangerous permissions from every role",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "disable",
					Description: "Restore role permissions and lift blocks",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "status",
					Description: "Show lockdown state",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{
			Name:        "whitelist",
			Description: "Users exempt from detection",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "add",
					Description: "Exempt a user from detection",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "user",
							Description: "User to exempt",
							Type:        discordgo.ApplicationCommandOptionUser,
							Required:    true,
						},
					},
				},
				{
					Name:        "remove",
					Description: "Revoke a user's exemption",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "user",
							Description: "User to remove",
							Type:        discordgo.ApplicationCommandOptionUser,
							Required:    true,
						},
					},
				},
				{
					Name:        "view",
					Description: "List exempt users",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{
			Name:        "restore",
			Description: "Structure snapshot operations",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "refresh",
					Description: "Capture a fresh snapshot of channels and roles",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "backup",
					Description: "Recreate deleted channels and roles from the last snapshot",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{
			Name:        "settings",
			Description: "Protection settings",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "threshold",
					Description: "Set a detection threshold for one category",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "category",
							Description: "Violation category",
							Type:        discordgo.ApplicationCommandOptionString,
							Required:    true,
							Choices:     categoryChoices,
						},
						{
							Name:        "max",
							Description: "Actions allowed inside the window",
							Type:        discordgo.ApplicationCommandOptionInteger,
							Required:    true,
						},
						{
							Name:        "window",
							Description: "Window length in seconds",
							Type:        discordgo.ApplicationCommandOptionInteger,
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:        "incidents",
			Description: "Show recent incidents for this server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "limit",
					Description: "How many to show (default 10)",
					Type:        discordgo.ApplicationCommandOptionInteger,
					Required:    false,
				},
			},
		},
	}
}
