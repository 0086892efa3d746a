package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/incident"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

func (h *Handler) handleAntinuke(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	if len(data.Options) == 0 {
		return fmt.Errorf("missing subcommand")
	}

	switch data.Options[0].Name {
	case "enable":
		if err := deferRespond(s, i); err != nil {
			return err
		}
		ownerID := ""
		if guild, err := s.State.Guild(i.GuildID); err == nil {
			ownerID = guild.OwnerID
		}
		if err := h.eng.Enable(i.GuildID, ownerID); err != nil {
			followUp(s, i, fmt.Sprintf("Protection enabled, but: %v", err))
			return nil
		}
		status, _ := h.eng.Status(i.GuildID)
		followUp(s, i, fmt.Sprintf("Protection enabled. Snapshot captured: %d channels, %d roles.",
			status.SnapshotChannels, status.SnapshotRoles))

	case "disable":
		if err := h.eng.Disable(i.GuildID); err != nil {
			return err
		}
		respond(s, i, "Protection disabled. Snapshots and incident history are kept.")

	case "status":
		status, err := h.eng.Status(i.GuildID)
		if err != nil {
			return err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "**Protection:** %s\n", enabledWord(status.Enabled))
		fmt.Fprintf(&b, "**Snapshot:** %d channels, %d roles", status.SnapshotChannels, status.SnapshotRoles)
		if status.SnapshotAge > 0 {
			fmt.Fprintf(&b, " (%s old)", status.SnapshotAge.Round(time.Minute))
		}
		fmt.Fprintf(&b, "\n**Quarantine:** %s\n", activeWord(status.QuarantineActive))
		fmt.Fprintf(&b, "**Whitelisted users:** %d\n", status.WhitelistSize)
		if status.ActiveIncidents > 0 {
			fmt.Fprintf(&b, "**Responses in flight:** %d\n", status.ActiveIncidents)
		}
		respond(s, i, b.String())
	}
	return nil
}

func (h *Handler) handleQuarantine(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	if len(data.Options) == 0 {
		return fmt.Errorf("missing subcommand")
	}

	switch data.Options[0].Name {
	case "enable":
		if err := deferRespond(s, i); err != nil {
			return err
		}
		res, err := h.eng.QuarantineEnable(i.GuildID, i.Member.User.ID)
		if err != nil {
			followUp(s, i, fmt.Sprintf("Quarantine failed: %v", err))
			return nil
		}
		if res.AlreadyActive {
			followUp(s, i, "Quarantine is already active.")
			return nil
		}
		msg := fmt.Sprintf("Quarantine active. %d role(s) locked, %d skipped.", res.RolesModified, res.RolesSkipped)
		if len(res.Warnings) > 0 {
			msg += fmt.Sprintf(" %d warning(s).", len(res.Warnings))
		}
		followUp(s, i, msg)

	case "disable":
		if err := deferRespond(s, i); err != nil {
			return err
		}
		res, err := h.eng.QuarantineDisable(i.GuildID, i.Member.User.ID)
		if err != nil {
			followUp(s, i, fmt.Sprintf("Quarantine lift failed: %v", err))
			return nil
		}
		msg := fmt.Sprintf("Quarantine lifted. %d role(s) restored.", res.RolesRestored)
		if len(res.Warnings) > 0 {
			msg += fmt.Sprintf(" %d warning(s): %s", len(res.Warnings), strings.Join(res.Warnings, "; "))
		}
		followUp(s, i, msg)

	case "status":
		q, active, err := h.eng.QuarantineStatus(i.GuildID)
		if err != nil {
			return err
		}
		if !active {
			respond(s, i, "Quarantine is not active.")
			return nil
		}
		respond(s, i, fmt.Sprintf("Quarantine active since <t:%d:R>, triggered by <@%s>. %d role(s) held.",
			q.TriggeredAt.Unix(), q.TriggeredBy, len(q.ModifiedRoles)))
	}
	return nil
}

func (h *Handler) handleWhitelist(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	if len(data.Options) == 0 {
		return fmt.Errorf("missing subcommand")
	}
	sub := data.Options[0]

	switch sub.Name {
	case "add":
		user := sub.Options[0].UserValue(s)
		if err := h.eng.WhitelistAdd(i.GuildID, user.ID, i.Member.User.ID); err != nil {
			return err
		}
		respond(s, i, fmt.Sprintf("<@%s> is now exempt from detection.", user.ID))

	case "remove":
		user := sub.Options[0].UserValue(s)
		if err := h.eng.WhitelistRemove(i.GuildID, user.ID); err != nil {
			return err
		}
		respond(s, i, fmt.Sprintf("<@%s> is no longer exempt.", user.ID))

	case "view":
		status, err := h.eng.Status(i.GuildID)
		if err != nil {
			return err
		}
		if status.WhitelistSize == 0 {
			respond(s, i, "No users are whitelisted.")
			return nil
		}
		respond(s, i, fmt.Sprintf("%d user(s) whitelisted.", status.WhitelistSize))
	}
	return nil
}

func (h *Handler) handleRestore(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	if len(data.Options) == 0 {
		return fmt.Errorf("missing subcommand")
	}

	switch data.Options[0].Name {
	case "refresh":
		if err := deferRespond(s, i); err != nil {
			return err
		}
		if err := h.eng.RefreshSnapshot(i.GuildID); err != nil {
			followUp(s, i, fmt.Sprintf("Snapshot failed: %v", err))
			return nil
		}
		status, _ := h.eng.Status(i.GuildID)
		followUp(s, i, fmt.Sprintf("Snapshot refreshed: %d channels, %d roles.",
			status.SnapshotChannels, status.SnapshotRoles))

	case "backup":
		if err := deferRespond(s, i); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		res, err := h.eng.RestoreFromBackup(ctx, i.GuildID, i.Member.User.ID)
		if err != nil {
			followUp(s, i, fmt.Sprintf("Restore failed: %v", err))
			return nil
		}
		msg := fmt.Sprintf("Restore complete: %d recreated, %d already present.", res.ItemsRestored, res.ItemsSkipped)
		if len(res.Warnings) > 0 {
			msg += fmt.Sprintf(" %d warning(s).", len(res.Warnings))
		}
		followUp(s, i, msg)
	}
	return nil
}

func (h *Handler) handleSettings(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	if len(data.Options) == 0 || data.Options[0].Name != "threshold" {
		return fmt.Errorf("missing subcommand")
	}
	opts := data.Options[0].Options

	var catName string
	var max, windowSec int64
	for _, opt := range opts {
		switch opt.Name {
		case "category":
			catName = opt.StringValue()
		case "max":
			max = opt.IntValue()
		case "window":
			windowSec = opt.IntValue()
		}
	}

	cat := models.ParseCategory(catName)
	if cat == models.CategoryNone {
		return fmt.Errorf("unknown category %q", catName)
	}
	if err := h.eng.SetThreshold(i.GuildID, cat, int(max), time.Duration(windowSec)*time.Second); err != nil {
		return err
	}
	respond(s, i, fmt.Sprintf("Threshold for **%s** set to %d per %ds.", cat, max, windowSec))
	return nil
}

func (h *Handler) handleIncidents(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	limit := 10
	for _, opt := range data.Options {
		if opt.Name == "limit" {
			limit = int(opt.IntValue())
		}
	}

	incidents, err := h.eng.RecentIncidents(i.GuildID, limit)
	if err != nil {
		return err
	}
	if len(incidents) == 0 {
		respond(s, i, "No incidents recorded.")
		return nil
	}

	var b strings.Builder
	for _, inc := range incidents {
		fmt.Fprintf(&b, "<t:%d:R> ", inc.DetectedAt.Unix())
		if inc.RestoreSource == incident.SourceManualBackup {
			fmt.Fprintf(&b, "manual restore by <@%s>", inc.AttackerID)
		} else {
			fmt.Fprintf(&b, "**%s** x%d by <@%s>", inc.ViolationType, inc.ViolationCount, inc.AttackerID)
		}
		fmt.Fprintf(&b, ": restored %d, skipped %d, %dms", inc.ItemsRestored, inc.ItemsSkipped, inc.ResponseTimeMs)
		if len(inc.Warnings) > 0 {
			fmt.Fprintf(&b, ", %d warning(s)", len(inc.Warnings))
		}
		b.WriteString("\n")
	}
	respond(s, i, b.String())
	return nil
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func activeWord(on bool) string {
	if on {
		return "active"
	}
	return "inactive"
}
