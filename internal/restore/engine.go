// Package restore performs diff-based reconciliation between the snapshot
// store and live guild state: deleted roles and channels are recreated from
// their stored attributes, conflicts are skipped, and individual failures
// become warnings instead of aborting the batch.
package restore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/snapshot"
)

// RoleCreate carries the attributes needed to recreate a deleted role.
type RoleCreate struct {
	Name        string
	Color       int
	Permissions permset.Permissions
	Hoist       bool
	Mentionable bool
}

// ChannelCreate carries the attributes needed to recreate a deleted channel.
type ChannelCreate struct {
	Name       string
	Type       discordgo.ChannelType
	Position   int
	ParentID   string
	Overwrites []*discordgo.PermissionOverwrite
}

// API is the creation surface, implemented by the bot session. Create calls
// honor ctx for per-item timeouts and return the new entity's ID.
type API interface {
	CreateRole(ctx context.Context, guildID string, p RoleCreate) (string, error)
	CreateChannel(ctx context.Context, guildID string, p ChannelCreate) (string, error)
}

// Result reports one restore batch. Warnings carry per-item failures after
// retries were exhausted.
type Result struct {
	ItemsRestored int
	ItemsSkipped  int
	Warnings      []string
}

type Engine struct {
	api         API
	snapshots   *snapshot.Store
	reg         *guildstate.Registry
	maxRetries  int
	backoff     time.Duration
	itemTimeout time.Duration
}

func NewEngine(api API, snapshots *snapshot.Store, reg *guildstate.Registry) *Engine {
	return &Engine{
		api:         api,
		snapshots:   snapshots,
		reg:         reg,
		maxRetries:  3,
		backoff:     250 * time.Millisecond,
		itemTimeout: 5 * time.Second,
	}
}

// SetRetryPolicy overrides the per-item retry bounds.
func (e *Engine) SetRetryPolicy(maxRetries int, backoff, itemTimeout time.Duration) {
	e.maxRetries = maxRetries
	e.backoff = backoff
	e.itemTimeout = itemTimeout
}

// Restore recreates entities present in the snapshot but missing live.
// Roles are recreated before channels so permission overwrites have targets,
// and new role IDs are remapped into the overwrites of recreated channels.
// The caller holds the guild repair lock.
func (e *Engine) Restore(ctx context.Context, guildID string) (Result, error) {
	if _, ok := e.reg.Get(guildID); !ok {
		return Result{}, fmt.Errorf("restore: protection not enabled for guild %s", guildID)
	}

	diff, err := e.snapshots.ComputeDiff(guildID)
	if err != nil {
		return Result{}, err
	}

	var res Result

	// Old role ID -> new role ID, for overwrite remapping below.
	roleIDMap := make(map[string]string)

	for _, role := range diff.MissingRoles {
		if _, taken := diff.LiveRoleNames[role.Name]; taken {
			// A same-named role already exists, likely manual admin
			// recovery during the attack. Recreating would duplicate.
			res.ItemsSkipped++
			continue
		}

		newID, err := e.createRoleWithRetry(ctx, guildID, RoleCreate{
			Name:        role.Name,
			Color:       role.Color,
			Permissions: role.Permissions,
			Hoist:       role.Hoist,
			Mentionable: role.Mentionable,
		})
		if err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("role %q: %v", role.Name, err))
			res.ItemsSkipped++
			continue
		}
		roleIDMap[role.ID] = newID
		res.ItemsRestored++
	}

	// Categories first so ParentID references resolve, then the rest.
	channelIDMap := make(map[string]string)
	ordered := make([]snapshot.ChannelSnapshot, 0, len(diff.MissingChannels))
	for _, ch := range diff.MissingChannels {
		if ch.Type == discordgo.ChannelTypeGuildCategory {
			ordered = append(ordered, ch)
		}
	}
	for _, ch := range diff.MissingChannels {
		if ch.Type != discordgo.ChannelTypeGuildCategory {
			ordered = append(ordered, ch)
		}
	}

	for _, ch := range ordered {
		if liveType, taken := diff.LiveChannelNames[ch.Name]; taken && liveType == ch.Type {
			res.ItemsSkipped++
			continue
		}

		parentID := ch.ParentID
		if mapped, ok := channelIDMap[parentID]; ok {
			parentID = mapped
		}

		newID, err := e.createChannelWithRetry(ctx, guildID, ChannelCreate{
			Name:       ch.Name,
			Type:       ch.Type,
			Position:   ch.Position,
			ParentID:   parentID,
			Overwrites: remapOverwrites(ch.Overwrites, roleIDMap),
		})
		if err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("channel %q: %v", ch.Name, err))
			res.ItemsSkipped++
			continue
		}
		channelIDMap[ch.ID] = newID
		res.ItemsRestored++
	}

	logging.Info("restore: guild=%s restored=%d skipped=%d warnings=%d",
		guildID, res.ItemsRestored, res.ItemsSkipped, len(res.Warnings))
	return res, nil
}

// remapOverwrites rewrites overwrite targets that point at roles recreated
// in this batch. Targets that were neither remapped nor recreated are kept
// as-is; Discord silently ignores overwrites for missing targets.
func remapOverwrites(in []*discordgo.PermissionOverwrite, roleIDMap map[string]string) []*discordgo.PermissionOverwrite {
	if len(in) == 0 {
		return nil
	}
	out := make([]*discordgo.PermissionOverwrite, 0, len(in))
	for _, ow := range in {
		mapped := *ow
		if newID, ok := roleIDMap[ow.ID]; ok {
			mapped.ID = newID
		}
		out = append(out, &mapped)
	}
	return out
}

func (e *Engine) createRoleWithRetry(ctx context.Context, guildID string, p RoleCreate) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.backoff << (attempt - 1)):
			}
		}

		itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
		id, err := e.api.CreateRole(itemCtx, guildID, p)
		cancel()
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !isTransient(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("retries exhausted: %w", lastErr)
}

func (e *Engine) createChannelWithRetry(ctx context.Context, guildID string, p ChannelCreate) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.backoff << (attempt - 1)):
			}
		}

		itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
		id, err := e.api.CreateChannel(itemCtx, guildID, p)
		cancel()
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !isTransient(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("retries exhausted: %w", lastErr)
}

// isTransient reports whether an API error is worth retrying: rate limits,
// server errors, timeouts. Permission denials and validation errors are not.
func isTransient(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}
	var rlErr *discordgo.RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
