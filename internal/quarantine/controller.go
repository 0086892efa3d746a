// Package quarantine implements the guild-wide emergency state machine:
// Inactive -> Active -> Inactive. Activation strips dangerous permissions
// from every modifiable role; deactivation restores the captured originals
// best-effort and always lands back in Inactive, because a guild stuck in
// quarantine is worse than an incomplete restore.
package quarantine

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/logging"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
)

// RoleAPI is the slice of Discord the controller needs, implemented by the
// bot session.
type RoleAPI interface {
	GuildRoles(guildID string) ([]*discordgo.Role, error)
	EditRolePermissions(guildID, roleID string, perms permset.Permissions) error
	// BotRolePosition returns the position of the bot's highest role.
	// Only roles strictly below it can be edited.
	BotRolePosition(guildID string) (int, error)
}

// Result reports one activate/deactivate operation. Warnings carry per-role
// failures; they never abort the operation.
type Result struct {
	Success       bool
	AlreadyActive bool
	RolesModified int
	RolesRestored int
	RolesSkipped  int
	// BlocksLifted lists the actors whose blocks were cleared by a
	// successful deactivate, so callers can finish their cleanup.
	BlocksLifted []string
	Warnings     []string
}

type Controller struct {
	api RoleAPI
	reg *guildstate.Registry
}

func NewController(api RoleAPI, reg *guildstate.Registry) *Controller {
	return &Controller{api: api, reg: reg}
}

// Activate strips dangerous permissions from every role below the bot's top
// role that is not managed by an integration. Original permissions are
// captured before each write; the captured list is the only source of truth
// for reversal. Re-activation while Active is a no-op.
func (c *Controller) Activate(guildID, triggeredBy string) (Result, error) {
	state, ok := c.reg.Get(guildID)
	if !ok {
		return Result{}, fmt.Errorf("quarantine: protection not enabled for guild %s", guildID)
	}

	state.LockRepair()
	defer state.UnlockRepair()

	if _, active := state.Quarantine(); active {
		return Result{AlreadyActive: true}, nil
	}

	roles, err := c.api.GuildRoles(guildID)
	if err != nil {
		return Result{}, fmt.Errorf("quarantine activate: fetch roles: %w", err)
	}
	botPos, err := c.api.BotRolePosition(guildID)
	if err != nil {
		return Result{}, fmt.Errorf("quarantine activate: bot role position: %w", err)
	}

	q := &guildstate.QuarantineState{
		Active:      true,
		TriggeredBy: triggeredBy,
		TriggeredAt: time.Now(),
	}

	var res Result
	for _, role := range roles {
		if role.Managed || role.Position >= botPos {
			res.RolesSkipped++
			continue
		}

		original := permset.Permissions(role.Permissions)
		stripped := original.Subtract(permset.Dangerous)
		if err := c.api.EditRolePermissions(guildID, role.ID, stripped); err != nil {
			// Best effort: a role that cannot be touched must not stop
			// the rest of the guild from being locked down.
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("role %s (%s): strip failed: %v", role.Name, role.ID, err))
			continue
		}

		q.ModifiedRoles = append(q.ModifiedRoles, guildstate.ModifiedRole{
			RoleID:              role.ID,
			OriginalPermissions: original,
		})
		res.RolesModified++
	}

	state.SetQuarantine(q)
	res.Success = true
	logging.Warn("quarantine: ACTIVE guild=%s trigger=%s modified=%d warnings=%d",
		guildID, triggeredBy, res.RolesModified, len(res.Warnings))
	return res, nil
}

// Deactivate restores original permissions for every modified role that
// still exists, lifts the guild's actor blocks, and transitions to Inactive
// even when some roles cannot be restored. Unrestored roles surface as
// warnings for manual follow-up.
func (c *Controller) Deactivate(guildID, actor string) (Result, error) {
	state, ok := c.reg.Get(guildID)
	if !ok {
		return Result{}, fmt.Errorf("quarantine: protection not enabled for guild %s", guildID)
	}

	state.LockRepair()
	defer state.UnlockRepair()

	q, active := state.Quarantine()
	if !active {
		return Result{}, fmt.Errorf("quarantine: not active in guild %s", guildID)
	}

	live := make(map[string]struct{})
	roles, err := c.api.GuildRoles(guildID)
	if err != nil {
		// Proceed with restore attempts anyway; individual edits will
		// fail for deleted roles and be reported as warnings.
		logging.Error("quarantine deactivate: fetch roles: %v", err)
	} else {
		for _, role := range roles {
			live[role.ID] = struct{}{}
		}
	}

	var res Result
	for _, mod := range q.ModifiedRoles {
		if roles != nil {
			if _, exists := live[mod.RoleID]; !exists {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("role %s: deleted during quarantine, not restored", mod.RoleID))
				continue
			}
		}
		if err := c.api.EditRolePermissions(guildID, mod.RoleID, mod.OriginalPermissions); err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("role %s: restore failed: %v", mod.RoleID, err))
			continue
		}
		res.RolesRestored++
	}

	// The state transitions to Inactive no matter what happened above.
	state.SetQuarantine(nil)
	lifted := state.ClearBlocks()

	res.BlocksLifted = lifted
	res.Success = true
	logging.Info("quarantine: INACTIVE guild=%s by=%s restored=%d blocksLifted=%d warnings=%d",
		guildID, actor, res.RolesRestored, len(lifted), len(res.Warnings))
	return res, nil
}

// Status returns a copy of the guild's quarantine record.
func (c *Controller) Status(guildID string) (guildstate.QuarantineState, bool, error) {
	state, ok := c.reg.Get(guildID)
	if !ok {
		return guildstate.QuarantineState{}, false, fmt.Errorf("quarantine: protection not enabled for guild %s", guildID)
	}
	q, active := state.Quarantine()
	return q, active, nil
}
