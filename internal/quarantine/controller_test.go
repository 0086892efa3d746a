package quarantine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
)

type fakeRoleAPI struct {
	roles    []*discordgo.Role
	botPos   int
	perms    map[string]permset.Permissions
	editErrs map[string]error
	rolesErr error
}

func newFakeRoleAPI(botPos int) *fakeRoleAPI {
	return &fakeRoleAPI{
		botPos:   botPos,
		perms:    make(map[string]permset.Permissions),
		editErrs: make(map[string]error),
	}
}

func (f *fakeRoleAPI) addRole(id string, pos int, perms permset.Permissions, managed bool) {
	f.roles = append(f.roles, &discordgo.Role{
		ID: id, Name: id, Position: pos, Permissions: int64(perms), Managed: managed,
	})
	f.perms[id] = perms
}

func (f *fakeRoleAPI) GuildRoles(string) ([]*discordgo.Role, error) {
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	return f.roles, nil
}

func (f *fakeRoleAPI) EditRolePermissions(_, roleID string, perms permset.Permissions) error {
	if err := f.editErrs[roleID]; err != nil {
		return err
	}
	f.perms[roleID] = perms
	return nil
}

func (f *fakeRoleAPI) BotRolePosition(string) (int, error) {
	return f.botPos, nil
}

func setup(t *testing.T, api RoleAPI) (*Controller, *guildstate.State) {
	t.Helper()
	reg := guildstate.NewRegistry(16)
	st := reg.Create("g1")
	return NewController(api, reg), st
}

func TestActivateStripsEditableRoles(t *testing.T) {
	api := newFakeRoleAPI(100)
	// Ten roles, two managed by integrations.
	for i := 0; i < 8; i++ {
		api.addRole(fmt.Sprintf("r%d", i), i+1, permset.ManageChannels|permset.KickMembers, false)
	}
	api.addRole("integration1", 9, permset.Administrator, true)
	api.addRole("integration2", 10, permset.Administrator, true)

	c, st := setup(t, api)
	res, err := c.Activate("g1", "attacker")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 8, res.RolesModified)
	assert.Equal(t, 2, res.RolesSkipped)
	assert.Empty(t, res.Warnings)

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("r%d", i)
		assert.False(t, api.perms[id].HasAny(permset.Dangerous), "role %s must hold no dangerous bits", id)
	}
	assert.True(t, api.perms["integration1"].Has(permset.Administrator), "managed roles are untouched")

	q, active := st.Quarantine()
	require.True(t, active)
	assert.Equal(t, "attacker", q.TriggeredBy)
	assert.Len(t, q.ModifiedRoles, 8)
}

func TestActivateSkipsRolesAboveBot(t *testing.T) {
	api := newFakeRoleAPI(5)
	api.addRole("below", 3, permset.BanMembers, false)
	api.addRole("equal", 5, permset.BanMembers, false)
	api.addRole("above", 7, permset.BanMembers, false)

	c, _ := setup(t, api)
	res, err := c.Activate("g1", "attacker")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RolesModified)
	assert.Equal(t, 2, res.RolesSkipped)
	assert.True(t, api.perms["above"].Has(permset.BanMembers))
	assert.True(t, api.perms["equal"].Has(permset.BanMembers))
}

func TestActivateIsIdempotentWhileActive(t *testing.T) {
	api := newFakeRoleAPI(100)
	api.addRole("r1", 1, permset.BanMembers, false)

	c, _ := setup(t, api)
	_, err := c.Activate("g1", "attacker")
	require.NoError(t, err)

	res, err := c.Activate("g1", "attacker")
	require.NoError(t, err)
	assert.True(t, res.AlreadyActive)
	assert.Zero(t, res.RolesModified)
}

func TestActivateContinuesPastEditFailures(t *testing.T) {
	api := newFakeRoleAPI(100)
	api.addRole("good", 1, permset.BanMembers, false)
	api.addRole("bad", 2, permset.BanMembers, false)
	api.editErrs["bad"] = errors.New("missing permissions")

	c, st := setup(t, api)
	res, err := c.Activate("g1", "attacker")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RolesModified)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "bad")

	// Failed roles are not recorded, so deactivation will not rewrite them.
	q, _ := st.Quarantine()
	require.Len(t, q.ModifiedRoles, 1)
	assert.Equal(t, "good", q.ModifiedRoles[0].RoleID)
}

func TestDeactivateRestoresOriginals(t *testing.T) {
	api := newFakeRoleAPI(100)
	original := permset.ManageRoles | permset.ManageWebhooks | permset.KickMembers
	api.addRole("r1", 1, original, false)

	c, st := setup(t, api)
	_, err := c.Activate("g1", "attacker")
	require.NoError(t, err)
	require.False(t, api.perms["r1"].HasAny(permset.Dangerous))

	res, err := c.Deactivate("g1", "admin")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RolesRestored)
	assert.Equal(t, original, api.perms["r1"], "round trip must restore the exact original bits")

	_, active := st.Quarantine()
	assert.False(t, active)
}

func TestDeactivateSkipsDeletedRoles(t *testing.T) {
	api := newFakeRoleAPI(100)
	api.addRole("kept", 1, permset.BanMembers, false)
	api.addRole("doomed", 2, permset.BanMembers, false)

	c, st := setup(t, api)
	_, err := c.Activate("g1", "attacker")
	require.NoError(t, err)

	// Role deleted while quarantine was active.
	api.roles = api.roles[:1]

	res, err := c.Deactivate("g1", "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RolesRestored)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "doomed")

	_, active := st.Quarantine()
	assert.False(t, active, "state must go inactive even with warnings")
}

func TestDeactivateLiftsBlocks(t *testing.T) {
	api := newFakeRoleAPI(100)
	api.addRole("r1", 1, permset.BanMembers, false)

	c, st := setup(t, api)
	_, err := c.Activate("g1", "attacker")
	require.NoError(t, err)
	st.Block("attacker", "spree", time.Now())

	res, err := c.Deactivate("g1", "admin")
	require.NoError(t, err)
	assert.False(t, st.IsBlocked("attacker"))
	assert.Equal(t, []string{"attacker"}, res.BlocksLifted)
}

func TestDeactivateWithoutActiveQuarantine(t *testing.T) {
	c, st := setup(t, newFakeRoleAPI(100))
	st.Block("attacker", "spree", time.Now())

	res, err := c.Deactivate("g1", "admin")
	assert.Error(t, err)
	assert.Empty(t, res.BlocksLifted)
	assert.True(t, st.IsBlocked("attacker"), "a rejected deactivate must not lift blocks")
}

func TestStatus(t *testing.T) {
	api := newFakeRoleAPI(100)
	api.addRole("r1", 1, permset.BanMembers, false)
	c, _ := setup(t, api)

	_, active, err := c.Status("g1")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = c.Activate("g1", "attacker")
	require.NoError(t, err)

	q, active, err := c.Status("g1")
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, "attacker", q.TriggeredBy)
}

func TestUnknownGuild(t *testing.T) {
	reg := guildstate.NewRegistry(16)
	c := NewController(newFakeRoleAPI(100), reg)
	_, err := c.Activate("nope", "x")
	assert.Error(t, err)
}
