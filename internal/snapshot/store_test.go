package snapshot

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	channels []*discordgo.Channel
	roles    []*discordgo.Role
	chanErr  error
	roleErr  error
}

func (f *fakeFetcher) GuildChannels(string) ([]*discordgo.Channel, error) {
	return f.channels, f.chanErr
}

func (f *fakeFetcher) GuildRoles(string) ([]*discordgo.Role, error) {
	return f.roles, f.roleErr
}

func channel(id, name string) *discordgo.Channel {
	return &discordgo.Channel{ID: id, Name: name, Type: discordgo.ChannelTypeGuildText}
}

func role(id, name string, pos int) *discordgo.Role {
	return &discordgo.Role{ID: id, Name: name, Position: pos}
}

func TestRefreshAndCounts(t *testing.T) {
	f := &fakeFetcher{
		channels: []*discordgo.Channel{channel("c1", "general"), channel("c2", "dev")},
		roles:    []*discordgo.Role{role("r1", "mod", 2), role("r2", "member", 1)},
	}
	s := NewStore(f)

	require.False(t, s.Has("g1"))
	require.NoError(t, s.Refresh("g1"))
	require.True(t, s.Has("g1"))

	ch, rl := s.Counts("g1")
	assert.Equal(t, 2, ch)
	assert.Equal(t, 2, rl)

	age, ok := s.Age("g1")
	require.True(t, ok)
	assert.GreaterOrEqual(t, age.Nanoseconds(), int64(0))
}

func TestRefreshFailureKeepsOldSnapshot(t *testing.T) {
	f := &fakeFetcher{
		channels: []*discordgo.Channel{channel("c1", "general")},
		roles:    []*discordgo.Role{role("r1", "mod", 1)},
	}
	s := NewStore(f)
	require.NoError(t, s.Refresh("g1"))

	f.roleErr = errors.New("api down")
	f.channels = nil
	require.Error(t, s.Refresh("g1"))

	ch, rl := s.Counts("g1")
	assert.Equal(t, 1, ch, "failed refresh must not publish a partial snapshot")
	assert.Equal(t, 1, rl)
}

func TestComputeDiffFindsMissing(t *testing.T) {
	f := &fakeFetcher{
		channels: []*discordgo.Channel{channel("c1", "general"), channel("c2", "dev"), channel("c3", "ops")},
		roles:    []*discordgo.Role{role("r1", "mod", 3), role("r2", "member", 1)},
	}
	s := NewStore(f)
	require.NoError(t, s.Refresh("g1"))

	// Attacker deletes two channels and one role.
	f.channels = []*discordgo.Channel{channel("c2", "dev")}
	f.roles = []*discordgo.Role{role("r2", "member", 1)}

	diff, err := s.ComputeDiff("g1")
	require.NoError(t, err)
	require.Len(t, diff.MissingChannels, 2)
	require.Len(t, diff.MissingRoles, 1)
	assert.Equal(t, "mod", diff.MissingRoles[0].Name)

	assert.Contains(t, diff.LiveChannelNames, "dev")
	assert.Contains(t, diff.LiveRoleNames, "member")
}

func TestComputeDiffIdempotentWhenNothingMissing(t *testing.T) {
	f := &fakeFetcher{
		channels: []*discordgo.Channel{channel("c1", "general")},
		roles:    []*discordgo.Role{role("r1", "mod", 1)},
	}
	s := NewStore(f)
	require.NoError(t, s.Refresh("g1"))

	diff, err := s.ComputeDiff("g1")
	require.NoError(t, err)
	assert.Empty(t, diff.MissingChannels)
	assert.Empty(t, diff.MissingRoles)
}

func TestComputeDiffExcludesManagedRoles(t *testing.T) {
	f := &fakeFetcher{
		roles: []*discordgo.Role{
			{ID: "r1", Name: "somebot", Managed: true},
			{ID: "r2", Name: "mod"},
		},
	}
	s := NewStore(f)
	require.NoError(t, s.Refresh("g1"))

	f.roles = nil
	diff, err := s.ComputeDiff("g1")
	require.NoError(t, err)
	require.Len(t, diff.MissingRoles, 1)
	assert.Equal(t, "mod", diff.MissingRoles[0].Name)
}

func TestComputeDiffOrdersByPosition(t *testing.T) {
	f := &fakeFetcher{
		roles: []*discordgo.Role{role("r1", "top", 5), role("r2", "middle", 3), role("r3", "bottom", 1)},
	}
	s := NewStore(f)
	require.NoError(t, s.Refresh("g1"))

	f.roles = nil
	diff, err := s.ComputeDiff("g1")
	require.NoError(t, err)
	require.Len(t, diff.MissingRoles, 3)
	assert.Equal(t, "bottom", diff.MissingRoles[0].Name)
	assert.Equal(t, "top", diff.MissingRoles[2].Name)
}

func TestComputeDiffWithoutSnapshot(t *testing.T) {
	s := NewStore(&fakeFetcher{})
	_, err := s.ComputeDiff("g1")
	assert.Error(t, err)
}

func TestRoleLookup(t *testing.T) {
	f := &fakeFetcher{roles: []*discordgo.Role{{ID: "r1", Name: "mod", Permissions: 8}}}
	s := NewStore(f)
	require.NoError(t, s.Refresh("g1"))

	rs, ok := s.Role("g1", "r1")
	require.True(t, ok)
	assert.Equal(t, "mod", rs.Name)
	assert.EqualValues(t, 8, rs.Permissions)

	_, ok = s.Role("g1", "nope")
	assert.False(t, ok)
}
