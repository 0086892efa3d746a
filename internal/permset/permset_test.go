package permset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDangerousCoversTakeoverBits(t *testing.T) {
	for _, p := range []Permissions{
		Administrator, BanMembers, KickMembers,
		ManageChannels, ManageGuild, ManageRoles, ManageWebhooks,
	} {
		assert.True(t, Dangerous.Has(p), "0x%x should be dangerous", int64(p))
	}
	assert.False(t, Dangerous.Has(1<<11), "send-messages is not a takeover bit")
}

func TestSubtractStripsOnlyRequestedBits(t *testing.T) {
	perms := Administrator | BanMembers | Permissions(1<<11)
	stripped := perms.Subtract(Dangerous)

	assert.False(t, stripped.HasAny(Dangerous))
	assert.True(t, stripped.Has(1<<11), "benign bits survive a strip")
}

func TestGained(t *testing.T) {
	old := KickMembers | Permissions(1<<11)

	gained := (old | BanMembers).Gained(old)
	assert.Equal(t, BanMembers, gained)

	// A pure removal gains nothing.
	assert.Equal(t, Permissions(0), KickMembers.Gained(old))

	// Unchanged permissions gain nothing.
	assert.Equal(t, Permissions(0), old.Gained(old))
}

func TestUnionAndHasAny(t *testing.T) {
	p := Union(KickMembers, BanMembers)
	assert.True(t, p.Has(KickMembers))
	assert.True(t, p.Has(BanMembers))
	assert.True(t, p.HasAny(BanMembers|Administrator))
	assert.False(t, p.HasAny(Administrator))
}

func TestString(t *testing.T) {
	assert.Equal(t, "none", Permissions(0).String())
	assert.Equal(t, "BanMembers|KickMembers", Union(KickMembers, BanMembers).String())
	assert.Equal(t, "Administrator|+other", (Administrator | 1<<11).String())
}
