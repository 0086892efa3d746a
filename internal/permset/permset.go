// Package permset models Discord permission bitfields as a typed set so that
// stripping or granting groups of permissions is a named operation instead of
// bit arithmetic scattered across call sites.
package permset

import "strings"

type Permissions int64

const (
	KickMembers    Permissions = 1 << 1
	BanMembers     Permissions = 1 << 2
	Administrator  Permissions = 1 << 3
	ManageChannels Permissions = 1 << 4
	ManageGuild    Permissions = 1 << 5
	ManageRoles    Permissions = 1 << 28
	ManageWebhooks Permissions = 1 << 29
)

// Dangerous is the set stripped guild-wide while a quarantine is active. Any
// one of these is enough to continue a nuke, so they travel together.
var Dangerous = Union(
	Administrator,
	ManageGuild,
	ManageRoles,
	ManageChannels,
	BanMembers,
	KickMembers,
	ManageWebhooks,
)

func Union(perms ...Permissions) Permissions {
	var out Permissions
	for _, p := range perms {
		out |= p
	}
	return out
}

// Subtract returns p without any bit present in q.
func (p Permissions) Subtract(q Permissions) Permissions {
	return p &^ q
}

// Has reports whether every bit of q is present in p.
func (p Permissions) Has(q Permissions) bool {
	return p&q == q
}

// HasAny reports whether at least one bit of q is present in p.
func (p Permissions) HasAny(q Permissions) bool {
	return p&q != 0
}

// Gained returns the bits present in p that were absent from old.
func (p Permissions) Gained(old Permissions) Permissions {
	return p &^ old
}

var flagNames = []struct {
	flag Permissions
	name string
}{
	{Administrator, "Administrator"},
	{ManageGuild, "ManageGuild"},
	{ManageRoles, "ManageRoles"},
	{ManageChannels, "ManageChannels"},
	{BanMembers, "BanMembers"},
	{KickMembers, "KickMembers"},
	{ManageWebhooks, "ManageWebhooks"},
}

// String names the known flags present in p. Bits outside the monitored set
// are summarized as "+other".
func (p Permissions) String() string {
	var names []string
	rest := p
	for _, f := range flagNames {
		if p.Has(f.flag) {
			names = append(names, f.name)
			rest = rest.Subtract(f.flag)
		}
	}
	if rest != 0 {
		names = append(names, "+other")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
