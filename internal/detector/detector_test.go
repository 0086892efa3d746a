package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/config"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/guildstate"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/ratewindow"
)

func newTestDetector(t *testing.T) (*Detector, *guildstate.Registry) {
	t.Helper()
	reg := guildstate.NewRegistry(64)
	return New(reg, ratewindow.NewTracker()), reg
}

func drainSignal(t *testing.T, d *Detector) (models.ThreatSignal, bool) {
	t.Helper()
	select {
	case sig := <-d.Signals():
		return sig, true
	default:
		return models.ThreatSignal{}, false
	}
}

func roleDelete(guildID, actorID string, at time.Time) models.GatewayEvent {
	return models.GatewayEvent{
		Type:      models.EventTypeRoleDelete,
		GuildID:   guildID,
		ActorID:   actorID,
		TargetID:  "r1",
		Timestamp: at,
	}
}

func TestSignalOnThresholdBreach(t *testing.T) {
	d, reg := newTestDetector(t)
	st := reg.Create("g1")
	st.SetLimit(models.CategoryRoleDelete, config.Limit{Max: 2, Window: 8 * time.Second})

	base := time.Now()
	d.Handle(roleDelete("g1", "attacker", base))
	_, got := drainSignal(t, d)
	assert.False(t, got, "first delete is under the limit")

	d.Handle(roleDelete("g1", "attacker", base.Add(time.Second)))
	_, got = drainSignal(t, d)
	assert.False(t, got, "second delete reaches but does not exceed the limit")

	d.Handle(roleDelete("g1", "attacker", base.Add(2*time.Second)))
	sig, got := drainSignal(t, d)
	require.True(t, got, "third delete must raise a signal")
	assert.Equal(t, "g1", sig.GuildID)
	assert.Equal(t, "attacker", sig.ActorID)
	assert.Equal(t, models.CategoryRoleDelete, sig.Category)
	assert.Equal(t, 3, sig.Count)
	assert.Equal(t, base, sig.FirstSeenAt)
}

func TestExactlyOneSignalPerBreach(t *testing.T) {
	d, reg := newTestDetector(t)
	st := reg.Create("g1")
	st.SetLimit(models.CategoryRoleDelete, config.Limit{Max: 2, Window: 8 * time.Second})

	base := time.Now()
	for i := 0; i < 10; i++ {
		d.Handle(roleDelete("g1", "attacker", base.Add(time.Duration(i)*time.Second)))
	}

	signals := 0
	for {
		if _, got := drainSignal(t, d); !got {
			break
		}
		signals++
	}
	assert.Equal(t, 1, signals, "a continuing burst must not re-signal")
}

func TestLatchReleasesAfterQuietWindow(t *testing.T) {
	d, reg := newTestDetector(t)
	st := reg.Create("g1")
	st.SetLimit(models.CategoryRoleDelete, config.Limit{Max: 2, Window: 8 * time.Second})

	base := time.Now()
	for i := 0; i < 4; i++ {
		d.Handle(roleDelete("g1", "attacker", base.Add(time.Duration(i)*time.Second)))
	}
	_, got := drainSignal(t, d)
	require.True(t, got)

	// A fresh burst after a full quiet window breaches and signals again.
	later := base.Add(time.Hour)
	for i := 0; i < 3; i++ {
		d.Handle(roleDelete("g1", "attacker", later.Add(time.Duration(i)*time.Second)))
	}
	sig, got := drainSignal(t, d)
	require.True(t, got, "latch must release after the window fully elapses")
	assert.Equal(t, 3, sig.Count)
}

func TestResolveActorReArmsDetection(t *testing.T) {
	d, reg := newTestDetector(t)
	st := reg.Create("g1")
	st.SetLimit(models.CategoryRoleDelete, config.Limit{Max: 2, Window: 8 * time.Second})

	base := time.Now()
	for i := 0; i < 3; i++ {
		d.Handle(roleDelete("g1", "attacker", base.Add(time.Duration(i)*time.Second)))
	}
	_, got := drainSignal(t, d)
	require.True(t, got)

	d.ResolveActor("g1", "attacker")

	// Windows were cleared too, so the count restarts from one.
	next := base.Add(4 * time.Second)
	for i := 0; i < 3; i++ {
		d.Handle(roleDelete("g1", "attacker", next.Add(time.Duration(i)*time.Second)))
	}
	sig, got := drainSignal(t, d)
	require.True(t, got, "detection must re-arm after the actor resolves")
	assert.Equal(t, 3, sig.Count)
}

func TestWhitelistBypassSkipsRateAccounting(t *testing.T) {
	d, reg := newTestDetector(t)
	st := reg.Create("g1")
	st.SetLimit(models.CategoryRoleDelete, config.Limit{Max: 2, Window: 8 * time.Second})
	st.AddWhitelist("admin")

	base := time.Now()
	for i := 0; i < 10; i++ {
		d.Handle(roleDelete("g1", "admin", base.Add(time.Duration(i)*time.Second)))
	}
	_, got := drainSignal(t, d)
	assert.False(t, got, "whitelisted actors never signal")

	// Their actions also left no trace in the windows: removing the
	// exemption does not inherit prior counts.
	st.RemoveWhitelist("admin")
	d.Handle(roleDelete("g1", "admin", base.Add(11*time.Second)))
	_, got = drainSignal(t, d)
	assert.False(t, got)
}

func TestBotAndOwnerBypass(t *testing.T) {
	d, reg := newTestDetector(t)
	st := reg.Create("g1")
	st.SetOwnerID("owner")
	st.SetLimit(models.CategoryRoleDelete, config.Limit{Max: 1, Window: 8 * time.Second})
	d.SetBotID("bot")

	base := time.Now()
	for i := 0; i < 5; i++ {
		d.Handle(roleDelete("g1", "owner", base.Add(time.Duration(i)*time.Second)))
		d.Handle(roleDelete("g1", "bot", base.Add(time.Duration(i)*time.Second)))
	}
	_, got := drainSignal(t, d)
	assert.False(t, got)
}

func TestDisabledGuildIgnored(t *testing.T) {
	d, reg := newTestDetector(t)
	st := reg.Create("g1")
	st.SetEnabled(false)
	st.SetLimit(models.CategoryRoleDelete, config.Limit{Max: 1, Window: 8 * time.Second})

	base := time.Now()
	for i := 0; i < 5; i++ {
		d.Handle(roleDelete("g1", "attacker", base.Add(time.Duration(i)*time.Second)))
	}
	_, got := drainSignal(t, d)
	assert.False(t, got)
}

func TestMalformedEventDropped(t *testing.T) {
	d, reg := newTestDetector(t)
	reg.Create("g1")

	d.Handle(models.GatewayEvent{Type: models.EventTypeRoleDelete, GuildID: "g1"})
	d.Handle(models.GatewayEvent{Type: models.EventTypeRoleDelete, ActorID: "a1"})
	_, got := drainSignal(t, d)
	assert.False(t, got)
}

func TestClassifyPermissionGrant(t *testing.T) {
	ev := models.GatewayEvent{
		Type:           models.EventTypeRoleUpdate,
		GuildID:        "g1",
		ActorID:        "a1",
		OldPermissions: permset.KickMembers,
		NewPermissions: permset.KickMembers | permset.Administrator,
	}
	assert.Equal(t, models.CategoryPermissionGrant, Classify(ev))

	// Only newly gained dangerous bits count. Removals and unchanged
	// permissions are not grants.
	ev.OldPermissions = permset.Administrator | permset.KickMembers
	ev.NewPermissions = permset.KickMembers
	assert.Equal(t, models.CategoryNone, Classify(ev))

	ev.OldPermissions = permset.Administrator
	ev.NewPermissions = permset.Administrator
	assert.Equal(t, models.CategoryNone, Classify(ev))
}

func TestClassifyBotAdd(t *testing.T) {
	ev := models.GatewayEvent{Type: models.EventTypeMemberAdd, GuildID: "g1", ActorID: "a1", TargetIsBot: true}
	assert.Equal(t, models.CategoryBotAdd, Classify(ev))

	ev.TargetIsBot = false
	assert.Equal(t, models.CategoryNone, Classify(ev), "human joins are not monitored")
}

func TestDispatchDropsUnknownGuild(t *testing.T) {
	d, _ := newTestDetector(t)
	// Must not panic or block.
	d.Dispatch(roleDelete("unknown", "a1", time.Now()))
}
