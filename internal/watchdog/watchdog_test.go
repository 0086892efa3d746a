package watchdog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatKeepsComponentHealthy(t *testing.T) {
	w := New(5 * time.Millisecond)
	w.Register("engine", 50*time.Millisecond)
	w.Start()
	defer w.Stop()

	for i := 0; i < 10; i++ {
		w.Heartbeat("engine")
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, w.Healthy("engine"))
}

func TestStallMarksUnhealthy(t *testing.T) {
	w := New(5 * time.Millisecond)
	w.Register("notifier", 10*time.Millisecond)

	w.Heartbeat("notifier")
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return !w.Healthy("notifier")
	}, time.Second, 5*time.Millisecond, "stalled component should flip unhealthy")

	// A fresh heartbeat recovers it.
	w.Heartbeat("notifier")
	assert.True(t, w.Healthy("notifier"))
}

func TestNeverBeatComponentStaysHealthy(t *testing.T) {
	w := New(5 * time.Millisecond)
	w.Register("engine", 10*time.Millisecond)
	w.Start()
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, w.Healthy("engine"), "components are not judged before their first heartbeat")
}

func TestUnknownComponent(t *testing.T) {
	w := New(time.Second)
	assert.False(t, w.Healthy("nope"))
}

func TestStatus(t *testing.T) {
	w := New(time.Second)
	w.Register("a", time.Second)
	w.Register("b", time.Second)

	st := w.Status()
	assert.Equal(t, map[string]bool{"a": true, "b": true}, st)
}

func TestStartStopIdempotent(t *testing.T) {
	w := New(time.Millisecond)
	w.Register("a", time.Second)
	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}
