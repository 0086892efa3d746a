package ratewindow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

func TestRecordCountsInclusive(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	window := 10 * time.Second

	count, first := tr.Record("g1", "a1", models.CategoryChannelDelete, now, window)
	require.Equal(t, 1, count)
	require.Equal(t, now, first)

	count, first = tr.Record("g1", "a1", models.CategoryChannelDelete, now.Add(time.Second), window)
	assert.Equal(t, 2, count)
	assert.Equal(t, now, first, "oldest in-window stamp should be the first event")

	count, _ = tr.Record("g1", "a1", models.CategoryChannelDelete, now.Add(2*time.Second), window)
	assert.Equal(t, 3, count)
}

func TestRecordPrunesExpired(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	window := 8 * time.Second

	tr.Record("g1", "a1", models.CategoryRoleDelete, now, window)
	tr.Record("g1", "a1", models.CategoryRoleDelete, now.Add(time.Second), window)

	// Third event lands after the first two fell out of the window.
	count, first := tr.Record("g1", "a1", models.CategoryRoleDelete, now.Add(20*time.Second), window)
	assert.Equal(t, 1, count)
	assert.Equal(t, now.Add(20*time.Second), first)
}

func TestKeysAreIndependent(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	window := 10 * time.Second

	tr.Record("g1", "a1", models.CategoryBan, now, window)
	tr.Record("g1", "a1", models.CategoryBan, now, window)

	count, _ := tr.Record("g1", "a2", models.CategoryBan, now, window)
	assert.Equal(t, 1, count, "different actor must have its own window")

	count, _ = tr.Record("g1", "a1", models.CategoryKick, now, window)
	assert.Equal(t, 1, count, "different category must have its own window")

	count, _ = tr.Record("g2", "a1", models.CategoryBan, now, window)
	assert.Equal(t, 1, count, "different guild must have its own window")
}

func TestCountDoesNotRecord(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	window := 10 * time.Second

	tr.Record("g1", "a1", models.CategoryWebhookCreate, now, window)
	assert.Equal(t, 1, tr.Count("g1", "a1", models.CategoryWebhookCreate, now, window))
	assert.Equal(t, 1, tr.Count("g1", "a1", models.CategoryWebhookCreate, now, window))
}

func TestResets(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	window := 10 * time.Second

	tr.Record("g1", "a1", models.CategoryBan, now, window)
	tr.Record("g1", "a1", models.CategoryKick, now, window)
	tr.Record("g1", "a2", models.CategoryBan, now, window)
	tr.Record("g2", "a1", models.CategoryBan, now, window)

	tr.Reset("g1", "a1", models.CategoryBan)
	assert.Equal(t, 0, tr.Count("g1", "a1", models.CategoryBan, now, window))
	assert.Equal(t, 1, tr.Count("g1", "a1", models.CategoryKick, now, window))

	tr.ResetActor("g1", "a1")
	assert.Equal(t, 0, tr.Count("g1", "a1", models.CategoryKick, now, window))
	assert.Equal(t, 1, tr.Count("g1", "a2", models.CategoryBan, now, window))

	tr.ResetGuild("g1")
	assert.Equal(t, 0, tr.Count("g1", "a2", models.CategoryBan, now, window))
	assert.Equal(t, 1, tr.Count("g2", "a1", models.CategoryBan, now, window))
}

func TestConcurrentRecord(t *testing.T) {
	tr := NewTracker()
	window := time.Minute

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Record("g1", "a1", models.CategoryChannelCreate, time.Now(), window)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, tr.Count("g1", "a1", models.CategoryChannelCreate, time.Now(), window))
}
