// Package ratewindow maintains sliding windows of violation timestamps keyed
// by (guild, actor, category). It is a pure in-memory structure: no I/O, no
// failure modes, safe for concurrent writes from simultaneous gateway events.
package ratewindow

import (
	"sync"
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
)

type key struct {
	guildID string
	actorID string
	cat     models.Category
}

type window struct {
	stamps []time.Time
}

// prune drops timestamps older than the window duration. Pruning is lazy:
// it runs on every read and write rather than on a timer.
func (w *window) prune(now time.Time, dur time.Duration) {
	cutoff := now.Add(-dur)
	i := 0
	for ; i < len(w.stamps); i++ {
		if w.stamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

type Tracker struct {
	mu      sync.Mutex
	windows map[key]*window
}

func NewTracker() *Tracker {
	return &Tracker{
		windows: make(map[key]*window),
	}
}

// Record appends a violation timestamp and returns the count inside the
// window, inclusive of the event just recorded, along with the oldest
// timestamp still inside the window.
func (t *Tracker) Record(guildID, actorID string, cat models.Category, now time.Time, dur time.Duration) (int, time.Time) {
	k := key{guildID: guildID, actorID: actorID, cat: cat}

	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[k]
	if !ok {
		w = &window{}
		t.windows[k] = w
	}

	w.prune(now, dur)
	w.stamps = append(w.stamps, now)
	return len(w.stamps), w.stamps[0]
}

// Count returns the current in-window count without recording anything.
func (t *Tracker) Count(guildID, actorID string, cat models.Category, now time.Time, dur time.Duration) int {
	k := key{guildID: guildID, actorID: actorID, cat: cat}

	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[k]
	if !ok {
		return 0
	}
	w.prune(now, dur)
	return len(w.stamps)
}

// Reset clears one (guild, actor, category) window.
func (t *Tracker) Reset(guildID, actorID string, cat models.Category) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, key{guildID: guildID, actorID: actorID, cat: cat})
}

// ResetActor clears every category window for one actor in one guild. Used
// when a quarantine episode resolves so the actor starts from a clean slate.
func (t *Tracker) ResetActor(guildID, actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.windows {
		if k.guildID == guildID && k.actorID == actorID {
			delete(t.windows, k)
		}
	}
}

// ResetGuild drops all windows for a guild.
func (t *Tracker) ResetGuild(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.windows {
		if k.guildID == guildID {
			delete(t.windows, k)
		}
	}
}
