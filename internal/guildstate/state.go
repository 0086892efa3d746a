// Package guildstate owns all per-guild security state. Every guild the
// engine protects gets one State object, created when protection is enabled
// and retained (disabled, never deleted) until the process exits. All access
// goes through the Registry's locked accessors; nothing in this package is a
// bare shared global.
package guildstate

import (
	"sync"
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/config"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/models"
	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
)

// ModifiedRole records a role's permission bitfield as it was immediately
// before quarantine stripped it. This list is the only way to reverse a
// quarantine, so it is captured before any write goes out.
type ModifiedRole struct {
	RoleID              string
	OriginalPermissions permset.Permissions
}

// QuarantineState is the active-quarantine record for one guild.
type QuarantineState struct {
	Active        bool
	TriggeredBy   string
	TriggeredAt   time.Time
	ModifiedRoles []ModifiedRole
}

// BlockedActor is an actor denied privileged actions until explicitly lifted.
type BlockedActor struct {
	UserID    string
	Reason    string
	BlockedAt time.Time
}

// State is the security state of a single protected guild.
type State struct {
	GuildID string

	mu              sync.RWMutex
	enabled         bool
	ownerID         string
	logChannelID    string
	limits          map[models.Category]config.Limit
	whitelist       map[string]struct{}
	blocked         map[string]BlockedActor
	quarantine      *QuarantineState
	activeIncidents int

	// repairMu serializes quarantine toggles, restores and snapshot
	// refreshes for this guild so they cannot interleave destructively.
	repairMu sync.Mutex

	queue     chan models.GatewayEvent
	stopped   bool
	startOnce sync.Once
	stopOnce  sync.Once
}

func newState(guildID string, queueSize int) *State {
	return &State{
		GuildID:   guildID,
		enabled:   true,
		limits:    config.DefaultLimits(),
		whitelist: make(map[string]struct{}),
		blocked:   make(map[string]BlockedActor),
		queue:     make(chan models.GatewayEvent, queueSize),
	}
}

func (s *State) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *State) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *State) OwnerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerID
}

func (s *State) SetOwnerID(id string) {
	s.mu.Lock()
	s.ownerID = id
	s.mu.Unlock()
}

func (s *State) LogChannelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logChannelID
}

func (s *State) SetLogChannelID(id string) {
	s.mu.Lock()
	s.logChannelID = id
	s.mu.Unlock()
}

// Limit returns the configured threshold for a category, falling back to the
// engine default when the guild never overrode it.
func (s *State) Limit(cat models.Category) config.Limit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.limits[cat]; ok {
		return l
	}
	return config.DefaultLimits()[cat]
}

func (s *State) SetLimit(cat models.Category, l config.Limit) {
	s.mu.Lock()
	s.limits[cat] = l
	s.mu.Unlock()
}

// Limits returns a copy of the full threshold table.
func (s *State) Limits() map[models.Category]config.Limit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Category]config.Limit, len(s.limits))
	for c, l := range s.limits {
		out[c] = l
	}
	return out
}

func (s *State) IsWhitelisted(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.whitelist[userID]
	return ok
}

func (s *State) AddWhitelist(userID string) {
	s.mu.Lock()
	s.whitelist[userID] = struct{}{}
	s.mu.Unlock()
}

func (s *State) RemoveWhitelist(userID string) {
	s.mu.Lock()
	delete(s.whitelist, userID)
	s.mu.Unlock()
}

func (s *State) Whitelist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.whitelist))
	for id := range s.whitelist {
		out = append(out, id)
	}
	return out
}

func (s *State) Block(userID, reason string, at time.Time) {
	s.mu.Lock()
	s.blocked[userID] = BlockedActor{UserID: userID, Reason: reason, BlockedAt: at}
	s.mu.Unlock()
}

func (s *State) Unblock(userID string) {
	s.mu.Lock()
	delete(s.blocked, userID)
	s.mu.Unlock()
}

func (s *State) IsBlocked(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocked[userID]
	return ok
}

// ClearBlocks lifts every block and returns the lifted user IDs so the caller
// can clean up persisted records.
func (s *State) ClearBlocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.blocked))
	for id := range s.blocked {
		out = append(out, id)
	}
	s.blocked = make(map[string]BlockedActor)
	return out
}

// Quarantine returns a copy of the current quarantine record, or false when
// the guild is not quarantined.
func (s *State) Quarantine() (QuarantineState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.quarantine == nil {
		return QuarantineState{}, false
	}
	q := *s.quarantine
	q.ModifiedRoles = append([]ModifiedRole(nil), s.quarantine.ModifiedRoles...)
	return q, true
}

func (s *State) SetQuarantine(q *QuarantineState) {
	s.mu.Lock()
	s.quarantine = q
	s.mu.Unlock()
}

func (s *State) IncidentStarted() {
	s.mu.Lock()
	s.activeIncidents++
	s.mu.Unlock()
}

func (s *State) IncidentFinished() {
	s.mu.Lock()
	if s.activeIncidents > 0 {
		s.activeIncidents--
	}
	s.mu.Unlock()
}

func (s *State) ActiveIncidents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeIncidents
}

// LockRepair acquires the guild repair lock. Quarantine activate/deactivate,
// restores and snapshot refreshes hold it for their full duration.
func (s *State) LockRepair() {
	s.repairMu.Lock()
}

func (s *State) UnlockRepair() {
	s.repairMu.Unlock()
}

// Enqueue offers a gateway event to the guild worker. It never blocks; when
// the queue is saturated or the worker has stopped the event is dropped and
// the caller logs it.
func (s *State) Enqueue(ev models.GatewayEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return false
	}
	select {
	case s.queue <- ev:
		return true
	default:
		return false
	}
}

// StartWorker consumes the guild queue in arrival order on a dedicated
// goroutine, preserving per-guild ordering without blocking other guilds.
// Idempotent: later calls are no-ops.
func (s *State) StartWorker(handle func(models.GatewayEvent)) {
	s.startOnce.Do(func() {
		go func() {
			for ev := range s.queue {
				handle(ev)
			}
		}()
	})
}

// StopWorker closes the queue. Idempotent.
func (s *State) StopWorker() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.queue)
		s.mu.Unlock()
	})
}
