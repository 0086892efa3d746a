package models

import (
	"time"

	"github.com/anonymous-hidden/darklock-guard-sub001/internal/permset"
)

// EventType identifies the raw gateway event that reached the engine.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeChannelCreate
	EventTypeChannelDelete
	EventTypeRoleCreate
	EventTypeRoleDelete
	EventTypeRoleUpdate
	EventTypeBan
	EventTypeKick
	EventTypeWebhookCreate
	EventTypeMemberAdd
)

func (t EventType) String() string {
	switch t {
	case EventTypeChannelCreate:
		return "channel_create"
	case EventTypeChannelDelete:
		return "channel_delete"
	case EventTypeRoleCreate:
		return "role_create"
	case EventTypeRoleDelete:
		return "role_delete"
	case EventTypeRoleUpdate:
		return "role_update"
	case EventTypeBan:
		return "ban"
	case EventTypeKick:
		return "kick"
	case EventTypeWebhookCreate:
		return "webhook_create"
	case EventTypeMemberAdd:
		return "member_add"
	default:
		return "unknown"
	}
}

// GatewayEvent is the normalized form of an administrative action observed on
// the gateway. ActorID is resolved through the audit log before the event is
// dispatched; events without an actor are dropped upstream.
type GatewayEvent struct {
	Type        EventType
	GuildID     string
	ActorID     string
	TargetID    string
	TargetIsBot bool
	// Permission fields are populated for role updates only.
	OldPermissions permset.Permissions
	NewPermissions permset.Permissions
	Timestamp      time.Time
}

// Category is a monitored violation category. Raw events map onto categories
// through the detector's classifier; events outside the monitored set map to
// CategoryNone and are ignored.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryChannelDelete
	CategoryChannelCreate
	CategoryRoleDelete
	CategoryRoleCreate
	CategoryBan
	CategoryKick
	CategoryWebhookCreate
	CategoryPermissionGrant
	CategoryBotAdd
)

var categoryNames = map[Category]string{
	CategoryChannelDelete:   "channel-delete",
	CategoryChannelCreate:   "channel-create",
	CategoryRoleDelete:      "role-delete",
	CategoryRoleCreate:      "role-create",
	CategoryBan:             "ban",
	CategoryKick:            "kick",
	CategoryWebhookCreate:   "webhook-create",
	CategoryPermissionGrant: "dangerous-permission-grant",
	CategoryBotAdd:          "bot-add",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "none"
}

// ParseCategory maps a category name back to its value. Unknown names return
// CategoryNone.
func ParseCategory(s string) Category {
	for c, name := range categoryNames {
		if name == s {
			return c
		}
	}
	return CategoryNone
}

// AllCategories lists every monitored category, in threshold-config order.
func AllCategories() []Category {
	return []Category{
		CategoryChannelDelete,
		CategoryChannelCreate,
		CategoryRoleDelete,
		CategoryRoleCreate,
		CategoryBan,
		CategoryKick,
		CategoryWebhookCreate,
		CategoryPermissionGrant,
		CategoryBotAdd,
	}
}

// ThreatSignal is raised by the detector exactly once per breach of a
// configured limit. Count is the violation count at the moment the limit was
// exceeded; FirstSeenAt is the oldest event still inside the window.
type ThreatSignal struct {
	GuildID     string
	ActorID     string
	Category    Category
	Count       int
	FirstSeenAt time.Time
	DetectedAt  time.Time
}
